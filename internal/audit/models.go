// Package audit records an ordered, attributable trail of every operation
// the pipeline handles. Recording is advisory: a dropped audit entry is
// acceptable, a dropped business operation is not.
package audit

import "time"

// Outcome classifies what happened to an operation at a pipeline stage.
type Outcome string

const (
	OutcomeAdmitted  Outcome = "admitted"
	OutcomeDenied    Outcome = "denied"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Entry is one audit record. Sequence numbers are assigned by the recorder
// under a single ordering point and are gap-free per process instance.
// Entries are append-only; nothing in the core mutates or deletes them.
type Entry struct {
	Sequence  uint64    `json:"sequence"`
	RequestID string    `json:"request_id"`
	Subject   string    `json:"subject"`
	Operation string    `json:"operation"`
	Outcome   Outcome   `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}
