// Package policy maps (role, operation name) pairs to allow/deny decisions.
// Rules are loaded into an immutable snapshot at startup; changing them
// requires a process restart. Evaluation is fail-closed.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"vcgate/internal/identity"
)

// Effect is the outcome a rule contributes.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Rule grants or denies operations matching a glob pattern to one role.
type Rule struct {
	Role             string `json:"role"`
	OperationPattern string `json:"operation_pattern"`
	Effect           Effect `json:"effect"`
}

// Snapshot is an immutable compiled rule set. Safe for concurrent use; never
// mutated after construction.
type Snapshot struct {
	rules   []Rule
	enabled bool
}

// NewSnapshot compiles rules. Invalid glob patterns are rejected up front so
// evaluation never fails at request time.
func NewSnapshot(rules []Rule, enabled bool) (*Snapshot, error) {
	for _, r := range rules {
		if _, err := path.Match(r.OperationPattern, "probe"); err != nil {
			return nil, fmt.Errorf("invalid operation pattern %q: %w", r.OperationPattern, err)
		}
		if r.Effect != Allow && r.Effect != Deny {
			return nil, fmt.Errorf("invalid effect %q for role %q", r.Effect, r.Role)
		}
	}
	compiled := make([]Rule, len(rules))
	copy(compiled, rules)
	return &Snapshot{rules: compiled, enabled: enabled}, nil
}

// LoadFile reads a JSON rule array from disk and compiles it.
func LoadFile(filePath string, enabled bool) (*Snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	return NewSnapshot(rules, enabled)
}

// Authorize evaluates the rule set for the identity and operation name.
// Any matching Deny wins over any matching Allow; no match at all denies.
// When RBAC is disabled the snapshot allows everything.
func (s *Snapshot) Authorize(ident identity.Identity, operation string) Effect {
	if !s.enabled {
		return Allow
	}

	allowed := false
	for _, rule := range s.rules {
		if !ident.HasRole(rule.Role) {
			continue
		}
		matched, _ := path.Match(rule.OperationPattern, operation)
		if !matched {
			continue
		}
		if rule.Effect == Deny {
			return Deny
		}
		allowed = true
	}
	if allowed {
		return Allow
	}
	return Deny
}

// DefaultRules is the built-in role model: viewers read, operators drive the
// day-to-day lifecycle, admins do everything. Mirrors the roles the rest of
// the system defaults to in tool declarations.
func DefaultRules() []Rule {
	return []Rule{
		{Role: "viewer", OperationPattern: "list_*", Effect: Allow},
		{Role: "viewer", OperationPattern: "get_*", Effect: Allow},
		{Role: "viewer", OperationPattern: "analyze_*", Effect: Allow},
		{Role: "viewer", OperationPattern: "suggest_*", Effect: Allow},
		{Role: "viewer", OperationPattern: "troubleshoot_*", Effect: Allow},

		{Role: "operator", OperationPattern: "list_*", Effect: Allow},
		{Role: "operator", OperationPattern: "get_*", Effect: Allow},
		{Role: "operator", OperationPattern: "start_vm", Effect: Allow},
		{Role: "operator", OperationPattern: "stop_vm", Effect: Allow},
		{Role: "operator", OperationPattern: "restart_vm", Effect: Allow},
		{Role: "operator", OperationPattern: "clone_vm", Effect: Allow},
		{Role: "operator", OperationPattern: "*_snapshot", Effect: Allow},
		{Role: "operator", OperationPattern: "delete_all_snapshots", Effect: Allow},
		{Role: "operator", OperationPattern: "analyze_*", Effect: Allow},
		{Role: "operator", OperationPattern: "suggest_*", Effect: Allow},
		{Role: "operator", OperationPattern: "troubleshoot_*", Effect: Allow},

		{Role: "admin", OperationPattern: "*", Effect: Allow},
	}
}
