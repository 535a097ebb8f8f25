// Package executor defines the backend boundary. The pipeline only ever sees
// the Executor interface; what sits behind it (a real hypervisor SDK or the
// in-memory inventory used for local runs and tests) is its own concern.
package executor

import (
	"context"

	dErrors "vcgate/pkg/domain-errors"
)

// Executor performs one named operation against the infrastructure backend.
// Implementations must honor ctx's deadline and must be safe for concurrent
// calls on distinct operations. Failures are reported through
// pkg/platform/sentinel kinds, optionally wrapped:
//   - sentinel.ErrUnavailable: backend unreachable
//   - sentinel.ErrNotFound: named resource does not exist
//   - sentinel.ErrInvalidState: resource in the wrong state for the request
//   - sentinel.ErrRejected: backend refused the operation
type Executor interface {
	Execute(ctx context.Context, operation string, params map[string]any) (any, error)
}

// StringParam extracts an optional string parameter.
func StringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

// RequireString extracts a mandatory string parameter.
func RequireString(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", dErrors.Newf(dErrors.CodeValidation, "missing required parameter %q", key)
	}
	return v, nil
}

// BoolParam extracts an optional boolean parameter with a default.
func BoolParam(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

// IntParam extracts an optional integer parameter with a default. JSON
// decoding yields float64, so both representations are accepted.
func IntParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
