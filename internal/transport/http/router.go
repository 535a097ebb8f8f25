// Package httptransport is the thin HTTP layer beside the MCP endpoint:
// health and readiness probes, Prometheus metrics, and token issuance. It
// delegates to domain services without embedding business logic.
package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dErrors "vcgate/pkg/domain-errors"
)

// NewRouter wires the operational endpoints around the handler.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/auth/token", h.handleToken)

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError translates domain error codes into HTTP statuses with a
// consistent JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	writeJSON(w, httpStatus(code), map[string]string{
		"error":   string(code),
		"message": dErrors.MessageOf(err),
	})
}

func httpStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeOverloaded:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
