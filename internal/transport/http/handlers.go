package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"vcgate/internal/health"
	"vcgate/internal/identity"
	dErrors "vcgate/pkg/domain-errors"
	"vcgate/pkg/platform/sentinel"
)

// UserAuthenticator validates interactive credentials and yields the user's
// roles for token minting.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (identity.User, error)
}

// Handler serves the operational HTTP surface.
type Handler struct {
	users    UserAuthenticator
	issuer   *identity.Service
	probe    *health.Probe
	tokenTTL time.Duration
	logger   *slog.Logger
}

func NewHandler(users UserAuthenticator, issuer *identity.Service, probe *health.Probe, tokenTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		users:    users,
		issuer:   issuer,
		probe:    probe,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.probe.Snapshot()
	if !h.probe.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, snapshot)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	Roles       []string `json:"roles"`
}

// handleToken exchanges a username and password for a signed bearer token
// carrying the user's roles.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "malformed token request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, dErrors.New(dErrors.CodeValidation, "username and password are required"))
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeUnauthenticated) {
			h.logger.Info("token request rejected", "username", req.Username)
			writeError(w, dErrors.New(dErrors.CodeUnauthenticated, "invalid credentials"))
			return
		}
		writeError(w, err)
		return
	}

	token, err := h.issuer.IssueToken(user.Username, user.Roles, h.tokenTTL)
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "mint token"))
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokenTTL.Seconds()),
		Roles:       user.Roles,
	})
}
