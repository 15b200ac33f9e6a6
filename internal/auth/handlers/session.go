package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"universe-server/internal/auth"
	"universe-server/internal/shared/cookies"
	"universe-server/internal/shared/errors"
	"universe-server/internal/shared/response"
)

type SessionResponse struct {
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func sessionResponse(claims *auth.Claims) SessionResponse {
	resp := SessionResponse{Subject: claims.Subject, Role: claims.Role}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	return resp
}

// SessionHandler lets browser clients trade a bearer token, as minted by
// simctl token, for the auth cookie.
type SessionHandler struct {
	secret string
	policy cookies.Policy
}

func NewSessionHandler(secret string, policy cookies.Policy) *SessionHandler {
	return &SessionHandler{secret: secret, policy: policy}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "session_login", "remote_addr", r.RemoteAddr)

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		response.Error(w, r, logger, errors.Unauthorized("bearer token required"))
		return
	}
	token = strings.TrimSpace(token)

	claims, err := auth.ValidateToken(h.secret, token)
	if err != nil {
		response.Error(w, r, logger, errors.Unauthorized("invalid token"))
		return
	}

	h.policy.SetAuthCookie(w, token)
	logger.Info("Session started", "subject", claims.Subject, "role", claims.Role)

	response.Success(w, http.StatusOK, sessionResponse(claims))
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "logout", "remote_addr", r.RemoteAddr)

	h.policy.ClearAuthCookie(w)
	logger.Info("Session ended")

	w.WriteHeader(http.StatusNoContent)
}

// Me reports the claims attached by the JWT middleware.
func (h *SessionHandler) Me(claimsFrom func(*http.Request) *auth.Claims) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := slog.With("handler", "me")

		claims := claimsFrom(r)
		if claims == nil {
			response.Error(w, r, logger, errors.Unauthorized("authentication required"))
			return
		}

		response.Success(w, http.StatusOK, sessionResponse(claims))
	}
}
