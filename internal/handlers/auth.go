package handlers

import (
	"errors"
	"net/http"
	"time"

	"sleeplog-backend/internal/middleware"
)

type AuthHandler struct {
	auth *middleware.Auth
}

func NewAuthHandler(auth *middleware.Auth) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type tokenRequest struct {
	APIKey  string `json:"apiKey"`
	Subject string `json:"subject,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token exchanges the API key for a session token usable as a Bearer
// credential and for the websocket.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, exp, err := h.auth.IssueToken(req.APIKey, req.Subject)
	if errors.Is(err, middleware.ErrInvalidAPIKey) {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Invalid API key", r))
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp})
}
