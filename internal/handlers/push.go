package handlers

import (
	"net/http"
	"net/url"

	"sleeplog-backend/internal/models"
	"sleeplog-backend/internal/push"
)

type PushHandler struct {
	store          *push.Store
	vapidPublicKey string
}

func NewPushHandler(store *push.Store, vapidPublicKey string) *PushHandler {
	return &PushHandler{store: store, vapidPublicKey: vapidPublicKey}
}

func (h *PushHandler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		writeJSON(w, http.StatusServiceUnavailable, errorResp("PUSH_DISABLED", "Web push is not configured", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.vapidPublicKey})
}

func validateSubscription(sub models.PushSubscription) map[string]string {
	fields := map[string]string{}
	if u, err := url.Parse(sub.Endpoint); err != nil || u.Scheme != "https" && u.Scheme != "http" || u.Host == "" {
		fields["endpoint"] = "must be an absolute http(s) URL"
	}
	if sub.Keys.P256dh == "" {
		fields["keys.p256dh"] = "is required"
	}
	if sub.Keys.Auth == "" {
		fields["keys.auth"] = "is required"
	}
	return fields
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var sub models.PushSubscription
	if !decodeJSON(w, r, &sub) {
		return
	}
	if fields := validateSubscription(sub); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid subscription", fields, r))
		return
	}

	if err := h.store.Add(r.Context(), sub); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Subscription saved"})
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Endpoint == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid request",
			map[string]string{"endpoint": "is required"}, r))
		return
	}

	if err := h.store.Remove(r.Context(), req.Endpoint); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Subscription removed"})
}
