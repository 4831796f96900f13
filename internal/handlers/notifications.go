package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sleeplog-backend/internal/models"
	"sleeplog-backend/internal/notify"
)

type NotificationHandler struct {
	history *notify.History
	now     func() time.Time
}

func NewNotificationHandler(history *notify.History) *NotificationHandler {
	return &NotificationHandler{history: history, now: time.Now}
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type feedbackRequest struct {
	ID       string          `json:"id"`
	Feedback models.Feedback `json:"feedback"`
}

func (h *NotificationHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fields := map[string]string{}
	if req.ID == "" {
		fields["id"] = "is required"
	}
	if !req.Feedback.Valid() {
		fields["feedback"] = "must be useful or not_useful"
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	rec, err := h.history.RecordFeedback(r.Context(), req.ID, req.Feedback, h.now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
