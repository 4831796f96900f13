package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"sleeplog-backend/internal/models"
	"sleeplog-backend/internal/services"
	"sleeplog-backend/internal/sleep"
)

const (
	defaultStatsCount = 20
	maxStatsCount     = 1000
)

type SleepHandler struct {
	svc *services.SleepLogService
}

func NewSleepHandler(svc *services.SleepLogService) *SleepHandler {
	return &SleepHandler{svc: svc}
}

type entryResponse struct {
	UpdatedRow models.LogEntry `json:"updatedRow"`
	Message    string          `json:"message"`
}

func (h *SleepHandler) Log(w http.ResponseWriter, r *http.Request) {
	var pos models.GeolocationPosition
	if !decodeJSON(w, r, &pos) {
		return
	}

	entry, err := h.svc.LogEntry(r.Context(), pos)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryResponse{UpdatedRow: entry, Message: "Successfully added sleep entry"})
}

func (h *SleepHandler) ReplaceLast(w http.ResponseWriter, r *http.Request) {
	var pos models.GeolocationPosition
	if !decodeJSON(w, r, &pos) {
		return
	}

	entry, err := h.svc.ReplaceLast(r.Context(), pos)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{UpdatedRow: entry, Message: "Successfully replaced last sleep entry"})
}

func (h *SleepHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.GetAll(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *SleepHandler) Last(w http.ResponseWriter, r *http.Request) {
	last, err := h.svc.GetLast(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, last)
}

type statsResponse struct {
	Count   int          `json:"count"`
	Stats   *sleep.Stats `json:"stats"`
	Summary string       `json:"summary"`
}

// Stats aggregates the most recent ?count= entries (default 20).
func (h *SleepHandler) Stats(w http.ResponseWriter, r *http.Request) {
	count := defaultStatsCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxStatsCount {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid count",
				map[string]string{"count": "must be an integer between 1 and 1000"}, r))
			return
		}
		count = n
	}

	entries, err := h.svc.GetRecentSleepEntries(r.Context(), count)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	st, err := services.GetSleepStats(entries)
	resp := statsResponse{Count: len(entries), Summary: sleep.FormatStats(st, err)}
	if err == nil {
		resp.Stats = &st
	} else if !errors.Is(err, sleep.ErrInsufficientData) {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
