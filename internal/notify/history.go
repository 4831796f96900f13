package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"sleeplog-backend/internal/docstore"
	"sleeplog-backend/internal/models"
)

var ErrNotFound = errors.New("notification not found")

// History is the persisted list of notifications accepted by the gate.
// Read-modify-write cycles are serialized by mu.
type History struct {
	doc docstore.Store
	mu  sync.Mutex
}

func NewHistory(doc docstore.Store) *History {
	return &History{doc: doc}
}

// load fails open: a missing or unreadable document is an empty history.
// Only the gate's read paths use it.
func (h *History) load(ctx context.Context) []models.NotificationRecord {
	records, err := h.loadForUpdate(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("notification history unreadable, treating as empty")
		return nil
	}
	return records
}

// loadForUpdate feeds read-modify-write paths. Anything but a missing
// document is an error, so a failed read never overwrites saved records.
func (h *History) loadForUpdate(ctx context.Context) ([]models.NotificationRecord, error) {
	var records []models.NotificationRecord
	if err := docstore.LoadJSON(ctx, h.doc, &records); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load notification history: %w", err)
	}
	return records, nil
}

func (h *History) save(ctx context.Context, records []models.NotificationRecord) error {
	if records == nil {
		records = []models.NotificationRecord{}
	}
	if err := docstore.SaveJSON(ctx, h.doc, records); err != nil {
		return fmt.Errorf("failed to save notification history: %w", err)
	}
	return nil
}

func (h *History) All(ctx context.Context) []models.NotificationRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load(ctx)
}

// Window returns the records that currently count against the gate.
func (h *History) Window(ctx context.Context, now time.Time) []models.NotificationRecord {
	return InWindow(now, h.All(ctx))
}

// RecordSent appends a record with a fresh id.
func (h *History) RecordSent(ctx context.Context, now time.Time, title, body string) (models.NotificationRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.NotificationRecord{}, fmt.Errorf("failed to generate notification id: %w", err)
	}
	rec := models.NotificationRecord{
		ID:     id.String(),
		Title:  title,
		Body:   body,
		SentAt: now.UTC(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.loadForUpdate(ctx)
	if err != nil {
		return models.NotificationRecord{}, err
	}
	records = append(records, rec)
	if err := h.save(ctx, records); err != nil {
		return models.NotificationRecord{}, err
	}
	return rec, nil
}

func (h *History) Get(ctx context.Context, id string) (models.NotificationRecord, error) {
	for _, r := range h.All(ctx) {
		if r.ID != "" && r.ID == id {
			return r, nil
		}
	}
	return models.NotificationRecord{}, ErrNotFound
}

// RecordFeedback sets the feedback on one record. Giving feedback again
// overwrites the earlier answer.
func (h *History) RecordFeedback(ctx context.Context, id string, feedback models.Feedback, now time.Time) (models.NotificationRecord, error) {
	if !feedback.Valid() {
		return models.NotificationRecord{}, fmt.Errorf("invalid feedback %q", feedback)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.loadForUpdate(ctx)
	if err != nil {
		return models.NotificationRecord{}, err
	}
	for i := range records {
		if records[i].ID == "" || records[i].ID != id {
			continue
		}
		given := now.UTC()
		fb := feedback
		records[i].Feedback = &fb
		records[i].FeedbackGivenAt = &given
		if err := h.save(ctx, records); err != nil {
			return models.NotificationRecord{}, err
		}
		return records[i], nil
	}
	return models.NotificationRecord{}, ErrNotFound
}

// AssignMissingIDs gives every legacy record without an id a new one and
// returns how many were changed.
func (h *History) AssignMissingIDs(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.loadForUpdate(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range records {
		if records[i].ID != "" {
			continue
		}
		id, err := uuid.NewV7()
		if err != nil {
			return 0, fmt.Errorf("failed to generate notification id: %w", err)
		}
		records[i].ID = id.String()
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	if err := h.save(ctx, records); err != nil {
		return 0, err
	}
	return changed, nil
}
