package repository

import (
	"context"
	"errors"

	"sleeplog-backend/internal/models"
)

var ErrNoEntries = errors.New("sleep ledger is empty")

// EntryLedger is the append-mostly store of sleep/wake events, oldest first.
type EntryLedger interface {
	Append(ctx context.Context, entry models.LogEntry) error
	// ReplaceLast overwrites the newest entry; ErrNoEntries if there is none.
	ReplaceLast(ctx context.Context, entry models.LogEntry) error
	// ReadRecent returns up to n newest entries, oldest first.
	ReadRecent(ctx context.Context, n int) ([]models.LogEntry, error)
	ReadAll(ctx context.Context) ([]models.LogEntry, error)
	// Last returns the newest entry together with the total count.
	Last(ctx context.Context) (models.LastEntry, error)
	Count(ctx context.Context) (int, error)
}

func tail(entries []models.LogEntry, n int) []models.LogEntry {
	if n <= 0 {
		return []models.LogEntry{}
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]models.LogEntry, len(entries))
	copy(out, entries)
	return out
}
