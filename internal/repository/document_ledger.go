package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sleeplog-backend/internal/docstore"
	"sleeplog-backend/internal/models"
)

// DocumentLedger keeps the whole ledger as one JSON array in a docstore.
// Entries are cached after the first read; writes go through the cache.
type DocumentLedger struct {
	doc docstore.Store

	mu      sync.RWMutex
	entries []models.LogEntry
	loaded  bool
}

func NewDocumentLedger(doc docstore.Store) *DocumentLedger {
	return &DocumentLedger{doc: doc}
}

// ensureLoaded must be called with mu held for writing.
func (l *DocumentLedger) ensureLoaded(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	var entries []models.LogEntry
	if err := docstore.LoadJSON(ctx, l.doc, &entries); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("failed to load sleep ledger: %w", err)
	}
	l.entries = entries
	l.loaded = true
	return nil
}

func (l *DocumentLedger) snapshot(ctx context.Context) ([]models.LogEntry, error) {
	l.mu.RLock()
	if l.loaded {
		defer l.mu.RUnlock()
		return l.entries, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return l.entries, nil
}

func (l *DocumentLedger) persist(ctx context.Context, entries []models.LogEntry) error {
	if err := docstore.SaveJSON(ctx, l.doc, entries); err != nil {
		return fmt.Errorf("failed to save sleep ledger: %w", err)
	}
	l.entries = entries
	return nil
}

func (l *DocumentLedger) Append(ctx context.Context, entry models.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx); err != nil {
		return err
	}

	next := make([]models.LogEntry, len(l.entries), len(l.entries)+1)
	copy(next, l.entries)
	return l.persist(ctx, append(next, entry))
}

func (l *DocumentLedger) ReplaceLast(ctx context.Context, entry models.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx); err != nil {
		return err
	}
	if len(l.entries) == 0 {
		return ErrNoEntries
	}

	next := make([]models.LogEntry, len(l.entries))
	copy(next, l.entries)
	next[len(next)-1] = entry
	return l.persist(ctx, next)
}

func (l *DocumentLedger) ReadRecent(ctx context.Context, n int) ([]models.LogEntry, error) {
	entries, err := l.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return tail(entries, n), nil
}

func (l *DocumentLedger) ReadAll(ctx context.Context) ([]models.LogEntry, error) {
	entries, err := l.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return tail(entries, len(entries)), nil
}

func (l *DocumentLedger) Last(ctx context.Context) (models.LastEntry, error) {
	entries, err := l.snapshot(ctx)
	if err != nil {
		return models.LastEntry{}, err
	}
	if len(entries) == 0 {
		return models.LastEntry{}, ErrNoEntries
	}
	return models.LastEntry{Entry: entries[len(entries)-1], Count: len(entries)}, nil
}

func (l *DocumentLedger) Count(ctx context.Context) (int, error) {
	entries, err := l.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

var _ EntryLedger = (*DocumentLedger)(nil)
