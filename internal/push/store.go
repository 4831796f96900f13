// Package push keeps the bounded registry of web push subscriptions.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"sleeplog-backend/internal/docstore"
	"sleeplog-backend/internal/metrics"
	"sleeplog-backend/internal/models"
)

const DefaultMaxSubscriptions = 10

// Store holds subscriptions oldest first. Every mutation rewrites the whole
// document while holding mu, so concurrent requests cannot lose updates.
type Store struct {
	doc docstore.Store
	max int

	mu     sync.Mutex
	cached []models.PushSubscription
	loaded bool
}

func NewStore(doc docstore.Store, max int) *Store {
	if max <= 0 {
		max = DefaultMaxSubscriptions
	}
	return &Store{doc: doc, max: max}
}

// load returns the cached collection, reading it once. A corrupt document is
// treated as empty; a failed read is returned and retried on the next call.
func (s *Store) load(ctx context.Context) ([]models.PushSubscription, error) {
	if s.loaded {
		return s.cached, nil
	}

	var subs []models.PushSubscription
	if err := docstore.LoadJSON(ctx, s.doc, &subs); err != nil {
		switch {
		case errors.Is(err, docstore.ErrNotFound):
		case errors.Is(err, docstore.ErrCorrupt):
			log.Warn().Err(err).Msg("push subscriptions unreadable, starting empty")
			subs = nil
		default:
			return nil, fmt.Errorf("failed to load push subscriptions: %w", err)
		}
	}
	s.cached = subs
	s.loaded = true
	metrics.PushSubscriptions.Set(float64(len(subs)))
	return s.cached, nil
}

func (s *Store) save(ctx context.Context, subs []models.PushSubscription) error {
	if subs == nil {
		subs = []models.PushSubscription{}
	}
	if err := docstore.SaveJSON(ctx, s.doc, subs); err != nil {
		return fmt.Errorf("failed to save push subscriptions: %w", err)
	}
	s.cached = subs
	metrics.PushSubscriptions.Set(float64(len(subs)))
	return nil
}

// List returns a copy of the subscriptions. When the document cannot be read
// it logs and returns nothing, so delivery skips this cycle.
func (s *Store) List(ctx context.Context) []models.PushSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("push subscriptions not listed")
		return nil
	}
	out := make([]models.PushSubscription, len(subs))
	copy(out, subs)
	return out
}

// Add refreshes an existing endpoint in place or appends a new one, then
// evicts the oldest entries beyond the bound.
func (s *Store) Add(ctx context.Context, sub models.PushSubscription) error {
	if sub.Endpoint == "" {
		return errors.New("subscription endpoint is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return err
	}
	subs := make([]models.PushSubscription, 0, len(current)+1)
	subs = append(subs, current...)

	replaced := false
	for i := range subs {
		if subs[i].Endpoint == sub.Endpoint {
			subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		subs = append(subs, sub)
	}

	if over := len(subs) - s.max; over > 0 {
		subs = subs[over:]
	}

	return s.save(ctx, subs)
}

// Remove drops the subscription with the given endpoint; absent endpoints are
// not an error.
func (s *Store) Remove(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return err
	}
	subs := make([]models.PushSubscription, 0, len(current))
	for _, sub := range current {
		if sub.Endpoint != endpoint {
			subs = append(subs, sub)
		}
	}
	return s.save(ctx, subs)
}

// RemoveByIndex drops the i-th subscription in List order. Out of range
// indices are ignored.
func (s *Store) RemoveByIndex(ctx context.Context, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(current) {
		return nil
	}
	subs := make([]models.PushSubscription, 0, len(current)-1)
	subs = append(subs, current[:i]...)
	subs = append(subs, current[i+1:]...)
	return s.save(ctx, subs)
}
