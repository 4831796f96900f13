// Package docstore persists small JSON documents (notification history, push
// subscriptions) as a whole, either on disk or in Redis.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Read when the document has never been written.
var ErrNotFound = errors.New("document not found")

// ErrCorrupt wraps decode failures, so callers can tell a bad document from
// a failed read.
var ErrCorrupt = errors.New("document is corrupt")

type Store interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// LoadJSON decodes the document into v. A missing document leaves v untouched
// and returns ErrNotFound; undecodable content returns ErrCorrupt.
func LoadJSON(ctx context.Context, s Store, v interface{}) error {
	data, err := s.Read(ctx)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// SaveJSON writes v pretty-printed so the files stay human-readable.
func SaveJSON(ctx context.Context, s Store, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return s.Write(ctx, data)
}
