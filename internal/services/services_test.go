package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sleeplog-backend/internal/docstore"
	"sleeplog-backend/internal/models"
	"sleeplog-backend/internal/repository"
)

type recordingTransport struct {
	name string
	err  error

	mu   sync.Mutex
	sent []models.Notification
}

func (t *recordingTransport) Name() string { return t.name }

func (t *recordingTransport) Send(ctx context.Context, n models.Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, n)
	return nil
}

func (t *recordingTransport) Sent() []models.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Notification, len(t.sent))
	copy(out, t.sent)
	return out
}

type fixedZone string

func (z fixedZone) Zone(lat, lng float64) string { return string(z) }

type stubProvider struct {
	decision Decision
	err      error
	prompts  []string
}

func (p *stubProvider) Decide(ctx context.Context, prompt string) (Decision, error) {
	p.prompts = append(p.prompts, prompt)
	return p.decision, p.err
}

var errBoom = errors.New("boom")

func newLedger(t *testing.T) *repository.DocumentLedger {
	return repository.NewDocumentLedger(docstore.NewFileStore(filepath.Join(t.TempDir(), "sleep-entries.json")))
}

func ledgerEntry(t *testing.T, utc time.Time, zone string, duration string) models.LogEntry {
	loc, err := time.LoadLocation(zone)
	require.NoError(t, err)
	return models.LogEntry{
		LocalTime:    utc.In(loc).Format(models.EntryTimeLayout),
		UTCTime:      utc.UTC().Format(models.EntryTimeLayout),
		TimezoneName: zone,
		Latitude:     "0",
		Longitude:    "0",
		Duration:     duration,
	}
}

func position(at time.Time) models.GeolocationPosition {
	var pos models.GeolocationPosition
	pos.Coords.Latitude = 52.37
	pos.Coords.Longitude = 4.89
	pos.Timestamp = at.UnixMilli()
	return pos
}
