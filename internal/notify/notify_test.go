package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleeplog-backend/internal/docstore"
	"sleeplog-backend/internal/models"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 3, 14, hour, min, 0, 0, time.UTC)
}

func sent(t time.Time) models.NotificationRecord {
	return models.NotificationRecord{ID: t.Format(time.RFC3339), Title: "t", Body: "b", SentAt: t}
}

func TestGate_QuietHoursRejectRegardlessOfHistory(t *testing.T) {
	g := DefaultGate()
	for _, now := range []time.Time{at(2, 0), at(4, 30), at(7, 59)} {
		ok, reason := g.CanSend(now, nil)
		assert.False(t, ok, now.String())
		assert.Equal(t, ReasonQuietHours, reason)
	}
	ok, _ := g.CanSend(at(8, 0), nil)
	assert.True(t, ok)
	ok, _ = g.CanSend(at(1, 59), nil)
	assert.True(t, ok)
}

func TestGate_QuietHoursWrapMidnight(t *testing.T) {
	g := Gate{QuietStart: 22, QuietEnd: 6, MinSpacing: time.Hour, DailyCap: 3}
	assert.True(t, g.InQuietHours(at(23, 0)))
	assert.True(t, g.InQuietHours(at(0, 30)))
	assert.False(t, g.InQuietHours(at(6, 0)))
	assert.False(t, g.InQuietHours(at(21, 59)))
}

func TestGate_DailyCap(t *testing.T) {
	g := DefaultGate()
	now := at(20, 0)
	history := []models.NotificationRecord{sent(at(9, 0)), sent(at(12, 0)), sent(at(15, 0))}

	ok, reason := g.CanSend(now, history)
	assert.False(t, ok)
	assert.Equal(t, ReasonDailyCap, reason)

	ok, _ = g.CanSend(now, history[:2])
	assert.True(t, ok)
}

func TestGate_IgnoresRecordsOlderThanWindow(t *testing.T) {
	g := DefaultGate()
	now := at(20, 0)
	old := now.Add(-25 * time.Hour)
	history := []models.NotificationRecord{sent(old), sent(old.Add(time.Minute)), sent(old.Add(2 * time.Minute)), sent(old.Add(3 * time.Minute))}

	ok, reason := g.CanSend(now, history)
	assert.True(t, ok)
	assert.Equal(t, ReasonAllowed, reason)
}

func TestGate_MinSpacing(t *testing.T) {
	g := DefaultGate()
	now := at(20, 0)

	ok, reason := g.CanSend(now, []models.NotificationRecord{sent(now.Add(-119 * time.Minute))})
	assert.False(t, ok)
	assert.Equal(t, ReasonTooSoon, reason)

	ok, _ = g.CanSend(now, []models.NotificationRecord{sent(now.Add(-2 * time.Hour))})
	assert.True(t, ok)
}

func TestGate_UsesLatestRecordForSpacing(t *testing.T) {
	g := DefaultGate()
	now := at(20, 0)
	history := []models.NotificationRecord{sent(now.Add(-30 * time.Minute)), sent(now.Add(-10 * time.Hour))}

	ok, reason := g.CanSend(now, history)
	assert.False(t, ok)
	assert.Equal(t, ReasonTooSoon, reason)
}

func newHistory(t *testing.T) (*History, string) {
	path := filepath.Join(t.TempDir(), "notification-history.json")
	return NewHistory(docstore.NewFileStore(path)), path
}

func TestHistory_CorruptDocumentReadsEmpty(t *testing.T) {
	h, path := newHistory(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	assert.Empty(t, h.All(context.Background()))
	ok, _ := DefaultGate().CanSend(at(12, 0), h.Window(context.Background(), at(12, 0)))
	assert.True(t, ok)
}

func TestHistory_RecordSentAndFeedback(t *testing.T) {
	h, _ := newHistory(t)
	ctx := context.Background()

	rec, err := h.RecordSent(ctx, at(10, 0), "Wind down", "Bedtime soon")
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	_, err = h.RecordSent(ctx, at(13, 0), "Wind down", "Bedtime soon")
	require.NoError(t, err)
	assert.Len(t, h.All(ctx), 2, "identical content is not deduplicated")

	updated, err := h.RecordFeedback(ctx, rec.ID, models.FeedbackUseful, at(10, 5))
	require.NoError(t, err)
	require.NotNil(t, updated.Feedback)
	assert.Equal(t, models.FeedbackUseful, *updated.Feedback)

	got, err := h.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackUseful, *got.Feedback)
	assert.True(t, got.FeedbackGivenAt.Equal(at(10, 5)))
}

func TestHistory_UnknownID(t *testing.T) {
	h, _ := newHistory(t)
	ctx := context.Background()

	_, err := h.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.RecordFeedback(ctx, "missing", models.FeedbackNotUseful, at(1, 0))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.RecordFeedback(ctx, "missing", models.Feedback("meh"), at(1, 0))
	assert.Error(t, err)
}

func TestHistory_WindowFilters(t *testing.T) {
	h, _ := newHistory(t)
	ctx := context.Background()
	now := at(12, 0)

	_, err := h.RecordSent(ctx, now.Add(-30*time.Hour), "old", "old")
	require.NoError(t, err)
	_, err = h.RecordSent(ctx, now.Add(-3*time.Hour), "new", "new")
	require.NoError(t, err)

	window := h.Window(ctx, now)
	require.Len(t, window, 1)
	assert.Equal(t, "new", window[0].Title)
}

func TestHistory_AssignMissingIDs(t *testing.T) {
	h, path := newHistory(t)
	ctx := context.Background()
	legacy := `[{"title":"a","body":"b","sentAt":"2025-03-14T10:00:00Z"},{"id":"keep","title":"c","body":"d","sentAt":"2025-03-14T11:00:00Z"}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	n, err := h.AssignMissingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all := h.All(ctx)
	require.Len(t, all, 2)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, "keep", all[1].ID)

	n, err = h.AssignMissingIDs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// unreliableDoc fails the first failReads reads, then defers to the wrapped store.
type unreliableDoc struct {
	docstore.Store
	failReads int
}

func (d *unreliableDoc) Read(ctx context.Context) ([]byte, error) {
	if d.failReads > 0 {
		d.failReads--
		return nil, errors.New("i/o timeout")
	}
	return d.Store.Read(ctx)
}

func seededHistory(t *testing.T, n int) *docstore.FileStore {
	file := docstore.NewFileStore(filepath.Join(t.TempDir(), "notification-history.json"))
	records := make([]models.NotificationRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, models.NotificationRecord{ID: fmt.Sprintf("id-%d", i), Title: "t", Body: "b", SentAt: at(i, 0)})
	}
	require.NoError(t, docstore.SaveJSON(context.Background(), file, records))
	return file
}

func savedRecords(t *testing.T, file *docstore.FileStore) []models.NotificationRecord {
	var records []models.NotificationRecord
	require.NoError(t, docstore.LoadJSON(context.Background(), file, &records))
	return records
}

func TestHistory_FailedReadDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	file := seededHistory(t, 5)
	h := NewHistory(&unreliableDoc{Store: file, failReads: 1})

	_, err := h.RecordSent(ctx, at(12, 0), "Wind down", "Bedtime soon")
	require.Error(t, err)
	assert.Len(t, savedRecords(t, file), 5)

	_, err = h.RecordSent(ctx, at(12, 0), "Wind down", "Bedtime soon")
	require.NoError(t, err)
	assert.Len(t, savedRecords(t, file), 6)
}

func TestHistory_FeedbackAndMigrationFailOnReadError(t *testing.T) {
	ctx := context.Background()
	file := seededHistory(t, 3)
	h := NewHistory(&unreliableDoc{Store: file, failReads: 2})

	_, err := h.RecordFeedback(ctx, "id-1", models.FeedbackUseful, at(9, 0))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = h.AssignMissingIDs(ctx)
	require.Error(t, err)

	assert.Len(t, savedRecords(t, file), 3)
	for _, r := range savedRecords(t, file) {
		assert.Nil(t, r.Feedback)
	}
}

func TestHistory_ReadPathsFailOpen(t *testing.T) {
	h := NewHistory(&unreliableDoc{Store: seededHistory(t, 3), failReads: 1})
	assert.Empty(t, h.Window(context.Background(), at(12, 0)))
	assert.Len(t, h.All(context.Background()), 3)
}

func TestHistory_CorruptDocumentIsNotOverwritten(t *testing.T) {
	h, path := newHistory(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := h.RecordSent(context.Background(), at(12, 0), "t", "b")
	assert.ErrorIs(t, err, docstore.ErrCorrupt)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw))
}
