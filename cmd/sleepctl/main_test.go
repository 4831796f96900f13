package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleeplog-backend/internal/docstore"
	"sleeplog-backend/internal/models"
	"sleeplog-backend/internal/notify"
	"sleeplog-backend/internal/push"
	"sleeplog-backend/internal/services"
)

func run(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVapidKeys(t *testing.T) {
	out, err := run(t, "vapid-keys")
	require.NoError(t, err)

	var pub, priv string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		k, v, _ := strings.Cut(line, "=")
		switch k {
		case "VAPID_PUBLIC_KEY":
			pub = v
		case "VAPID_PRIVATE_KEY":
			priv = v
		}
	}
	_, err = services.ParseVAPIDKeys(pub, priv)
	assert.NoError(t, err)
}

func TestMigrateNotifications(t *testing.T) {
	dir := t.TempDir()
	doc := docstore.NewFileStore(filepath.Join(dir, "notification-history.json"))
	legacy := []models.NotificationRecord{
		{Title: "a", Body: "b", SentAt: time.Now().UTC()},
		{ID: "kept", Title: "c", Body: "d", SentAt: time.Now().UTC()},
	}
	require.NoError(t, docstore.SaveJSON(context.Background(), doc, legacy))

	out, err := run(t, "--data-dir", dir, "--redis-url", "", "migrate-notifications")
	require.NoError(t, err)
	assert.Contains(t, out, "Assigned ids to 1 notification(s)")

	for _, r := range notify.NewHistory(doc).All(context.Background()) {
		assert.NotEmpty(t, r.ID)
	}
}

func TestSubscriptions(t *testing.T) {
	dir := t.TempDir()
	store := push.NewStore(docstore.NewFileStore(filepath.Join(dir, "push-subscriptions.json")), 0)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, models.PushSubscription{Endpoint: "https://push.example/a"}))
	require.NoError(t, store.Add(ctx, models.PushSubscription{Endpoint: "https://push.example/b"}))

	out, err := run(t, "--data-dir", dir, "--redis-url", "", "subscriptions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "0\thttps://push.example/a")
	assert.Contains(t, out, "1\thttps://push.example/b")

	_, err = run(t, "--data-dir", dir, "--redis-url", "", "subscriptions", "remove", "0")
	require.NoError(t, err)

	_, err = run(t, "--data-dir", dir, "--redis-url", "", "subscriptions", "remove", "5")
	assert.Error(t, err)

	out, err = run(t, "--data-dir", dir, "--redis-url", "", "subscriptions", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "push.example/a")
	assert.Contains(t, out, "0\thttps://push.example/b")
}

func TestStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleep-entries.json")

	out, err := run(t, "--sleep-log", path, "--database-url", "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Not enough data to compute stats.")
}
