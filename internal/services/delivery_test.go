package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleeplog-backend/internal/models"
)

func TestDispatcher_SucceedsIfAnyTransportSucceeds(t *testing.T) {
	bad := &recordingTransport{name: "bad", err: errBoom}
	good := &recordingTransport{name: "good"}
	d := NewDispatcher(bad, good)

	require.NoError(t, d.Send(context.Background(), models.Notification{Title: "hi"}))
	assert.Len(t, good.Sent(), 1)
	assert.Equal(t, []string{"bad", "good"}, d.Names())
}

func TestDispatcher_FailsWhenAllFail(t *testing.T) {
	d := NewDispatcher(&recordingTransport{name: "a", err: errBoom}, &recordingTransport{name: "b", err: errBoom})

	err := d.Send(context.Background(), models.Notification{Title: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
}

func TestDispatcher_NoTransports(t *testing.T) {
	d := NewDispatcher()
	assert.ErrorIs(t, d.Send(context.Background(), models.Notification{}), ErrNoTransports)

	d = NewDispatcher(nil)
	assert.ErrorIs(t, d.Send(context.Background(), models.Notification{}), ErrNoTransports)
}
