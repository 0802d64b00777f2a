package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatLine(t *testing.T) {
	line := FormatLine(AccountEvent{
		Name:            "account.disabled",
		AccountID:       42,
		Email:           "jane@example.com",
		DisabledAt:      "2024-01-01 00:00:00",
		DisabledMessage: "Bye",
		OccurredAt:      "2024-01-01T00:00:00Z",
	})
	assert.Equal(t, `[2024-01-01T00:00:00Z] account.disabled | account_id=42 | email="jane@example.com" | disabled_at="2024-01-01 00:00:00" | message="Bye"`+"\n", line)

	line = FormatLine(AccountEvent{Name: "account.enabled", AccountID: 1, Email: "a@b.c", OccurredAt: "t"})
	assert.Equal(t, `[t] account.enabled | account_id=1 | email="a@b.c"`+"\n", line)
}

func TestHandleAppends(t *testing.T) {
	c := NewConsumer("amqp://unused", zap.NewNop())
	c.LogPath = filepath.Join(t.TempDir(), "logs", "account_events.log")

	require.NoError(t, c.Handle([]byte(`{"name":"account.disabled","account_id":1,"email":"a@b.c","occurred_at":"t1"}`)))
	require.NoError(t, c.Handle([]byte(`{"name":"account.enabled","account_id":1,"email":"a@b.c","occurred_at":"t2"}`)))

	data, err := os.ReadFile(c.LogPath)
	require.NoError(t, err)
	assert.Equal(t,
		"[t1] account.disabled | account_id=1 | email=\"a@b.c\"\n"+
			"[t2] account.enabled | account_id=1 | email=\"a@b.c\"\n",
		string(data))
}

func TestHandleRejects(t *testing.T) {
	c := NewConsumer("amqp://unused", zap.NewNop())
	c.LogPath = filepath.Join(t.TempDir(), "events.log")

	assert.Error(t, c.Handle([]byte("{")))
	assert.Error(t, c.Handle([]byte(`{"account_id":1}`)))
	_, err := os.Stat(c.LogPath)
	assert.True(t, os.IsNotExist(err))
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Minute))
	assert.True(t, sleep(context.Background(), time.Millisecond))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConsumer("amqp://127.0.0.1:1/", zap.NewNop())
	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
}
