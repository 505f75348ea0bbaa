package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/studiobot/internal/config"
	"github.com/alanyoungcy/studiobot/internal/domain"
)

type fakeLock struct {
	refreshes atomic.Int32
	failAfter int32
}

func (l *fakeLock) Refresh(context.Context) error {
	if n := l.refreshes.Add(1); l.failAfter > 0 && n >= l.failAfter {
		return errors.New("lock lost")
	}
	return nil
}

func (l *fakeLock) Release() {}

func TestRiskLimits(t *testing.T) {
	cfg := config.Defaults()
	limits := riskLimits(cfg.Engine)

	assert.Equal(t, int64(100), limits.MaxPosition)
	assert.Equal(t, int64(1), limits.MinSize)
	assert.Equal(t, int64(10), limits.MaxSize)
	assert.Equal(t, "0.05", limits.MinTick.String())
	assert.Equal(t, 4, limits.MaxRejects)
}

func TestKeepLockStopsWhenLost(t *testing.T) {
	lock := &fakeLock{failAfter: 2}
	err := keepLock(context.Background(), lock, 30*time.Millisecond)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine lock")
	assert.Equal(t, int32(2), lock.refreshes.Load())
}

func TestKeepLockReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	lock := &fakeLock{}
	err := keepLock(ctx, lock, 15*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, lock.refreshes.Load())
}

func TestFeedLoop(t *testing.T) {
	ctx := context.Background()

	err := feedLoop(ctx, "polygon", func(context.Context) error { return domain.ErrQueueClosed })
	assert.NoError(t, err)

	err = feedLoop(ctx, "polygon", func(context.Context) error { return errors.New("auth failed") })
	require.Error(t, err)
	assert.Equal(t, "app: polygon feed: auth failed", err.Error())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = feedLoop(cancelled, "studio", func(c context.Context) error { return c.Err() })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWireAllDisabled(t *testing.T) {
	cfg := config.Defaults()
	deps, cleanup, err := Wire(context.Background(), &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.PriceCache)
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.AuditStore)
	assert.Nil(t, deps.OrderStore)
	assert.Nil(t, deps.BlobWriter)
	assert.Nil(t, deps.Notifier)
	assert.Empty(t, journalOptions(deps))
}

func TestBuildSenders(t *testing.T) {
	senders := buildSenders(config.NotifyConfig{
		TelegramToken:     "tok",
		TelegramChatID:    "42",
		DiscordWebhookURL: "https://discord.example/hook",
	})
	require.Len(t, senders, 2)
	assert.Equal(t, "telegram", senders[0].Name())
	assert.Equal(t, "discord", senders[1].Name())

	assert.Empty(t, buildSenders(config.NotifyConfig{TelegramToken: "tok"}))
}
