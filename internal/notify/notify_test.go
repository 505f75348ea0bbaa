package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordSender struct {
	mu     sync.Mutex
	name   string
	titles []string
	err    error
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func (r *recordSender) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"halt", " reject "}, "[AAPL]", testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "ready", "Engine ready", ""))
	require.NoError(t, n.Notify(ctx, "reject", "Order rejected", ""))
	require.NoError(t, n.NotifyAll(ctx, "Forced", ""))

	assert.Equal(t, []string{"[AAPL] Order rejected", "[AAPL] Forced"}, s.sent())
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	n := NewNotifier(nil, nil, "", testLogger())
	assert.True(t, n.Allowed("anything"))
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("boom")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, "", testLogger())

	err := n.Notify(context.Background(), "halt", "Engine halted", "")
	assert.ErrorContains(t, err, "bad: boom")
	assert.Len(t, good.sent(), 1)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "tok", "42")
	require.NoError(t, s.Send(context.Background(), "Engine halted", "AAPL: too many rejects (4)"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Engine halted*\nAAPL: too many rejects (4)", got["text"])
}

func TestDiscordSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid webhook", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	assert.ErrorContains(t, err, "discord: unexpected status 401")
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	var got discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Engine halted", "too many rejects"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Engine halted", got.Embeds[0].Title)
	assert.Equal(t, "too many rejects", got.Embeds[0].Description)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 3))
	assert.Equal(t, "ab…", truncateRunes("abcd", 3))
	assert.Equal(t, "日本…", truncateRunes("日本語です", 3))
}

func TestQueueDeliversInBackground(t *testing.T) {
	s := &recordSender{name: "rec"}
	q := NewQueue(NewNotifier([]Sender{s}, []string{"halt"}, "", testLogger()), 1, testLogger())
	ctx := context.Background()

	require.NoError(t, q.Notify(ctx, "ready", "filtered", ""))
	require.NoError(t, q.Notify(ctx, "halt", "Engine halted", ""))
	assert.ErrorIs(t, q.Notify(ctx, "halt", "second", ""), domain.ErrQueueFull)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- q.Run(runCtx) }()

	require.Eventually(t, func() bool { return len(s.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"Engine halted"}, s.sent())
}

func TestQueueDrainsOnShutdown(t *testing.T) {
	s := &recordSender{name: "rec"}
	q := NewQueue(NewNotifier([]Sender{s}, nil, "", testLogger()), 4, testLogger())
	require.NoError(t, q.Notify(context.Background(), "halt", "Engine halted", ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Run(ctx))
	assert.Equal(t, []string{"Engine halted"}, s.sent())
}
