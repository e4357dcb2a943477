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
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	name string
	err  error

	mu   sync.Mutex
	msgs []Message
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"operation_failed", " round_advanced "}, 0, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "operation_succeeded", "ok", "body"))
	require.NoError(t, n.Notify(context.Background(), "operation_failed", "bad", "body"))
	require.NoError(t, n.Notify(context.Background(), "round_advanced", "next", "body"))
	require.NoError(t, n.NotifyAll(context.Background(), "all", "body"))

	require.Len(t, s.msgs, 3)
	assert.Equal(t, "bad", s.msgs[0].Title)
	assert.Equal(t, "operation_failed", s.msgs[0].Event)
	assert.False(t, s.msgs[0].Time.IsZero())
	assert.Equal(t, "next", s.msgs[1].Title)
	assert.Equal(t, "all", s.msgs[2].Title)
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	n := NewNotifier(nil, nil, 0, discardLogger())
	assert.True(t, n.Allows("anything"))
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), "x", "t", "m"))
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeSender{name: "bad", err: boom}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, 0, discardLogger())

	err := n.Notify(context.Background(), "e", "t", "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, good.msgs, 1, "a failing sender does not block the others")
}

func TestNotifierThrottlesPerSender(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, nil, 2, discardLogger())
	for i := 0; i < 5; i++ {
		require.NoError(t, n.Notify(context.Background(), "e", "t", "m"))
	}
	assert.Len(t, s.msgs, 2)
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL, "commitfi", srv.Client())
	err := d.Send(context.Background(), Message{
		Event: "operation_failed",
		Title: "join_group error",
		Body:  "group 0xabc",
		Time:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "commitfi", got.Username)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "join_group error", got.Embeds[0].Title)
	assert.Equal(t, "group 0xabc", got.Embeds[0].Description)
	assert.Equal(t, 0xe74c3c, got.Embeds[0].Color)
	assert.Equal(t, "2026-01-02T03:04:05Z", got.Embeds[0].Timestamp)
	require.NotNil(t, got.Embeds[0].Footer)
	assert.Equal(t, "operation_failed", got.Embeds[0].Footer.Text)
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL, "", nil).Send(context.Background(), Message{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestTelegramSenderPostsHTML(t *testing.T) {
	var path string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramSender(srv.URL+"/", "TOKEN", "42", srv.Client())
	require.NoError(t, tg.Send(context.Background(), Message{Title: "a < b", Body: "group 0xabc"}))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>a &lt; b</b>\ngroup <code>0xabc</code>", got["text"])
}

func TestFormatTelegram(t *testing.T) {
	out := FormatTelegram(Message{Title: "Savers & co", Body: "group 0x1\n\nerror: <nope>"})
	assert.Equal(t, "<b>Savers &amp; co</b>\ngroup <code>0x1</code>\nerror: &lt;nope&gt;", out)
}
