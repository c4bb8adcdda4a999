package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-widget/internal/config"
	"chat-widget/internal/render"
	"chat-widget/internal/transcript"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_MemoryBackend(t *testing.T) {
	var gotModel string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModel = r.Header.Get("X-Model")
		_, _ = w.Write([]byte(`{"response":"pong"}`))
	}))
	defer backend.Close()

	cfg, err := config.Parse(map[string]string{
		"STORAGE_BACKEND":   "memory",
		"CHAT_API_PRESET":   "simple",
		"CHAT_API_BASE_URL": backend.URL,
		"CHAT_API_HEADERS":  "X-Model:deepseek-chat",
		"WELCOME_MESSAGE":   "Ask away.",
		"RENDER_MODE":       "plain",
	})
	require.NoError(t, err)

	a, err := Build(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	require.IsType(t, render.Plain{}, a.Formatter)
	msgs := a.Session.Transcript()
	require.Len(t, msgs, 1)
	require.Equal(t, "Ask away.", msgs[0].Content)

	out, err := a.Session.Send(context.Background(), "ping")
	require.NoError(t, err)
	require.False(t, out.Failed)
	require.Equal(t, "pong", out.Reply.Content)
	require.Equal(t, "deepseek-chat", gotModel)
}

func TestBuild_SQLiteBackendSurvivesRestart(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"stored"}}]}`))
	}))
	defer backend.Close()

	cfg, err := config.Parse(map[string]string{
		"STORAGE_SQLITE_PATH": filepath.Join(t.TempDir(), "nested", "widget.db"),
		"CHAT_API_BASE_URL":   backend.URL,
	})
	require.NoError(t, err)

	a, err := Build(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	_, err = a.Session.Send(context.Background(), "remember me")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Build(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer b.Close()
	msgs := b.Session.Transcript()
	require.Len(t, msgs, 3)
	require.Equal(t, transcript.DefaultWelcome, msgs[0].Content)
	require.Equal(t, "remember me", msgs[1].Content)
	require.Equal(t, "stored", msgs[2].Content)
}

func TestBuild_SQLiteClearFromAnotherProcessSticks(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"noted"}}]}`))
	}))
	defer backend.Close()

	cfg, err := config.Parse(map[string]string{
		"STORAGE_SQLITE_PATH": filepath.Join(t.TempDir(), "widget.db"),
		"CHAT_API_BASE_URL":   backend.URL,
	})
	require.NoError(t, err)

	server, err := Build(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer server.Close()
	cli, err := Build(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer cli.Close()

	_, err = server.Session.Send(context.Background(), "secret one")
	require.NoError(t, err)
	require.NoError(t, cli.Session.Clear(context.Background()))
	_, err = server.Session.Send(context.Background(), "two")
	require.NoError(t, err)

	fresh, err := Build(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer fresh.Close()

	var contents []string
	for _, m := range fresh.Session.Transcript() {
		contents = append(contents, m.Content)
	}
	require.Equal(t, []string{transcript.DefaultWelcome, "two", "noted"}, contents)
}

func TestNewTransport(t *testing.T) {
	c, err := NewTransport(config.ChatAPIConfig{
		BaseURL:      "http://chat.local:9000/",
		Path:         "v1/chat",
		RequestField: "input.text",
		ReplyPath:    "output",
	})
	require.NoError(t, err)
	require.Equal(t, "http://chat.local:9000/v1/chat", c.URL())

	_, err = NewTransport(config.ChatAPIConfig{BaseURL: "http://x"})
	require.Error(t, err)
}
