package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubsincronica/clubd/config"
)

var upgrader = websocket.Upgrader{}

// wsURL rewrites an httptest server URL into a ws:// URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTokenInDialQuery(t *testing.T) {
	tokens := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	c := NewClient(config.RealtimeConfig{URL: wsURL(srv)}, "tok-123", nil)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	select {
	case got := <-tokens:
		assert.Equal(t, "tok-123", got)
	case <-time.After(time.Second):
		t.Fatal("server never saw the dial")
	}
}

func TestReceiveMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(Message{Event: "order_status", Payload: []byte(`{"status":"ready"}`)})
		// Keep the connection open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewClient(config.RealtimeConfig{URL: wsURL(srv)}, "", nil)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	select {
	case msg := <-c.Messages():
		assert.Equal(t, "order_status", msg.Event)
		assert.JSONEq(t, `{"status":"ready"}`, string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestReconnectBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the connection immediately to force a reconnect.
		conn.Close()
	}))

	c := NewClient(config.RealtimeConfig{
		URL:               wsURL(srv),
		ReconnectAttempts: 2,
		ReconnectDelay:    5 * time.Millisecond,
		ReconnectDelayMax: 10 * time.Millisecond,
	}, "", nil)
	require.NoError(t, c.Connect(context.Background()))

	// Shut the server down so every reconnect attempt fails.
	srv.Close()

	select {
	case _, ok := <-waitClosed(c.Messages()):
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("messages channel never closed")
	}
	assert.Error(t, c.Err())
}

// waitClosed drains the channel until it closes, then forwards the close.
func waitClosed(ch <-chan Message) <-chan Message {
	out := make(chan Message)
	go func() {
		for range ch {
		}
		close(out)
	}()
	return out
}

func TestCloseStopsClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewClient(config.RealtimeConfig{URL: wsURL(srv)}, "", nil)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())

	select {
	case _, ok := <-waitClosed(c.Messages()):
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("messages channel never closed after Close")
	}

	assert.ErrorIs(t, c.Send(map[string]string{"event": "ping"}), ErrClosed)
	require.NoError(t, c.Close(), "Close is idempotent")
}

func TestDialFailure(t *testing.T) {
	c := NewClient(config.RealtimeConfig{URL: "ws://127.0.0.1:1/socket"}, "", nil)
	assert.Error(t, c.Connect(context.Background()))
}
