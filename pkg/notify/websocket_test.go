package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketChannelReceivesAndReconnects(t *testing.T) {
	var connections atomic.Int32
	var sawToken atomic.Bool
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer secret" {
			sawToken.Store(true)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := connections.Add(1)
		data, _ := Encode(RuleCreated, 0, map[string]interface{}{"rule": map[string]interface{}{"name": "r", "n": n}})
		conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
		conn.WriteMessage(websocket.TextMessage, data)
		if n == 1 {
			// Drop the first connection to force a reconnect.
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := NewWebsocketChannel(WebsocketOptions{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:      "secret",
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	})
	rules := ch.Subscribe(RuleCreated)
	reconnected := ch.Subscribe(CategoryReconnected)

	ch.Start(context.Background())

	first := receive(t, rules.C())
	assert.Equal(t, RuleCreated, first.Category)
	assert.JSONEq(t, `{"rule":{"name":"r","n":1}}`, string(first.Payload))

	// One resync signal for the initial connect, one for the reconnect.
	for i := 0; i < 2; i++ {
		msg := receive(t, reconnected.C())
		assert.Equal(t, CategoryReconnected, msg.Category)
	}

	second := receive(t, rules.C())
	assert.JSONEq(t, `{"rule":{"name":"r","n":2}}`, string(second.Payload))
	assert.True(t, sawToken.Load())
	require.Eventually(t, ch.Connected, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ch.Close())
	assert.False(t, ch.Connected())
	_, ok := <-rules.C()
	assert.False(t, ok)
}

func TestWebsocketChannelRetriesUntilServerUp(t *testing.T) {
	var ready atomic.Bool
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "not yet", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := Encode(TemplateUploaded, 0, map[string]interface{}{"template": map[string]string{"name": "t", "type": "CUSTOM"}})
		conn.WriteMessage(websocket.TextMessage, data)
		conn.ReadMessage()
	}))
	defer srv.Close()

	ch := NewWebsocketChannel(WebsocketOptions{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		MinBackoff: 5 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	})
	sub := ch.Subscribe(TemplateUploaded)
	ch.Start(context.Background())
	defer ch.Close()

	time.Sleep(30 * time.Millisecond)
	assert.False(t, ch.Connected())
	ready.Store(true)

	msg := receive(t, sub.C())
	assert.Equal(t, TemplateUploaded, msg.Category)
}

func TestWebsocketChannelSignalsFirstConnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer srv.Close()

	ch := NewWebsocketChannel(WebsocketOptions{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		MinBackoff: 5 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	})
	reconnected := ch.Subscribe(CategoryReconnected)
	ch.Start(context.Background())
	defer ch.Close()

	msg := receive(t, reconnected.C())
	assert.Equal(t, CategoryReconnected, msg.Category)
	assert.True(t, ch.Connected())
}
