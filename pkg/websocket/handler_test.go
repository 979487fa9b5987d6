package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgnms/groupsocket/pkg/client"
	"github.com/tgnms/groupsocket/pkg/metrics"
	"github.com/tgnms/groupsocket/pkg/protocol"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func newTestServer(t *testing.T, opts ...HandlerOption) (*Registry, *Handler, *httptest.Server) {
	t.Helper()
	registry := NewRegistry()
	handler, err := NewHandler(registry, opts...)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/websockets", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		handler.CloseAll("test done")
		srv.Close()
	})
	return registry, handler, srv
}

func dialRaw(t *testing.T, srv *httptest.Server) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websockets"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestNewHandler_NilRegistry(t *testing.T) {
	_, err := NewHandler(nil)
	assert.ErrorIs(t, err, ErrNilRegistry)
}

func TestHandler_EndToEnd(t *testing.T) {
	registry, _, srv := newTestServer(t)

	dialer, err := client.NewDialer(srv.URL)
	require.NoError(t, err)
	sup := client.NewSupervisor(dialer.Dial)
	mux := client.NewMultiplexer(sup)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sup.Start(ctx)

	received := make(chan *protocol.Envelope, 4)
	leave, err := mux.Join("events", func(env *protocol.Envelope) { received <- env })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(registry.Members("events")) == 1 }, waitFor, tick)

	n, err := registry.MessageGroup("events", map[string]string{"reason": "test"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case env := <-received:
		assert.Nil(t, env.Key)
		assert.Equal(t, "events", env.Group)
		assert.JSONEq(t, `{"reason":"test"}`, string(env.Payload))
	case <-time.After(waitFor):
		t.Fatal("envelope not delivered")
	}

	leave()
	require.Eventually(t, func() bool { return len(registry.Members("events")) == 0 }, waitFor, tick)

	n, err = registry.MessageGroup("events", "again")
	require.NoError(t, err)
	assert.Zero(t, n)
	select {
	case env := <-received:
		t.Fatalf("unexpected delivery after leave: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, sup.Close())
	require.Eventually(t, func() bool { return registry.ConnectionCount() == 0 }, waitFor, tick)
}

func TestHandler_MalformedFramesIgnored(t *testing.T) {
	set := metrics.NewSet(metrics.NewRegistry())
	registry, handler, srv := newTestServer(t, WithHandlerMetrics(set))
	conn := dialRaw(t, srv)

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(gorilla.BinaryMessage, []byte{0x01}))
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, protocol.NewJoinCommand("x").MustEncode()))

	require.Eventually(t, func() bool { return len(registry.Members("x")) == 1 }, waitFor, tick)
	assert.Equal(t, 1, handler.ActiveConnections())

	vec, err := set.FramesDropped.WithLabels(metrics.DropMalformed)
	require.NoError(t, err)
	assert.Equal(t, float64(2), vec.Value())
}

func TestHandler_ClientCloseCascades(t *testing.T) {
	registry, handler, srv := newTestServer(t)
	conn := dialRaw(t, srv)

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, protocol.NewJoinCommand("a").MustEncode()))
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, protocol.NewJoinCommand("b").MustEncode()))
	require.Eventually(t, func() bool { return registry.ConnectionCount() == 1 && len(registry.Members("b")) == 1 }, waitFor, tick)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return registry.ConnectionCount() == 0 }, waitFor, tick)
	assert.Empty(t, registry.Members("a"))
	assert.Empty(t, registry.Members("b"))
	require.Eventually(t, func() bool { return handler.ActiveConnections() == 0 }, waitFor, tick)
}

func TestHandler_PongKeepsConnectionAlive(t *testing.T) {
	registry, _, srv := newTestServer(t)
	conn := dialRaw(t, srv)

	// gorilla answers pings while a read is in progress.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, protocol.NewJoinCommand("x").MustEncode()))
	require.Eventually(t, func() bool { return registry.ConnectionCount() == 1 }, waitFor, tick)

	alive := func() bool {
		registry.mu.RLock()
		defer registry.mu.RUnlock()
		for _, data := range registry.connections {
			return data.isAlive
		}
		return false
	}

	for i := 0; i < 3; i++ {
		registry.CheckHeartbeats()
		require.Eventually(t, alive, waitFor, tick, "pong not observed on tick %d", i)
	}
	assert.Equal(t, 1, registry.ConnectionCount())
}

func TestHandler_CloseAll(t *testing.T) {
	_, handler, srv := newTestServer(t)
	conn := dialRaw(t, srv)
	require.Eventually(t, func() bool { return handler.ActiveConnections() == 1 }, waitFor, tick)

	done := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				done <- err
				return
			}
		}
	}()

	assert.Equal(t, 1, handler.CloseAll("shutting down"))

	select {
	case err := <-done:
		assert.True(t, gorilla.IsCloseError(err, gorilla.CloseGoingAway), "got %v", err)
	case <-time.After(waitFor):
		t.Fatal("client not closed")
	}
	require.Eventually(t, func() bool { return handler.ActiveConnections() == 0 }, waitFor, tick)
}

func TestHandler_ReadLimit(t *testing.T) {
	registry, _, srv := newTestServer(t, WithReadLimit(64))
	conn := dialRaw(t, srv)

	big := protocol.NewJoinCommand(strings.Repeat("g", 200)).MustEncode()
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, big))

	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := conn.ReadMessage()
	assert.True(t, gorilla.IsCloseError(err, gorilla.CloseMessageTooBig), "got %v", err)
	assert.Zero(t, registry.ConnectionCount())
}
