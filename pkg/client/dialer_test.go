package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgnms/groupsocket/pkg/protocol"
)

// chanEvents forwards ConnEvents to channels.
type chanEvents struct {
	opened   chan struct{}
	received chan []byte
	closed   chan error
}

func newChanEvents() *chanEvents {
	return &chanEvents{
		opened:   make(chan struct{}, 1),
		received: make(chan []byte, 16),
		closed:   make(chan error, 1),
	}
}

func (e *chanEvents) Opened()             { e.opened <- struct{}{} }
func (e *chanEvents) Received(msg []byte) { e.received <- msg }
func (e *chanEvents) Closed(err error)    { e.closed <- err }

// echoServer upgrades with gorilla and echoes every text frame.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/websockets" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				return
			}
			if err := conn.WriteMessage(typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewDialer_Schemes(t *testing.T) {
	d, err := NewDialer("http://example.com:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://example.com:8080/websockets", d.URL("/websockets"))

	d, err = NewDialer("https://example.com/base/")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/ws", d.URL("/ws"))

	_, err = NewDialer("ftp://example.com")
	assert.Error(t, err)
}

func TestDialer_RoundTrip(t *testing.T) {
	srv := echoServer(t)
	d, err := NewDialer(srv.URL, WithHandshakeTimeout(time.Second))
	require.NoError(t, err)

	events := newChanEvents()
	conn := d.Dial("/websockets", events)

	select {
	case <-events.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not open")
	}
	assert.Equal(t, protocol.Open, conn.ReadyState())

	require.NoError(t, conn.Send([]byte(`{"hello":"world"}`)))
	select {
	case msg := <-events.received:
		assert.JSONEq(t, `{"hello":"world"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}

	require.NoError(t, conn.Close())
	select {
	case <-events.closed:
	case <-time.After(3 * time.Second):
		t.Fatal("close not reported")
	}
	assert.Equal(t, protocol.Closed, conn.ReadyState())
	assert.ErrorIs(t, conn.Send([]byte("x")), ErrNotConnected)
}

func TestDialer_FailureReportsClosed(t *testing.T) {
	srv := echoServer(t)
	d, err := NewDialer(srv.URL)
	require.NoError(t, err)

	events := newChanEvents()
	conn := d.Dial("/missing", events)

	select {
	case err := <-events.closed:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("failure not reported")
	}
	assert.Equal(t, protocol.Closed, conn.ReadyState())
	assert.Empty(t, events.opened)
}

func TestDialer_WithSupervisor(t *testing.T) {
	srv := echoServer(t)
	d, err := NewDialer(srv.URL)
	require.NoError(t, err)

	received := make(chan string, 4)
	opens := make(chan struct{}, 4)
	sup := NewSupervisor(d.Dial, WithReconnectDelay(20*time.Millisecond))
	sup.AddObserver(ObserverFuncs{
		OnOpen:    func() { opens <- struct{}{} },
		OnMessage: func(msg []byte) { received <- string(msg) },
	})
	defer sup.Close()

	require.NoError(t, sup.Send([]byte(`"queued"`)))
	sup.Start(context.Background())

	select {
	case msg := <-received:
		assert.Equal(t, `"queued"`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("queued message was not flushed")
	}
	<-opens

	// The server drops the connection; the supervisor dials again.
	require.NoError(t, sup.Send([]byte("bye")))
	select {
	case <-opens:
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not reconnect")
	}
	assert.True(t, sup.IsOpen())
}
