package websocket

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/tgnms/groupsocket/pkg/logging"
	"github.com/tgnms/groupsocket/pkg/protocol"
)

// Connection defaults.
const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingTimeout  = 10 * time.Second
)

// Connection is an accepted websocket connection. It implements Peer.
type Connection struct {
	id           string
	conn         *ws.Conn
	remoteAddr   string
	connectedAt  time.Time
	writeTimeout time.Duration
	pingTimeout  time.Duration
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32

	messagesSent atomic.Int64
	messagesRecv atomic.Int64

	sendMu sync.RWMutex // coordinates Send/Ping with Close

	mu            sync.Mutex
	closeHandlers []func()
	pongHandlers  []func()
	closed        bool
}

// NewConnection wraps an accepted websocket.Conn.
func NewConnection(wsConn *ws.Conn, remoteAddr string, logger *slog.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &Connection{
		id:           id,
		conn:         wsConn,
		remoteAddr:   remoteAddr,
		connectedAt:  time.Now(),
		writeTimeout: DefaultWriteTimeout,
		pingTimeout:  DefaultPingTimeout,
		logger:       logging.Component(logger, "connection").With("conn_id", id),
		ctx:          ctx,
		cancel:       cancel,
	}
	c.state.Store(int32(protocol.Open))
	return c
}

// ID returns the connection ID.
func (c *Connection) ID() string { return c.id }

// RemoteAddr returns the client address.
func (c *Connection) RemoteAddr() string { return c.remoteAddr }

// ConnectedAt returns when the connection was accepted.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// MessagesSent returns the number of frames written.
func (c *Connection) MessagesSent() int64 { return c.messagesSent.Load() }

// MessagesReceived returns the number of frames read.
func (c *Connection) MessagesReceived() int64 { return c.messagesRecv.Load() }

// Context is canceled when the connection closes.
func (c *Connection) Context() context.Context { return c.ctx }

// ReadyState returns the connection's readiness.
func (c *Connection) ReadyState() protocol.ReadyState {
	return protocol.ReadyState(c.state.Load())
}

// Send writes a text frame, bounded by the write timeout.
func (c *Connection) Send(data []byte) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.ReadyState() != protocol.Open {
		return ErrConnectionClosed
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, ws.MessageText, data); err != nil {
		return err
	}
	c.messagesSent.Add(1)
	return nil
}

// Read returns the next data frame. A concurrent Read is required for
// Ping to observe pongs.
func (c *Connection) Read() (ws.MessageType, []byte, error) {
	typ, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return 0, nil, err
	}
	c.messagesRecv.Add(1)
	return typ, data, nil
}

// Ping sends a ping in the background. When the pong arrives within the
// ping timeout the pong handlers run.
func (c *Connection) Ping() {
	if c.ReadyState() != protocol.Open {
		return
	}
	go func() {
		c.sendMu.RLock()
		defer c.sendMu.RUnlock()
		if c.ReadyState() != protocol.Open {
			return
		}

		ctx, cancel := context.WithTimeout(c.ctx, c.pingTimeout)
		defer cancel()
		if err := c.conn.Ping(ctx); err != nil {
			c.logger.Debug("ping failed", "error", err)
			return
		}
		c.firePong()
	}()
}

func (c *Connection) firePong() {
	c.mu.Lock()
	handlers := append([]func(){}, c.pongHandlers...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// Terminate drops the connection without a closing handshake.
func (c *Connection) Terminate() {
	c.state.Store(int32(protocol.Closed))
	c.cancel()
	_ = c.conn.CloseNow()
	c.markClosed()
}

// Close performs a closing handshake with the given code and reason.
func (c *Connection) Close(code CloseCode, reason string) error {
	if !c.state.CompareAndSwap(int32(protocol.Open), int32(protocol.Closing)) {
		return ErrConnectionClosed
	}

	c.sendMu.Lock()
	err := c.conn.Close(ws.StatusCode(code), reason)
	c.sendMu.Unlock()

	c.markClosed()
	return err
}

// OnClose registers fn to run once when the connection closes. If it has
// already closed, fn runs immediately.
func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fn()
		return
	}
	c.closeHandlers = append(c.closeHandlers, fn)
	c.mu.Unlock()
}

// OnPong registers fn to run on every successful ping.
func (c *Connection) OnPong(fn func()) {
	c.mu.Lock()
	c.pongHandlers = append(c.pongHandlers, fn)
	c.mu.Unlock()
}

// markClosed moves the connection to Closed and runs the close handlers
// exactly once.
func (c *Connection) markClosed() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	handlers := c.closeHandlers
	c.closeHandlers = nil
	c.pongHandlers = nil
	c.mu.Unlock()

	c.state.Store(int32(protocol.Closed))
	c.cancel()
	for _, fn := range handlers {
		fn()
	}
}
