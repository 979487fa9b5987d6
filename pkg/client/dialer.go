package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tgnms/groupsocket/pkg/logging"
	"github.com/tgnms/groupsocket/pkg/protocol"
)

// Dialer defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	closeGracePeriod        = time.Second
)

// DialerOption configures a Dialer.
type DialerOption func(*Dialer)

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) DialerOption {
	return func(dl *Dialer) { dl.dialer.HandshakeTimeout = d }
}

// WithWriteTimeout bounds every frame write.
func WithWriteTimeout(d time.Duration) DialerOption {
	return func(dl *Dialer) { dl.writeTimeout = d }
}

// WithHeader adds headers to the opening handshake.
func WithHeader(h http.Header) DialerOption {
	return func(dl *Dialer) { dl.header = h.Clone() }
}

// WithDialerLogger sets the logger.
func WithDialerLogger(logger *slog.Logger) DialerOption {
	return func(dl *Dialer) { dl.logger = logger }
}

// Dialer opens gorilla/websocket connections relative to a base URL.
// Its Dial method is a Factory.
type Dialer struct {
	base         *url.URL
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewDialer creates a dialer for baseURL (ws:// or wss://, http(s) is
// rewritten).
func NewDialer(baseURL string, opts ...DialerOption) (*Dialer, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	switch base.Scheme {
	case "ws", "wss":
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid base url %q: scheme must be ws or wss", baseURL)
	}

	d := &Dialer{
		base: base,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.Component(d.logger, "dialer")
	return d, nil
}

// URL resolves path against the base URL.
func (d *Dialer) URL(path string) string {
	ref := &url.URL{Path: path}
	return d.base.ResolveReference(ref).String()
}

// Dial starts connecting to path in the background and returns at once.
func (d *Dialer) Dial(path string, events ConnEvents) Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		dialer: d,
		url:    d.URL(path),
		events: events,
		cancel: cancel,
	}
	c.state.Store(int32(protocol.Connecting))
	go c.run(ctx)
	return c
}

// wsConn is one gorilla connection driven by its own goroutine.
type wsConn struct {
	dialer *Dialer
	url    string
	events ConnEvents
	cancel context.CancelFunc
	state  atomic.Int32

	mu   sync.Mutex // guards ws and serializes writes
	ws   *websocket.Conn
	once sync.Once
}

func (c *wsConn) run(ctx context.Context) {
	defer c.cancel()

	ws, resp, err := c.dialer.dialer.DialContext(ctx, c.url, c.dialer.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.dialer.logger.Debug("dial failed", "url", c.url, "error", err)
		c.finish(err)
		return
	}

	c.mu.Lock()
	if c.ReadyState() != protocol.Connecting {
		// Closed while dialing.
		c.mu.Unlock()
		_ = ws.Close()
		c.finish(errClosedBeforeOpen)
		return
	}
	c.ws = ws
	c.state.Store(int32(protocol.Open))
	c.mu.Unlock()

	c.events.Opened()

	for {
		typ, data, err := ws.ReadMessage()
		if err != nil {
			_ = ws.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.finish(err)
			return
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			c.events.Received(data)
		}
	}
}

func (c *wsConn) finish(err error) {
	c.once.Do(func() {
		c.state.Store(int32(protocol.Closed))
		c.events.Closed(err)
	})
}

func (c *wsConn) ReadyState() protocol.ReadyState {
	return protocol.ReadyState(c.state.Load())
}

func (c *wsConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil || c.ReadyState() != protocol.Open {
		return ErrNotConnected
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.dialer.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// Close sends a close frame and gives the peer a short grace period to
// answer before the read loop gives up.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.ReadyState() {
	case protocol.Closing, protocol.Closed:
		return nil
	}
	c.state.Store(int32(protocol.Closing))
	c.cancel()

	if c.ws == nil {
		return nil
	}
	deadline := time.Now().Add(closeGracePeriod)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.ws.SetReadDeadline(deadline)
	return err
}
