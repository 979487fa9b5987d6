package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/tgnms/groupsocket/pkg/logging"
	"github.com/tgnms/groupsocket/pkg/metrics"
	"github.com/tgnms/groupsocket/pkg/protocol"
)

// DefaultReadLimit bounds inbound frames. Commands are tiny.
const DefaultReadLimit int64 = 32 * 1024

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithReadLimit sets the maximum inbound frame size.
func WithReadLimit(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithWriteTimeout bounds each outbound frame.
func WithWriteTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// WithOriginPatterns allows cross-origin upgrades from hosts matching the
// patterns ("*" allows any). Same-origin requests and requests without an
// Origin header are always accepted.
func WithOriginPatterns(patterns ...string) HandlerOption {
	return func(h *Handler) { h.originPatterns = patterns }
}

// WithHandlerMetrics records dropped command frames on set.
func WithHandlerMetrics(set *metrics.Set) HandlerOption {
	return func(h *Handler) { h.metrics = set }
}

// Handler accepts websocket upgrades and feeds client commands to a
// Registry.
type Handler struct {
	registry       *Registry
	readLimit      int64
	writeTimeout   time.Duration
	originPatterns []string
	logger         *slog.Logger
	metrics        *metrics.Set

	mu    sync.Mutex
	conns map[string]*Connection
}

// NewHandler creates a handler serving registry.
func NewHandler(registry *Registry, opts ...HandlerOption) (*Handler, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	h := &Handler{
		registry:     registry,
		readLimit:    DefaultReadLimit,
		writeTimeout: DefaultWriteTimeout,
		conns:        make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.Component(h.logger, "handler")
	return h, nil
}

// ServeHTTP upgrades the request and runs the connection's read loop until
// it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := ws.Accept(w, r, &ws.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: ws.CompressionDisabled,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		h.logger.Debug("upgrade rejected", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	wsConn.SetReadLimit(h.readLimit)

	conn := NewConnection(wsConn, r.RemoteAddr, h.logger)
	conn.writeTimeout = h.writeTimeout
	h.track(conn)
	h.logger.Info("connection opened", "conn_id", conn.ID(), "remote_addr", conn.RemoteAddr())

	h.handleConnection(conn)
}

func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.untrack(conn)
		conn.Terminate()
		h.logger.Info("connection closed", "conn_id", conn.ID(),
			"received", conn.MessagesReceived(), "sent", conn.MessagesSent())
	}()

	for {
		typ, data, err := conn.Read()
		if err != nil {
			if ws.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.logger.Debug("read failed", "conn_id", conn.ID(), "error", err)
			}
			return
		}
		if typ != ws.MessageText {
			h.logger.Debug("ignoring binary frame", "conn_id", conn.ID())
			h.metrics.Dropped(metrics.DropMalformed)
			continue
		}

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			h.logger.Warn("ignoring malformed command", "conn_id", conn.ID(), "error", err)
			h.metrics.Dropped(metrics.DropMalformed)
			continue
		}
		h.registry.ProcessCommand(cmd, conn)
	}
}

func (h *Handler) track(conn *Connection) {
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	h.mu.Unlock()
}

func (h *Handler) untrack(conn *Connection) {
	h.mu.Lock()
	delete(h.conns, conn.ID())
	h.mu.Unlock()
}

// ActiveConnections returns the number of open connections, whether or not
// they have joined a group.
func (h *Handler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll closes every open connection with CloseGoingAway. It is used on
// shutdown, since http.Server.Shutdown does not track hijacked connections.
func (h *Handler) CloseAll(reason string) int {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Close(CloseGoingAway, reason)
		}()
	}
	wg.Wait()
	return len(conns)
}
