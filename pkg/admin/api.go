package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tgnms/groupsocket/pkg/logging"
	"github.com/tgnms/groupsocket/pkg/metrics"
	"github.com/tgnms/groupsocket/pkg/websocket"
)

// DefaultMaxBodySize bounds published payloads.
const DefaultMaxBodySize int64 = 1 << 20

const shutdownTimeout = 5 * time.Second

// Backend is the registry surface the admin API needs. *websocket.Registry
// implements it.
type Backend interface {
	MessageGroup(name string, payload any) (int, error)
	Groups() []websocket.GroupInfo
	Members(name string) []string
	Stats() websocket.Stats
}

// ConnectionCounter reports open connections, including those that have
// not joined a group. *websocket.Handler implements it.
type ConnectionCounter interface {
	ActiveConnections() int
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the API logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) { a.log = log }
}

// WithMetrics serves set.Registry at GET /metrics and counts published messages
// on set.
func WithMetrics(set *metrics.Set) Option {
	return func(a *API) { a.metrics = set }
}

// WithConnectionCounter adds the open connection count to GET /api/stats.
func WithConnectionCounter(c ConnectionCounter) Option {
	return func(a *API) { a.conns = c }
}

// WithMaxBodySize limits POSTed payloads.
func WithMaxBodySize(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodySize = n
		}
	}
}

// API is the HTTP admin surface of a groupsocket server.
type API struct {
	backend     Backend
	conns       ConnectionCounter
	metrics     *metrics.Set
	log         *slog.Logger
	maxBodySize int64
	startTime   time.Time
	handler     http.Handler
	httpServer  *http.Server
}

// NewAPI creates an admin API over backend.
func NewAPI(backend Backend, opts ...Option) (*API, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	a := &API{
		backend:     backend,
		maxBodySize: DefaultMaxBodySize,
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.Component(a.log, "admin")

	mux := http.NewServeMux()
	a.registerRoutes(mux)
	a.handler = NewLoggingMiddleware(mux, a.log)
	return a, nil
}

// Handler returns the API's http.Handler.
func (a *API) Handler() http.Handler { return a.handler }

// Uptime returns the API uptime in seconds.
func (a *API) Uptime() int64 {
	return int64(time.Since(a.startTime).Seconds())
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (a *API) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", addr, err)
	}
	return a.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then shuts down.
func (a *API) Serve(ctx context.Context, l net.Listener) error {
	a.httpServer = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting admin API", "addr", l.Addr().String())
		errCh <- a.httpServer.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return a.Stop()
	}
}

// Stop gracefully shuts down the server.
func (a *API) Stop() error {
	if a.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.httpServer.Shutdown(ctx)
}
