package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tgnms/groupsocket/pkg/admin"
	"github.com/tgnms/groupsocket/pkg/config"
	"github.com/tgnms/groupsocket/pkg/ingest"
	"github.com/tgnms/groupsocket/pkg/metrics"
	"github.com/tgnms/groupsocket/pkg/websocket"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 10 * time.Second

// server wires the registry, websocket endpoint, admin API and ingest
// sources of one groupsocket process.
type server struct {
	cfg *config.Config
	log *slog.Logger

	metrics  *metrics.Set
	registry *websocket.Registry
	handler  *websocket.Handler
	api      *admin.API
	broker   *ingest.Broker
	bridge   *ingest.Bridge

	wsListener    net.Listener
	adminListener net.Listener
}

// newServer builds every component from cfg without binding any port.
func newServer(cfg *config.Config, log *slog.Logger) (*server, error) {
	s := &server{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewSet(metrics.NewRegistry()),
	}

	s.registry = websocket.NewRegistry(
		websocket.WithLogger(log),
		websocket.WithMetrics(s.metrics),
	)

	handler, err := websocket.NewHandler(s.registry,
		websocket.WithReadLimit(cfg.Server.ReadLimit),
		websocket.WithWriteTimeout(cfg.Server.WriteTimeout),
		websocket.WithOriginPatterns(cfg.Server.OriginPatterns...),
		websocket.WithHandlerLogger(log),
		websocket.WithHandlerMetrics(s.metrics),
	)
	if err != nil {
		return nil, err
	}
	s.handler = handler

	if cfg.Server.AdminAddr != "" {
		s.api, err = admin.NewAPI(s.registry,
			admin.WithLogger(log),
			admin.WithMetrics(s.metrics),
			admin.WithConnectionCounter(s.handler),
		)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Ingest.Broker.Enabled || cfg.Ingest.Bridge.URL != "" {
		router := ingest.NewRouter(s.registry, cfg.Ingest.Prefix,
			ingest.WithLogger(log),
			ingest.WithMetrics(s.metrics),
		)
		if cfg.Ingest.Broker.Enabled {
			if s.broker, err = ingest.NewBroker(cfg.Ingest.Broker.Addr, router, ingest.WithLogger(log)); err != nil {
				return nil, err
			}
		}
		if cfg.Ingest.Bridge.URL != "" {
			s.bridge, err = ingest.NewBridge(ingest.BridgeConfig{
				URL:      cfg.Ingest.Bridge.URL,
				ClientID: cfg.Ingest.Bridge.ClientID,
				QoS:      byte(cfg.Ingest.Bridge.QoS),
			}, router, ingest.WithLogger(log))
			if err != nil {
				return nil, err
			}
		}
	}

	return s, nil
}

// listen binds the websocket and admin ports.
func (s *server) listen() error {
	var err error
	if s.wsListener, err = net.Listen("tcp", s.cfg.Server.Addr); err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Addr, err)
	}
	if s.api != nil {
		if s.adminListener, err = net.Listen("tcp", s.cfg.Server.AdminAddr); err != nil {
			_ = s.wsListener.Close()
			return fmt.Errorf("admin listen on %s: %w", s.cfg.Server.AdminAddr, err)
		}
	}
	return nil
}

// run serves until ctx is done or a component fails, then shuts every
// component down. listen must have been called.
func (s *server) run(ctx context.Context) error {
	if s.broker != nil {
		if err := s.broker.Start(ctx); err != nil {
			s.closeListeners()
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.registry.RunHeartbeat(ctx, s.cfg.Server.HeartbeatInterval)
	})
	g.Go(func() error {
		return s.serveWebsocket(ctx)
	})
	if s.api != nil {
		g.Go(func() error {
			return s.api.Serve(ctx, s.adminListener)
		})
	}
	if s.broker != nil {
		g.Go(func() error {
			<-ctx.Done()
			return s.broker.Stop(context.Background(), shutdownTimeout)
		})
	}
	if s.bridge != nil {
		g.Go(func() error {
			if err := s.bridge.Start(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			<-ctx.Done()
			s.bridge.Stop()
			return nil
		})
	}

	return g.Wait()
}

func (s *server) closeListeners() {
	_ = s.wsListener.Close()
	if s.adminListener != nil {
		_ = s.adminListener.Close()
	}
}

func (s *server) serveWebsocket(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Server.Path, s.handler)

	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("websocket endpoint listening",
			"addr", s.wsListener.Addr().String(), "path", s.cfg.Server.Path)
		errCh <- httpServer.Serve(s.wsListener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Shutdown does not wait for hijacked connections, so close them first.
	n := s.handler.CloseAll("server shutting down")
	s.log.Info("closed websocket connections", "count", n)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
