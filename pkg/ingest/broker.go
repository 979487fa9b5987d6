package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/tgnms/groupsocket/pkg/logging"
	"github.com/tgnms/groupsocket/pkg/metrics"
)

// DefaultBrokerAddr is the standard MQTT port.
const DefaultBrokerAddr = ":1883"

// Broker is an embedded MQTT broker. Every message published to a
// routable topic is broadcast to the matching group.
type Broker struct {
	addr   string
	router *Router
	server *mqtt.Server
	log    *slog.Logger

	mu      sync.Mutex
	running bool

	// stopping keeps the publish hook from routing while the server closes.
	stopping atomic.Bool
}

// NewBroker creates a broker listening on addr once started.
func NewBroker(addr string, router *Router, opts ...Option) (*Broker, error) {
	if router == nil {
		return nil, errors.New("router cannot be nil")
	}
	if addr == "" {
		addr = DefaultBrokerAddr
	}
	o := buildOptions(opts)
	log := logging.Component(o.logger, "mqtt-broker")

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       log,
	})

	// mochi-mqtt requires an auth hook.
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("failed to add allow hook: %w", err)
	}

	b := &Broker{addr: addr, router: router, server: server, log: log}
	if err := server.AddHook(&routeHook{broker: b}, nil); err != nil {
		return nil, fmt.Errorf("failed to add route hook: %w", err)
	}
	return b, nil
}

// Addr returns the configured listen address.
func (b *Broker) Addr() string { return b.addr }

// Start binds the listener and serves in the background.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return errors.New("broker is already running")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	listener := listeners.NewTCP(listeners.Config{
		ID:      "groupsocket-" + b.addr,
		Address: b.addr,
	})
	if err := b.server.AddListener(listener); err != nil {
		return fmt.Errorf("failed to add listener: %w", err)
	}

	go func() {
		if err := b.server.Serve(); err != nil {
			b.log.Error("MQTT server error", "error", err)
		}
	}()

	b.running = true
	b.stopping.Store(false)
	b.log.Info("MQTT broker listening", "addr", b.addr, "filter", b.router.Filter())
	return nil
}

// Stop closes the broker, waiting at most timeout.
func (b *Broker) Stop(ctx context.Context, timeout time.Duration) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.stopping.Store(true)
	b.running = false
	b.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.server.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to close server: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
	}
}

// IsRunning reports whether the broker is serving.
func (b *Broker) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// routeHook feeds published packets to the router.
type routeHook struct {
	mqtt.HookBase
	broker *Broker
}

func (h *routeHook) ID() string { return "groupsocket-route" }

func (h *routeHook) Provides(b byte) bool {
	return bytes.Contains([]byte{mqtt.OnPublish}, []byte{b})
}

// OnPublish routes the packet and lets it continue to MQTT subscribers.
func (h *routeHook) OnPublish(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	if h.broker.stopping.Load() {
		return pk, nil
	}
	if _, err := h.broker.router.Route(metrics.SourceBroker, pk.TopicName, pk.Payload); err != nil {
		h.broker.log.Debug("publish not routed", "client", cl.ID, "topic", pk.TopicName, "error", err)
	}
	return pk, nil
}
