package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tgnms/groupsocket/pkg/logging"
	"github.com/tgnms/groupsocket/pkg/metrics"
)

// Bridge defaults.
const (
	DefaultBridgeClientID = "groupsocket-bridge"
	DefaultBridgeQoS      = 1
	disconnectQuiesce     = 250 // ms
)

// BridgeConfig describes the external broker to follow.
type BridgeConfig struct {
	// URL is the broker address, e.g. tcp://broker:1883.
	URL      string
	ClientID string
	QoS      byte
	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration
}

// Bridge subscribes to an external MQTT broker and routes every message
// under the router prefix into groups.
type Bridge struct {
	cfg    BridgeConfig
	router *Router
	client paho.Client
	log    *slog.Logger
}

// NewBridge configures a bridge. It does not connect until Start.
func NewBridge(cfg BridgeConfig, router *Router, opts ...Option) (*Bridge, error) {
	if router == nil {
		return nil, errors.New("router cannot be nil")
	}
	if cfg.URL == "" {
		return nil, errors.New("bridge URL is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid QoS %d", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultBridgeClientID
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	o := buildOptions(opts)
	b := &Bridge{
		cfg:    cfg,
		router: router,
		log:    logging.Component(o.logger, "mqtt-bridge").With("broker", cfg.URL),
	}

	clientOpts := paho.NewClientOptions()
	clientOpts.AddBroker(cfg.URL)
	clientOpts.SetClientID(cfg.ClientID)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectTimeout(cfg.ConnectTimeout)
	clientOpts.SetCleanSession(true)
	// Subscriptions do not survive a clean session, so resubscribe on
	// every (re)connect.
	clientOpts.SetOnConnectHandler(b.subscribe)
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		b.log.Warn("connection lost", "error", err)
	})
	b.client = paho.NewClient(clientOpts)
	return b, nil
}

// Start connects to the broker, returning once connected or when ctx ends.
func (b *Bridge) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token := b.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", b.cfg.URL, err)
	}
	return nil
}

// Stop disconnects from the broker.
func (b *Bridge) Stop() {
	if b.client.IsConnected() {
		b.client.Disconnect(disconnectQuiesce)
	}
}

// IsConnected reports whether the bridge has a live broker connection.
func (b *Bridge) IsConnected() bool { return b.client.IsConnectionOpen() }

func (b *Bridge) subscribe(c paho.Client) {
	filter := b.router.Filter()
	token := c.Subscribe(filter, b.cfg.QoS, b.handle)
	go func() {
		if !token.WaitTimeout(b.cfg.ConnectTimeout) {
			b.log.Error("subscribe timed out", "filter", filter)
			return
		}
		if err := token.Error(); err != nil {
			b.log.Error("subscribe failed", "filter", filter, "error", err)
			return
		}
		b.log.Info("subscribed", "filter", filter, "qos", b.cfg.QoS)
	}()
}

func (b *Bridge) handle(_ paho.Client, msg paho.Message) {
	if _, err := b.router.Route(metrics.SourceBridge, msg.Topic(), msg.Payload()); err != nil {
		b.log.Debug("message not routed", "topic", msg.Topic(), "error", err)
	}
}
