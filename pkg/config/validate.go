package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinHeartbeatInterval is the smallest accepted heartbeat interval.
const MinHeartbeatInterval = 100 * time.Millisecond

// Validate checks value ranges. It reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr cannot be empty")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		add("server.path %q must start with /", c.Server.Path)
	}
	if c.Server.HeartbeatInterval < MinHeartbeatInterval {
		add("server.heartbeatInterval %s is below %s", c.Server.HeartbeatInterval, MinHeartbeatInterval)
	}
	if c.Server.WriteTimeout <= 0 {
		add("server.writeTimeout %s must be positive", c.Server.WriteTimeout)
	}
	if c.Server.ReadLimit <= 0 {
		add("server.readLimit %d must be positive", c.Server.ReadLimit)
	}

	if !strings.HasPrefix(c.Client.Path, "/") {
		add("client.path %q must start with /", c.Client.Path)
	}
	if c.Client.ReconnectDelay <= 0 {
		add("client.reconnectDelay %s must be positive", c.Client.ReconnectDelay)
	}

	if c.Ingest.Prefix == "" || strings.ContainsAny(c.Ingest.Prefix, "#+") {
		add("ingest.prefix %q must be non-empty and free of MQTT wildcards", c.Ingest.Prefix)
	}
	if c.Ingest.Broker.Enabled && c.Ingest.Broker.Addr == "" {
		add("ingest.broker.addr cannot be empty when the broker is enabled")
	}
	if c.Ingest.Bridge.QoS < 0 || c.Ingest.Bridge.QoS > 2 {
		add("ingest.bridge.qos %d is out of range (0-2)", c.Ingest.Bridge.QoS)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format %q is not one of text, json", c.Log.Format)
	}

	return errors.Join(errs...)
}
