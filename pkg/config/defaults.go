package config

import "time"

// Default values.
const (
	DefaultAddr              = ":8080"
	DefaultPath              = "/websockets"
	DefaultAdminAddr         = ":8081"
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultReadLimit         = 32 * 1024
	DefaultClientURL         = "ws://localhost:8080"
	DefaultReconnectDelay    = 2 * time.Second
	DefaultIngestPrefix      = "groupsocket"
	DefaultBrokerAddr        = ":1883"
	DefaultBridgeClientID    = "groupsocket-bridge"
	DefaultBridgeQoS         = 1
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// NewDefault returns a Config populated with defaults.
func NewDefault() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Addr:              DefaultAddr,
			Path:              DefaultPath,
			AdminAddr:         DefaultAdminAddr,
			HeartbeatInterval: DefaultHeartbeatInterval,
			WriteTimeout:      DefaultWriteTimeout,
			ReadLimit:         DefaultReadLimit,
		},
		Client: ClientConfig{
			URL:            DefaultClientURL,
			Path:           DefaultPath,
			ReconnectDelay: DefaultReconnectDelay,
		},
		Ingest: IngestConfig{
			Prefix: DefaultIngestPrefix,
			Broker: BrokerConfig{Addr: DefaultBrokerAddr},
			Bridge: BridgeConfig{ClientID: DefaultBridgeClientID, QoS: DefaultBridgeQoS},
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Sources: make(map[string]string),
	}

	for _, key := range Keys {
		cfg.Sources[key] = SourceDefault
	}
	return cfg
}

// Keys lists every configurable dotted key.
var Keys = []string{
	"server.addr",
	"server.path",
	"server.adminAddr",
	"server.heartbeatInterval",
	"server.writeTimeout",
	"server.readLimit",
	"server.originPatterns",
	"client.url",
	"client.path",
	"client.reconnectDelay",
	"ingest.prefix",
	"ingest.broker.enabled",
	"ingest.broker.addr",
	"ingest.bridge.url",
	"ingest.bridge.clientId",
	"ingest.bridge.qos",
	"log.level",
	"log.format",
	"log.file",
}
