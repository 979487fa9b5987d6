package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by LoadEnvConfig.
const EnvPrefix = "GROUPSOCKET_"

// EnvVars maps environment variable names (without prefix) to config keys.
var EnvVars = map[string]string{
	"ADDR":               "server.addr",
	"PATH":               "server.path",
	"ADMIN_ADDR":         "server.adminAddr",
	"HEARTBEAT_INTERVAL": "server.heartbeatInterval",
	"WRITE_TIMEOUT":      "server.writeTimeout",
	"READ_LIMIT":         "server.readLimit",
	"ORIGIN_PATTERNS":    "server.originPatterns",
	"URL":                "client.url",
	"CLIENT_PATH":        "client.path",
	"RECONNECT_DELAY":    "client.reconnectDelay",
	"INGEST_PREFIX":      "ingest.prefix",
	"BROKER_ENABLED":     "ingest.broker.enabled",
	"BROKER_ADDR":        "ingest.broker.addr",
	"BRIDGE_URL":         "ingest.bridge.url",
	"BRIDGE_CLIENT_ID":   "ingest.bridge.clientId",
	"BRIDGE_QOS":         "ingest.bridge.qos",
	"LOG_LEVEL":          "log.level",
	"LOG_FORMAT":         "log.format",
	"LOG_FILE":           "log.file",
}

// LoadEnvConfig applies GROUPSOCKET_* environment variables to cfg.
func LoadEnvConfig(cfg *Config) error {
	for name, key := range EnvVars {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := cfg.Set(key, v, SourceEnv); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}

// Set assigns a string value to the dotted key and records its source.
// It is used by the environment loader and by CLI flag overrides.
func (c *Config) Set(key, value, source string) error {
	var err error
	switch key {
	case "server.addr":
		c.Server.Addr = value
	case "server.path":
		c.Server.Path = value
	case "server.adminAddr":
		c.Server.AdminAddr = value
	case "server.heartbeatInterval":
		c.Server.HeartbeatInterval, err = time.ParseDuration(value)
	case "server.writeTimeout":
		c.Server.WriteTimeout, err = time.ParseDuration(value)
	case "server.readLimit":
		c.Server.ReadLimit, err = strconv.ParseInt(value, 10, 64)
	case "server.originPatterns":
		c.Server.OriginPatterns = splitList(value)
	case "client.url":
		c.Client.URL = value
	case "client.path":
		c.Client.Path = value
	case "client.reconnectDelay":
		c.Client.ReconnectDelay, err = time.ParseDuration(value)
	case "ingest.prefix":
		c.Ingest.Prefix = value
	case "ingest.broker.enabled":
		c.Ingest.Broker.Enabled, err = strconv.ParseBool(value)
	case "ingest.broker.addr":
		c.Ingest.Broker.Addr = value
	case "ingest.bridge.url":
		c.Ingest.Bridge.URL = value
	case "ingest.bridge.clientId":
		c.Ingest.Bridge.ClientID = value
	case "ingest.bridge.qos":
		c.Ingest.Bridge.QoS, err = strconv.Atoi(value)
	case "log.level":
		c.Log.Level = value
	case "log.format":
		c.Log.Format = value
	case "log.file":
		c.Log.File = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}

	if c.Sources == nil {
		c.Sources = make(map[string]string)
	}
	c.Sources[key] = source
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
