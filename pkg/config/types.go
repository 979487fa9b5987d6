// Package config provides configuration types and loading for groupsocket.
package config

import "time"

// Config is the complete groupsocket configuration.
// Values come from several sources with the following precedence:
//  1. Command-line flags (highest priority)
//  2. Environment variables (GROUPSOCKET_*)
//  3. Local config file (.groupsocket.yaml in the current directory)
//  4. Global config file ($XDG_CONFIG_HOME/groupsocket/config.yaml)
//  5. Default values (lowest priority)
type Config struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Client ClientConfig `yaml:"client" json:"client"`
	Ingest IngestConfig `yaml:"ingest" json:"ingest"`
	Log    LogConfig    `yaml:"log" json:"log"`

	// Sources records where each value came from, keyed by dotted path
	// (e.g. "server.addr").
	Sources map[string]string `yaml:"-" json:"-"`

	// setFields holds the dotted keys present in a loaded file. It lets
	// MergeConfig tell an explicit false or zero apart from an absent key.
	setFields map[string]bool
}

// ServerConfig configures the websocket endpoint and admin API.
type ServerConfig struct {
	Addr              string        `yaml:"addr" json:"addr"`
	Path              string        `yaml:"path" json:"path"`
	AdminAddr         string        `yaml:"adminAddr" json:"adminAddr"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" json:"heartbeatInterval"`
	WriteTimeout      time.Duration `yaml:"writeTimeout" json:"writeTimeout"`
	ReadLimit         int64         `yaml:"readLimit" json:"readLimit"`
	OriginPatterns    []string      `yaml:"originPatterns,omitempty" json:"originPatterns,omitempty"`
}

// ClientConfig configures the listen command.
type ClientConfig struct {
	URL            string        `yaml:"url" json:"url"`
	Path           string        `yaml:"path" json:"path"`
	ReconnectDelay time.Duration `yaml:"reconnectDelay" json:"reconnectDelay"`
}

// IngestConfig configures the MQTT event sources.
type IngestConfig struct {
	Prefix string       `yaml:"prefix" json:"prefix"`
	Broker BrokerConfig `yaml:"broker" json:"broker"`
	Bridge BridgeConfig `yaml:"bridge" json:"bridge"`
}

// BrokerConfig configures the embedded MQTT broker.
type BrokerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// BridgeConfig configures the bridge to an external MQTT broker.
// The bridge is disabled when URL is empty.
type BridgeConfig struct {
	URL      string `yaml:"url,omitempty" json:"url,omitempty"`
	ClientID string `yaml:"clientId" json:"clientId"`
	QoS      int    `yaml:"qos" json:"qos"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// Config sources.
const (
	SourceDefault = "default"
	SourceEnv     = "env"
	SourceGlobal  = "global"
	SourceLocal   = "local"
	SourceFile    = "file"
	SourceFlag    = "flag"
)
