package config

import "time"

// MergeConfig merges source into target and records sourceType for every
// applied value. Keys present in a loaded file are always applied, so an
// explicit false or zero overrides a lower layer. For configs built in code,
// only non-zero values are applied.
func MergeConfig(target, source *Config, sourceType string) {
	if source == nil {
		return
	}
	if target.Sources == nil {
		target.Sources = make(map[string]string)
	}

	m := merger{target: target, source: source, kind: sourceType}

	mergeValue(m, "server.addr", &target.Server.Addr, source.Server.Addr)
	mergeValue(m, "server.path", &target.Server.Path, source.Server.Path)
	mergeValue(m, "server.adminAddr", &target.Server.AdminAddr, source.Server.AdminAddr)
	mergeValue(m, "server.heartbeatInterval", &target.Server.HeartbeatInterval, source.Server.HeartbeatInterval)
	mergeValue(m, "server.writeTimeout", &target.Server.WriteTimeout, source.Server.WriteTimeout)
	mergeValue(m, "server.readLimit", &target.Server.ReadLimit, source.Server.ReadLimit)
	if m.present("server.originPatterns", len(source.Server.OriginPatterns) > 0) {
		target.Server.OriginPatterns = append([]string(nil), source.Server.OriginPatterns...)
		target.Sources["server.originPatterns"] = sourceType
	}

	mergeValue(m, "client.url", &target.Client.URL, source.Client.URL)
	mergeValue(m, "client.path", &target.Client.Path, source.Client.Path)
	mergeValue(m, "client.reconnectDelay", &target.Client.ReconnectDelay, source.Client.ReconnectDelay)

	mergeValue(m, "ingest.prefix", &target.Ingest.Prefix, source.Ingest.Prefix)
	mergeValue(m, "ingest.broker.enabled", &target.Ingest.Broker.Enabled, source.Ingest.Broker.Enabled)
	mergeValue(m, "ingest.broker.addr", &target.Ingest.Broker.Addr, source.Ingest.Broker.Addr)
	mergeValue(m, "ingest.bridge.url", &target.Ingest.Bridge.URL, source.Ingest.Bridge.URL)
	mergeValue(m, "ingest.bridge.clientId", &target.Ingest.Bridge.ClientID, source.Ingest.Bridge.ClientID)
	mergeValue(m, "ingest.bridge.qos", &target.Ingest.Bridge.QoS, source.Ingest.Bridge.QoS)

	mergeValue(m, "log.level", &target.Log.Level, source.Log.Level)
	mergeValue(m, "log.format", &target.Log.Format, source.Log.Format)
	mergeValue(m, "log.file", &target.Log.File, source.Log.File)
}

type merger struct {
	target *Config
	source *Config
	kind   string
}

func (m merger) present(key string, nonZero bool) bool {
	if m.source.setFields != nil {
		return m.source.setFields[key]
	}
	return nonZero
}

func mergeValue[T string | bool | int | int64 | time.Duration](m merger, key string, dst *T, v T) {
	var zero T
	if !m.present(key, v != zero) {
		return
	}
	*dst = v
	m.target.Sources[key] = m.kind
}
