// Package metrics provides Prometheus-compatible metrics for groupsocket.
//
// It implements the text exposition format (text/plain; version=0.0.4)
// directly. Counters, gauges and histograms support label vectors and are
// safe for concurrent use.
//
// # Usage
//
//	set := metrics.NewSet(metrics.NewRegistry())
//	registry := websocket.NewRegistry(websocket.WithMetrics(set))
//
//	http.Handle("/metrics", set.Registry.Handler())
//
// Clients use NewClientSet, which registers only reconnects and dropped
// frames. A nil *Set is valid and records nothing.
package metrics
