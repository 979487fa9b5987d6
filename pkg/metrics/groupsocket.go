package metrics

import (
	"runtime"
	"time"
)

// Frame drop reasons used with FramesDropped.
const (
	DropMalformed    = "malformed"
	DropUnknownGroup = "unknown_group"
	DropNotOpen      = "not_open"
	DropSendError    = "send_error"
	DropInvalidTopic = "invalid_topic"
	DropInvalidJSON  = "invalid_json"
)

// Ingest source labels.
const (
	SourceBroker = "broker"
	SourceBridge = "bridge"
	SourceAdmin  = "admin"
)

// RecipientBuckets bucket the fan-out size of a single broadcast.
var RecipientBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000}

// Set is the groupsocket metric set. All methods are safe on a nil *Set
// and on a Set whose metric is not registered, so a server set and a
// client set share one type.
type Set struct {
	Registry *Registry

	// ConnectionsTracked is the number of connections with registry metadata.
	ConnectionsTracked *Gauge
	// Groups is the number of groups known to the registry.
	Groups *Gauge
	// GroupJoins counts connection-to-group joins that changed membership.
	GroupJoins *Counter
	// GroupLeaves counts explicit leaves and close-cascade removals.
	GroupLeaves *Counter
	// MessagesBroadcast counts MessageGroup calls.
	MessagesBroadcast *Counter
	// BroadcastRecipients is the distribution of recipients per broadcast.
	BroadcastRecipients *Histogram
	// FramesDropped counts frames that were not delivered. Labels: reason
	FramesDropped *Counter
	// HeartbeatTerminations counts connections reaped for missing a pong.
	HeartbeatTerminations *Counter
	// ClientReconnects counts reconnect attempts made by a client supervisor.
	// Only client sets register it.
	ClientReconnects *Counter
	// IngestMessages counts messages routed into groups. Labels: source
	IngestMessages *Counter

	goroutines *Gauge
	heapAlloc  *Gauge
	uptime     *Gauge
}

// NewSet registers the server metrics on r.
func NewSet(r *Registry) *Set {
	s := &Set{
		Registry: r,
		ConnectionsTracked: r.NewGauge("groupsocket_connections_tracked",
			"Number of websocket connections tracked by the group registry"),
		Groups: r.NewGauge("groupsocket_groups",
			"Number of groups known to the registry"),
		GroupJoins: r.NewCounter("groupsocket_group_joins_total",
			"Total number of group joins"),
		GroupLeaves: r.NewCounter("groupsocket_group_leaves_total",
			"Total number of group leaves, including close cascades"),
		MessagesBroadcast: r.NewCounter("groupsocket_messages_broadcast_total",
			"Total number of messages broadcast to a group"),
		BroadcastRecipients: r.NewHistogram("groupsocket_broadcast_recipients",
			"Number of open connections that received a broadcast", RecipientBuckets),
		FramesDropped: r.NewCounter("groupsocket_frames_dropped_total",
			"Total number of frames dropped", "reason"),
		HeartbeatTerminations: r.NewCounter("groupsocket_heartbeat_terminations_total",
			"Total number of connections terminated by the heartbeat monitor"),
		IngestMessages: r.NewCounter("groupsocket_ingest_messages_total",
			"Total number of ingested messages routed to groups", "source"),
		goroutines: r.NewGauge("go_goroutines",
			"Number of goroutines that currently exist"),
		heapAlloc: r.NewGauge("go_memstats_heap_alloc_bytes",
			"Number of heap bytes allocated and still in use"),
		uptime: r.NewGauge("groupsocket_uptime_seconds",
			"Process uptime in seconds"),
	}

	start := time.Now()
	r.OnCollect(func() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		_ = s.goroutines.Set(float64(runtime.NumGoroutine()))
		_ = s.heapAlloc.Set(float64(ms.HeapAlloc))
		_ = s.uptime.Set(time.Since(start).Seconds())
	})
	return s
}

// NewClientSet registers the metrics a client supervisor and multiplexer
// record: reconnects and dropped frames.
func NewClientSet(r *Registry) *Set {
	return &Set{
		Registry: r,
		FramesDropped: r.NewCounter("groupsocket_frames_dropped_total",
			"Total number of frames dropped", "reason"),
		ClientReconnects: r.NewCounter("groupsocket_client_reconnects_total",
			"Total number of client reconnect attempts"),
	}
}

// SetConnections records the tracked connection and group counts.
func (s *Set) SetConnections(connections, groups int) {
	if s == nil || s.ConnectionsTracked == nil {
		return
	}
	_ = s.ConnectionsTracked.Set(float64(connections))
	_ = s.Groups.Set(float64(groups))
}

// Joined counts a membership change caused by a join.
func (s *Set) Joined() {
	if s == nil || s.GroupJoins == nil {
		return
	}
	_ = s.GroupJoins.Inc()
}

// Left counts n removed memberships.
func (s *Set) Left(n int) {
	if s == nil || s.GroupLeaves == nil || n <= 0 {
		return
	}
	_ = s.GroupLeaves.Add(float64(n))
}

// Broadcast records one MessageGroup call.
func (s *Set) Broadcast(recipients int) {
	if s == nil || s.MessagesBroadcast == nil {
		return
	}
	_ = s.MessagesBroadcast.Inc()
	_ = s.BroadcastRecipients.Observe(float64(recipients))
}

// Dropped counts a dropped frame.
func (s *Set) Dropped(reason string) {
	if s == nil || s.FramesDropped == nil {
		return
	}
	if vec, err := s.FramesDropped.WithLabels(reason); err == nil {
		_ = vec.Inc()
	}
}

// Terminated counts a heartbeat termination.
func (s *Set) Terminated() {
	if s == nil || s.HeartbeatTerminations == nil {
		return
	}
	_ = s.HeartbeatTerminations.Inc()
}

// Reconnect counts a client reconnect attempt.
func (s *Set) Reconnect() {
	if s == nil || s.ClientReconnects == nil {
		return
	}
	_ = s.ClientReconnects.Inc()
}

// Reconnects returns the number of client reconnect attempts recorded.
func (s *Set) Reconnects() float64 {
	if s == nil || s.ClientReconnects == nil {
		return 0
	}
	vec, err := s.ClientReconnects.WithLabels()
	if err != nil {
		return 0
	}
	return vec.Value()
}

// DroppedCount returns the number of frames dropped for reason.
func (s *Set) DroppedCount(reason string) float64 {
	if s == nil || s.FramesDropped == nil {
		return 0
	}
	vec, err := s.FramesDropped.WithLabels(reason)
	if err != nil {
		return 0
	}
	return vec.Value()
}

// Ingested counts a message routed from source.
func (s *Set) Ingested(source string) {
	if s == nil || s.IngestMessages == nil {
		return
	}
	if vec, err := s.IngestMessages.WithLabels(source); err == nil {
		_ = vec.Inc()
	}
}
