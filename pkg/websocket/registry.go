package websocket

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/tgnms/groupsocket/pkg/logging"
	"github.com/tgnms/groupsocket/pkg/metrics"
	"github.com/tgnms/groupsocket/pkg/protocol"
)

// connectionData is the registry's record of one connection. It exists
// from the connection's first join until it closes.
type connectionData struct {
	peer    Peer
	groups  map[string]struct{}
	isAlive bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics records registry activity on set.
func WithMetrics(set *metrics.Set) RegistryOption {
	return func(r *Registry) { r.metrics = set }
}

// Registry tracks which connections belong to which groups and fans
// broadcasts out to them.
//
// Group member sets and each connection's group set always mirror each
// other. A closing connection is removed from every group and its record
// deleted. Empty groups are kept.
type Registry struct {
	logger  *slog.Logger
	metrics *metrics.Set

	mu          sync.RWMutex
	groups      map[string]map[string]Peer // group -> conn ID -> peer
	connections map[string]*connectionData // conn ID -> record
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		groups:      make(map[string]map[string]Peer),
		connections: make(map[string]*connectionData),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.Component(r.logger, "registry")
	return r
}

// ProcessCommand applies a client command. Unknown command types are
// ignored.
func (r *Registry) ProcessCommand(cmd protocol.Command, peer Peer) {
	switch cmd.Type {
	case protocol.JoinGroup:
		r.JoinGroup(cmd.Payload, peer)
	case protocol.LeaveGroup:
		r.LeaveGroup(cmd.Payload, peer)
	default:
		r.logger.Debug("ignoring unknown command", "type", string(cmd.Type), "conn_id", peer.ID())
	}
}

// JoinGroup adds peer to the named group. Joining a group twice has no
// further effect. The first join of a connection registers its close and
// pong handlers.
func (r *Registry) JoinGroup(name string, peer Peer) {
	if name == "" {
		r.logger.Debug("ignoring join with empty group", "conn_id", peer.ID())
		return
	}
	id := peer.ID()

	r.mu.Lock()
	data, known := r.connections[id]
	if !known {
		data = &connectionData{peer: peer, groups: make(map[string]struct{}), isAlive: true}
		r.connections[id] = data
	}
	members, ok := r.groups[name]
	if !ok {
		members = make(map[string]Peer)
		r.groups[name] = members
	}
	_, already := members[id]
	members[id] = peer
	data.groups[name] = struct{}{}
	r.updateGaugesLocked()
	r.mu.Unlock()

	if !already {
		r.metrics.Joined()
		r.logger.Debug("joined group", "group", name, "conn_id", id)
	}

	if !known {
		// Registered outside the lock: OnClose runs fn at once for a peer
		// that is already closed.
		peer.OnPong(func() { r.markAlive(id) })
		peer.OnClose(func() { r.removeConnection(id) })
	}
}

// JoinGroups joins peer to every named group.
func (r *Registry) JoinGroups(names []string, peer Peer) {
	for _, name := range names {
		r.JoinGroup(name, peer)
	}
}

// LeaveGroup removes peer from the named group. It is a no-op when the
// peer is not a member.
func (r *Registry) LeaveGroup(name string, peer Peer) {
	id := peer.ID()

	r.mu.Lock()
	data, ok := r.connections[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, member := data.groups[name]; !member {
		r.mu.Unlock()
		return
	}
	delete(data.groups, name)
	delete(r.groups[name], id)
	r.updateGaugesLocked()
	r.mu.Unlock()

	r.metrics.Left(1)
	r.logger.Debug("left group", "group", name, "conn_id", id)
}

// removeConnection is the close cascade.
func (r *Registry) removeConnection(id string) {
	r.mu.Lock()
	data, ok := r.connections[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	for name := range data.groups {
		delete(r.groups[name], id)
	}
	delete(r.connections, id)
	r.updateGaugesLocked()
	r.mu.Unlock()

	r.metrics.Left(len(data.groups))
	r.logger.Debug("connection removed", "conn_id", id, "groups", len(data.groups))
}

func (r *Registry) markAlive(id string) {
	r.mu.Lock()
	if data, ok := r.connections[id]; ok {
		data.isAlive = true
	}
	r.mu.Unlock()
}

func (r *Registry) updateGaugesLocked() {
	r.metrics.SetConnections(len(r.connections), len(r.groups))
}

// MessageGroup broadcasts payload to every open member of the named group.
// The envelope is serialized once. Members that are not open are skipped.
// It returns the number of members the frame was written to.
func (r *Registry) MessageGroup(name string, payload any) (int, error) {
	env, err := protocol.NewEnvelope(name, payload)
	if err != nil {
		return 0, err
	}
	data, err := env.Encode()
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	members := r.groups[name]
	peers := make([]Peer, 0, len(members))
	for _, p := range members {
		peers = append(peers, p)
	}
	r.mu.RUnlock()

	sent := 0
	for _, p := range peers {
		if p.ReadyState() != protocol.Open {
			r.metrics.Dropped(metrics.DropNotOpen)
			continue
		}
		if err := p.Send(data); err != nil {
			r.logger.Debug("broadcast write failed", "group", name, "conn_id", p.ID(), "error", err)
			r.metrics.Dropped(metrics.DropSendError)
			continue
		}
		sent++
	}

	r.metrics.Broadcast(sent)
	return sent, nil
}

// Groups returns every known group with its member count, sorted by name.
func (r *Registry) Groups() []GroupInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]GroupInfo, 0, len(r.groups))
	for name, members := range r.groups {
		out = append(out, GroupInfo{Name: name, Members: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Members returns the IDs of the group's members, sorted.
func (r *Registry) Members(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.groups[name])
}

// ConnectionGroups returns the groups peer belongs to, sorted.
func (r *Registry) ConnectionGroups(peer Peer) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.connections[peer.ID()]
	if !ok {
		return nil
	}
	return sortedKeys(data.groups)
}

// ConnectionCount returns the number of connections with a registry record.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Stats returns a snapshot of the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Connections: len(r.connections),
		Groups:      len(r.groups),
		GroupSizes:  make(map[string]int, len(r.groups)),
	}
	for name, members := range r.groups {
		s.GroupSizes[name] = len(members)
		s.Memberships += len(members)
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
