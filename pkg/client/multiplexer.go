package client

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tgnms/groupsocket/pkg/logging"
	"github.com/tgnms/groupsocket/pkg/metrics"
	"github.com/tgnms/groupsocket/pkg/protocol"
)

// Listener receives envelopes addressed to a joined group.
type Listener func(env *protocol.Envelope)

// MultiplexerOption configures a Multiplexer.
type MultiplexerOption func(*Multiplexer)

// WithMultiplexerLogger sets the logger.
func WithMultiplexerLogger(logger *slog.Logger) MultiplexerOption {
	return func(m *Multiplexer) { m.logger = logger }
}

// WithMultiplexerMetrics records dropped frames on set.
func WithMultiplexerMetrics(set *metrics.Set) MultiplexerOption {
	return func(m *Multiplexer) { m.metrics = set }
}

// Multiplexer lets independent components join named groups over one
// Supervisor. It sends JOIN_GROUP on every join, LEAVE_GROUP when a group
// loses its last listener, and re-joins every tracked group after each
// reconnect.
type Multiplexer struct {
	sup     *Supervisor
	logger  *slog.Logger
	metrics *metrics.Set

	// mu is held across each membership change and the command it sends,
	// so the wire order of JOIN/LEAVE matches the order of the changes.
	mu     sync.RWMutex
	groups map[string][]*Subscription
}

// NewMultiplexer creates a multiplexer and registers it as an observer of
// sup.
func NewMultiplexer(sup *Supervisor, opts ...MultiplexerOption) *Multiplexer {
	m := &Multiplexer{
		sup:    sup,
		groups: make(map[string][]*Subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.Component(m.logger, "multiplexer")
	sup.AddObserver(ObserverFuncs{OnOpen: m.rejoin, OnMessage: m.dispatch})
	return m
}

// Subscription is one listener's membership in a group.
type Subscription struct {
	m        *Multiplexer
	group    string
	listener atomic.Pointer[Listener]
	done     atomic.Bool
}

// Group returns the subscribed group name.
func (s *Subscription) Group() string { return s.group }

// Update replaces the listener. Later dispatches call the new one.
func (s *Subscription) Update(l Listener) {
	s.listener.Store(&l)
}

// Unsubscribe removes the listener from its group. It is safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	if s.done.CompareAndSwap(false, true) {
		s.m.leave(s)
	}
}

// Subscribe joins group with listener. The JOIN_GROUP command is queued if
// the connection is not open yet.
func (m *Multiplexer) Subscribe(group string, l Listener) (*Subscription, error) {
	if group == "" {
		return nil, ErrEmptyGroup
	}

	sub := &Subscription{m: m, group: group}
	sub.Update(l)

	m.mu.Lock()
	if err := m.send(protocol.NewJoinCommand(group)); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.groups[group] = append(m.groups[group], sub)
	m.mu.Unlock()

	m.logger.Debug("joined group", "group", group)
	return sub, nil
}

// Join is Subscribe returning only the unsubscribe function.
func (m *Multiplexer) Join(group string, l Listener) (func(), error) {
	sub, err := m.Subscribe(group, l)
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (m *Multiplexer) leave(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.groups[sub.group]
	if !ok {
		return
	}
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) > 0 {
		m.groups[sub.group] = subs
		return
	}
	delete(m.groups, sub.group)
	if err := m.send(protocol.NewLeaveCommand(sub.group)); err != nil {
		m.logger.Debug("failed to send leave", "group", sub.group, "error", err)
	}
	m.logger.Debug("left group", "group", sub.group)
}

func (m *Multiplexer) send(cmd protocol.Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Type, err)
	}
	return m.sup.Send(data)
}

// rejoin re-announces every tracked group. A new physical connection starts
// with no server-side membership.
func (m *Multiplexer) rejoin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, group := range m.groupsLocked() {
		if err := m.send(protocol.NewJoinCommand(group)); err != nil {
			m.logger.Warn("failed to rejoin group", "group", group, "error", err)
		}
	}
}

func (m *Multiplexer) dispatch(msg []byte) {
	env, err := protocol.DecodeEnvelope(msg)
	if err != nil {
		m.logger.Warn("dropping malformed frame", "error", err)
		m.metrics.Dropped(metrics.DropMalformed)
		return
	}

	m.mu.RLock()
	subs := append([]*Subscription(nil), m.groups[env.Group]...)
	m.mu.RUnlock()

	if len(subs) == 0 {
		m.metrics.Dropped(metrics.DropUnknownGroup)
		return
	}
	for _, sub := range subs {
		m.deliver(sub, env)
	}
}

func (m *Multiplexer) deliver(sub *Subscription, env *protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("listener panicked", "group", sub.group, "panic", r)
		}
	}()
	if sub.done.Load() {
		return
	}
	if l := sub.listener.Load(); l != nil && *l != nil {
		(*l)(env)
	}
}

// Groups returns the tracked group names, sorted.
func (m *Multiplexer) Groups() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groupsLocked()
}

func (m *Multiplexer) groupsLocked() []string {
	names := make([]string, 0, len(m.groups))
	for name := range m.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListenerCount returns the number of listeners on group.
func (m *Multiplexer) ListenerCount(group string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups[group])
}
