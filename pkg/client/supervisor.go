package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tgnms/groupsocket/pkg/logging"
	"github.com/tgnms/groupsocket/pkg/metrics"
	"github.com/tgnms/groupsocket/pkg/protocol"
)

// DefaultReconnectDelay is the fixed delay between a close and the next
// connection attempt.
const DefaultReconnectDelay = 2 * time.Second

// DefaultPath is the websocket path used when none is configured.
const DefaultPath = "/websockets"

// State is the supervisor's connection state.
type State int

const (
	// StateDisconnected means Start has not been called, or Close has.
	StateDisconnected State = iota
	// StateConnecting means a connection attempt is in progress.
	StateConnecting
	// StateOpen means the current connection is open.
	StateOpen
	// StateReconnecting means the last connection closed and a reconnect
	// is scheduled.
	StateReconnecting
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Scheduler runs f once after d. The returned stop function cancels the
// call if it has not started.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPath sets the path passed to the Factory.
func WithPath(path string) Option {
	return func(s *Supervisor) { s.path = path }
}

// WithReconnectDelay sets the fixed reconnect delay.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithScheduler replaces time.AfterFunc for reconnect timers.
func WithScheduler(schedule Scheduler) Option {
	return func(s *Supervisor) { s.schedule = schedule }
}

// WithMetrics records reconnects on set.
func WithMetrics(set *metrics.Set) Option {
	return func(s *Supervisor) { s.metrics = set }
}

// Supervisor owns exactly one physical connection at a time. It reconnects
// after every close with a fixed delay and buffers outbound messages while
// disconnected, flushing them in FIFO order on the next open.
type Supervisor struct {
	factory  Factory
	path     string
	delay    time.Duration
	logger   *slog.Logger
	schedule Scheduler
	metrics  *metrics.Set

	mu        sync.Mutex
	state     State
	conn      Conn
	gen       uint64 // identifies the current conn
	queue     [][]byte
	timerStop func() bool
	timerGen  uint64 // identifies the pending reconnect timer
	observers []Observer
	started   bool
	closed    bool
}

// NewSupervisor creates a supervisor. Nothing is dialed until Start.
func NewSupervisor(factory Factory, opts ...Option) *Supervisor {
	s := &Supervisor{
		factory:  factory,
		path:     DefaultPath,
		delay:    DefaultReconnectDelay,
		schedule: afterFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "supervisor")
	return s
}

// Start creates the first connection. The supervisor closes itself when
// ctx is done. Calling Start more than once has no effect.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.connectLocked()
	s.mu.Unlock()

	context.AfterFunc(ctx, func() { _ = s.Close() })
}

// connectLocked replaces the current connection. Events from any earlier
// connection are ignored from here on.
func (s *Supervisor) connectLocked() {
	s.gen++
	s.state = StateConnecting
	s.conn = s.factory(s.path, &connEvents{s: s, gen: s.gen})
	s.logger.Debug("connecting", "path", s.path, "attempt", s.gen)
}

// Send writes msg now if the connection is open and nothing is queued, and
// queues it otherwise. It only fails after Close, or when an immediate
// write fails.
func (s *Supervisor) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSupervisorClosed
	}

	if s.openLocked() && len(s.queue) == 0 {
		return s.conn.Send(msg)
	}

	s.queue = append(s.queue, msg)
	if s.openLocked() {
		s.drainLocked()
	}
	return nil
}

func (s *Supervisor) openLocked() bool {
	return s.state == StateOpen && s.conn != nil && s.conn.ReadyState() == protocol.Open
}

// drainLocked flushes the queue in order while the connection stays open.
// A failed write drops that message and continues.
func (s *Supervisor) drainLocked() {
	for len(s.queue) > 0 && s.conn.ReadyState() == protocol.Open {
		msg := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		if err := s.conn.Send(msg); err != nil {
			s.logger.Warn("failed to flush queued message", "error", err)
			s.metrics.Dropped(metrics.DropSendError)
		}
	}
	if len(s.queue) == 0 {
		s.queue = nil
	}
}

func (s *Supervisor) handleOpened(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	s.state = StateOpen
	s.drainLocked()
	observers := s.observersLocked()
	s.mu.Unlock()

	s.logger.Info("connected", "path", s.path)
	for _, o := range observers {
		o.Opened()
	}
}

func (s *Supervisor) handleReceived(gen uint64, msg []byte) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	observers := s.observersLocked()
	s.mu.Unlock()

	for _, o := range observers {
		o.Received(msg)
	}
}

func (s *Supervisor) handleClosed(gen uint64, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateReconnecting
	s.scheduleReconnectLocked()
	observers := s.observersLocked()
	s.mu.Unlock()

	s.logger.Info("connection closed, reconnecting", "delay", s.delay, "error", err)
	for _, o := range observers {
		o.Closed()
	}
}

// scheduleReconnectLocked restarts the single reconnect timer.
func (s *Supervisor) scheduleReconnectLocked() {
	s.stopTimerLocked()
	tgen := s.timerGen
	s.timerStop = s.schedule(s.delay, func() { s.reconnect(tgen) })
}

// stopTimerLocked cancels the pending reconnect, if any. Bumping timerGen
// also neutralizes a timer that already fired but has not taken the lock.
func (s *Supervisor) stopTimerLocked() {
	if s.timerStop != nil {
		s.timerStop()
		s.timerStop = nil
	}
	s.timerGen++
}

func (s *Supervisor) reconnect(tgen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || tgen != s.timerGen {
		return
	}
	s.timerStop = nil
	s.timerGen++
	s.metrics.Reconnect()
	s.connectLocked()
}

func (s *Supervisor) observersLocked() []Observer {
	return append([]Observer(nil), s.observers...)
}

// AddObserver registers o for supervisor events.
func (s *Supervisor) AddObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// IsOpen reports whether the current connection is open.
func (s *Supervisor) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

// State returns the supervisor state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conn returns the current physical connection, or nil before Start.
func (s *Supervisor) Conn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// QueueLen returns the number of messages waiting for an open connection.
func (s *Supervisor) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops reconnecting, drops queued messages and closes the current
// connection.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	s.state = StateDisconnected
	s.queue = nil
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// connEvents tags events with the generation of the connection they
// belong to.
type connEvents struct {
	s   *Supervisor
	gen uint64
}

func (e *connEvents) Opened()             { e.s.handleOpened(e.gen) }
func (e *connEvents) Received(msg []byte) { e.s.handleReceived(e.gen, msg) }
func (e *connEvents) Closed(err error)    { e.s.handleClosed(e.gen, err) }
