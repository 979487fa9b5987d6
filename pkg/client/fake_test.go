package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tgnms/groupsocket/pkg/protocol"
)

var errDropped = errors.New("dropped")

// fakeConn is a Conn driven entirely by the test.
type fakeConn struct {
	path   string
	events ConnEvents

	mu      sync.Mutex
	state   protocol.ReadyState
	sent    [][]byte
	sendErr error
	closed  bool
}

func (f *fakeConn) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), msg...))
	return nil
}

func (f *fakeConn) ReadyState() protocol.ReadyState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.state = protocol.Closed
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) open() {
	f.mu.Lock()
	f.state = protocol.Open
	f.mu.Unlock()
	f.events.Opened()
}

func (f *fakeConn) drop() {
	f.mu.Lock()
	f.state = protocol.Closed
	f.mu.Unlock()
	f.events.Closed(errDropped)
}

func (f *fakeConn) deliver(msg string) {
	f.events.Received([]byte(msg))
}

func (f *fakeConn) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeConn) sentStrings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = string(m)
	}
	return out
}

func (f *fakeConn) commands(t *testing.T) []protocol.Command {
	t.Helper()
	var cmds []protocol.Command
	for _, m := range f.sentStrings() {
		cmd, err := protocol.DecodeCommand([]byte(m))
		require.NoError(t, err)
		cmds = append(cmds, cmd)
	}
	return cmds
}

// fakeFactory records every connection it creates.
type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (ff *fakeFactory) factory(path string, events ConnEvents) Conn {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	c := &fakeConn{path: path, events: events, state: protocol.Connecting}
	ff.conns = append(ff.conns, c)
	return c
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.conns)
}

func (ff *fakeFactory) last() *fakeConn {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.conns[len(ff.conns)-1]
}

// manualScheduler collects reconnect timers so tests decide when they fire.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (m *manualScheduler) schedule(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{delay: d, f: f}
	m.timers = append(m.timers, t)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

func (m *manualScheduler) pending() []*manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs every pending timer.
func (m *manualScheduler) fire() {
	for _, t := range m.pending() {
		m.mu.Lock()
		t.fired = true
		m.mu.Unlock()
		t.f()
	}
}

func newTestSupervisor(t *testing.T, opts ...Option) (*Supervisor, *fakeFactory, *manualScheduler) {
	t.Helper()
	ff := &fakeFactory{}
	sched := &manualScheduler{}
	opts = append([]Option{WithScheduler(sched.schedule)}, opts...)
	sup := NewSupervisor(ff.factory, opts...)
	t.Cleanup(func() { _ = sup.Close() })
	return sup, ff, sched
}
