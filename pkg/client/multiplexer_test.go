package client

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgnms/groupsocket/pkg/metrics"
	"github.com/tgnms/groupsocket/pkg/protocol"
)

func newTestMultiplexer(t *testing.T) (*Multiplexer, *Supervisor, *fakeFactory, *manualScheduler) {
	t.Helper()
	sup, ff, sched := newTestSupervisor(t)
	mux := NewMultiplexer(sup)
	sup.Start(context.Background())
	return mux, sup, ff, sched
}

// collector records envelopes delivered to one listener.
type collector struct {
	mu   sync.Mutex
	envs []*protocol.Envelope
}

func (c *collector) listen(env *protocol.Envelope) {
	c.mu.Lock()
	c.envs = append(c.envs, env)
	c.mu.Unlock()
}

func (c *collector) payloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.envs))
	for i, e := range c.envs {
		out[i] = string(e.Payload)
	}
	return out
}

func join(g string) protocol.Command  { return protocol.NewJoinCommand(g) }
func leave(g string) protocol.Command { return protocol.NewLeaveCommand(g) }

func TestMultiplexer_JoinBeforeOpenIsQueued(t *testing.T) {
	mux, sup, ff, _ := newTestMultiplexer(t)

	_, err := mux.Join("events", func(*protocol.Envelope) {})
	require.NoError(t, err)
	assert.Equal(t, 1, sup.QueueLen())

	conn := ff.last()
	conn.open()

	// The queued JOIN is flushed, then the open re-announces tracked groups.
	assert.Equal(t, []protocol.Command{join("events"), join("events")}, conn.commands(t))
}

func TestMultiplexer_JoinWhileOpenSendsImmediately(t *testing.T) {
	mux, _, ff, _ := newTestMultiplexer(t)
	conn := ff.last()
	conn.open()

	_, err := mux.Join("events", func(*protocol.Envelope) {})
	require.NoError(t, err)
	_, err = mux.Join("events", func(*protocol.Envelope) {})
	require.NoError(t, err)

	assert.Equal(t, []protocol.Command{join("events"), join("events")}, conn.commands(t))
	assert.Equal(t, 2, mux.ListenerCount("events"))
}

func TestMultiplexer_RejoinAfterReconnect(t *testing.T) {
	mux, _, ff, sched := newTestMultiplexer(t)
	ff.last().open()

	_, err := mux.Join("x", func(*protocol.Envelope) {})
	require.NoError(t, err)
	_, err = mux.Join("y", func(*protocol.Envelope) {})
	require.NoError(t, err)
	unsubscribe, err := mux.Join("z", func(*protocol.Envelope) {})
	require.NoError(t, err)
	unsubscribe()

	ff.last().drop()
	sched.fire()
	conn := ff.last()
	conn.open()

	assert.ElementsMatch(t, []protocol.Command{join("x"), join("y")}, conn.commands(t))
}

func TestMultiplexer_Dispatch(t *testing.T) {
	mux, _, ff, _ := newTestMultiplexer(t)
	conn := ff.last()
	conn.open()

	var a1, a2, b collector
	_, err := mux.Join("a", a1.listen)
	require.NoError(t, err)
	_, err = mux.Join("a", a2.listen)
	require.NoError(t, err)
	_, err = mux.Join("b", b.listen)
	require.NoError(t, err)

	conn.deliver(`{"key":null,"group":"a","payload":{"n":1}}`)
	conn.deliver(`{"key":null,"group":"b","payload":2}`)
	conn.deliver(`{"key":null,"group":"c","payload":3}`)

	assert.Equal(t, []string{`{"n":1}`}, a1.payloads())
	assert.Equal(t, []string{`{"n":1}`}, a2.payloads())
	assert.Equal(t, []string{"2"}, b.payloads())
}

func TestMultiplexer_GroupIsolationAcrossLeaveAndRejoin(t *testing.T) {
	mux, _, ff, _ := newTestMultiplexer(t)
	conn := ff.last()
	conn.open()

	var a, b collector
	unsubA, err := mux.Join("A", a.listen)
	require.NoError(t, err)
	_, err = mux.Join("B", b.listen)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		conn.deliver(`{"key":null,"group":"B","payload":"b"}`)
		unsubA()
		unsubA, err = mux.Join("A", a.listen)
		require.NoError(t, err)
		conn.deliver(`{"key":null,"group":"A","payload":"a"}`)
	}

	assert.Equal(t, []string{`"a"`, `"a"`, `"a"`}, a.payloads())
	assert.Equal(t, []string{`"b"`, `"b"`, `"b"`}, b.payloads())
}

func TestMultiplexer_LatestListener(t *testing.T) {
	mux, _, ff, _ := newTestMultiplexer(t)
	conn := ff.last()
	conn.open()

	var first, second collector
	sub, err := mux.Subscribe("events", first.listen)
	require.NoError(t, err)
	assert.Equal(t, "events", sub.Group())

	conn.deliver(`{"key":null,"group":"events","payload":1}`)
	sub.Update(second.listen)
	conn.deliver(`{"key":null,"group":"events","payload":2}`)

	assert.Equal(t, []string{"1"}, first.payloads())
	assert.Equal(t, []string{"2"}, second.payloads())
	assert.Len(t, conn.commands(t), 1, "updating a listener does not rejoin")
}

func TestMultiplexer_MalformedFrameDropped(t *testing.T) {
	sup, ff, _ := newTestSupervisor(t)
	set := metrics.NewClientSet(metrics.NewRegistry())
	mux := NewMultiplexer(sup, WithMultiplexerMetrics(set))
	sup.Start(context.Background())
	conn := ff.last()
	conn.open()

	var c collector
	_, err := mux.Join("events", c.listen)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		conn.deliver(`not json`)
		conn.deliver(`{"group":"events"}`)
		conn.deliver(`{"type":"JOIN_GROUP","payload":"events"}`)
	})
	conn.deliver(`{"key":null,"group":"events","payload":"ok"}`)

	assert.Equal(t, []string{`"ok"`}, c.payloads())
	vec, err := set.FramesDropped.WithLabels(metrics.DropMalformed)
	require.NoError(t, err)
	assert.Equal(t, 3.0, vec.Value())
}

func TestMultiplexer_PanickingListenerIsolated(t *testing.T) {
	mux, _, ff, _ := newTestMultiplexer(t)
	conn := ff.last()
	conn.open()

	var after collector
	_, err := mux.Join("events", func(*protocol.Envelope) { panic("listener bug") })
	require.NoError(t, err)
	_, err = mux.Join("events", after.listen)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		conn.deliver(`{"key":null,"group":"events","payload":1}`)
	})
	assert.Equal(t, []string{"1"}, after.payloads())
}

func TestMultiplexer_LeaveOnLastUnsubscribe(t *testing.T) {
	mux, _, ff, _ := newTestMultiplexer(t)
	conn := ff.last()
	conn.open()

	var c collector
	unsub1, err := mux.Join("events", c.listen)
	require.NoError(t, err)
	unsub2, err := mux.Join("events", func(*protocol.Envelope) {})
	require.NoError(t, err)

	unsub1()
	assert.Equal(t, []protocol.Command{join("events"), join("events")}, conn.commands(t))
	assert.Equal(t, []string{"events"}, mux.Groups())

	conn.deliver(`{"key":null,"group":"events","payload":1}`)
	assert.Empty(t, c.payloads(), "unsubscribed listener is not called")

	unsub2()
	unsub2()
	assert.Equal(t, []protocol.Command{join("events"), join("events"), leave("events")}, conn.commands(t))
	assert.Empty(t, mux.Groups())
	assert.Equal(t, 0, mux.ListenerCount("events"))
}

func TestMultiplexer_ConcurrentJoinAndLastLeave(t *testing.T) {
	mux, _, ff, _ := newTestMultiplexer(t)
	conn := ff.last()
	conn.open()

	const rounds = 500
	for i := 0; i < rounds; i++ {
		group := fmt.Sprintf("g%d", i)
		first, err := mux.Subscribe(group, func(*protocol.Envelope) {})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := mux.Subscribe(group, func(*protocol.Envelope) {})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			first.Unsubscribe()
		}()
		wg.Wait()
	}

	last := make(map[string]protocol.CommandType)
	for _, cmd := range conn.commands(t) {
		last[cmd.Payload] = cmd.Type
	}
	for i := 0; i < rounds; i++ {
		group := fmt.Sprintf("g%d", i)
		require.Equal(t, 1, mux.ListenerCount(group), group)
		assert.Equal(t, protocol.JoinGroup, last[group], "server must end up joined to %s", group)
	}
}

func TestMultiplexer_RejoinWaitsForMembershipChange(t *testing.T) {
	mux, _, ff, sched := newTestMultiplexer(t)
	ff.last().open()
	ff.last().drop()
	sched.fire()
	conn := ff.last()

	const groups = 100
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < groups; i++ {
			_, err := mux.Subscribe(fmt.Sprintf("g%d", i), func(*protocol.Envelope) {})
			assert.NoError(t, err)
		}
	}()
	conn.open()
	<-done

	joined := make(map[string]bool)
	for _, cmd := range conn.commands(t) {
		assert.Equal(t, protocol.JoinGroup, cmd.Type)
		joined[cmd.Payload] = true
	}
	assert.Len(t, joined, groups)
}

func TestMultiplexer_EmptyGroup(t *testing.T) {
	mux, _, _, _ := newTestMultiplexer(t)
	_, err := mux.Join("", func(*protocol.Envelope) {})
	assert.ErrorIs(t, err, ErrEmptyGroup)
}

func TestMultiplexer_JoinAfterClose(t *testing.T) {
	mux, sup, _, _ := newTestMultiplexer(t)
	require.NoError(t, sup.Close())

	_, err := mux.Join("events", func(*protocol.Envelope) {})
	assert.ErrorIs(t, err, ErrSupervisorClosed)
	assert.Empty(t, mux.Groups())
}
