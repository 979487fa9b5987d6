package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgnms/groupsocket/pkg/metrics"
	"github.com/tgnms/groupsocket/pkg/protocol"
)

func TestSupervisor_StartUsesPath(t *testing.T) {
	sup, ff, _ := newTestSupervisor(t, WithPath("/custom"))

	assert.Equal(t, StateDisconnected, sup.State())
	assert.Nil(t, sup.Conn())

	sup.Start(context.Background())
	sup.Start(context.Background())

	require.Equal(t, 1, ff.count())
	assert.Equal(t, "/custom", ff.last().path)
	assert.Equal(t, StateConnecting, sup.State())
	assert.Same(t, ff.last(), sup.Conn())
}

func TestSupervisor_NoPrematureSend(t *testing.T) {
	sup, ff, _ := newTestSupervisor(t)
	sup.Start(context.Background())
	conn := ff.last()

	require.NoError(t, sup.Send([]byte("a")))
	assert.Empty(t, conn.sentStrings())
	assert.Equal(t, 1, sup.QueueLen())
	assert.False(t, sup.IsOpen())

	conn.open()
	assert.Equal(t, []string{"a"}, conn.sentStrings())
	assert.Equal(t, 0, sup.QueueLen())
	assert.True(t, sup.IsOpen())
}

func TestSupervisor_SendBeforeStartIsQueued(t *testing.T) {
	sup, ff, _ := newTestSupervisor(t)
	require.NoError(t, sup.Send([]byte("early")))

	sup.Start(context.Background())
	ff.last().open()
	assert.Equal(t, []string{"early"}, ff.last().sentStrings())
}

func TestSupervisor_FIFODrain(t *testing.T) {
	sup, ff, _ := newTestSupervisor(t)
	sup.Start(context.Background())

	for _, m := range []string{"m1", "m2", "m3"} {
		require.NoError(t, sup.Send([]byte(m)))
	}
	conn := ff.last()
	conn.open()
	require.NoError(t, sup.Send([]byte("m4")))

	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, conn.sentStrings())
}

func TestSupervisor_QueueSurvivesReconnect(t *testing.T) {
	sup, ff, sched := newTestSupervisor(t)
	sup.Start(context.Background())
	first := ff.last()
	first.drop()

	require.NoError(t, sup.Send([]byte("while-down")))
	sched.fire()

	second := ff.last()
	require.NotSame(t, first, second)
	second.open()
	assert.Equal(t, []string{"while-down"}, second.sentStrings())
	assert.Empty(t, first.sentStrings())
}

func TestSupervisor_DrainContinuesPastWriteError(t *testing.T) {
	sup, ff, _ := newTestSupervisor(t)
	sup.Start(context.Background())
	require.NoError(t, sup.Send([]byte("x")))

	conn := ff.last()
	conn.setSendErr(errors.New("boom"))
	conn.open()

	assert.Equal(t, 0, sup.QueueLen())
	assert.Empty(t, conn.sentStrings())
}

func TestSupervisor_ImmediateSendError(t *testing.T) {
	sup, ff, _ := newTestSupervisor(t)
	sup.Start(context.Background())
	conn := ff.last()
	conn.open()

	boom := errors.New("boom")
	conn.setSendErr(boom)
	assert.ErrorIs(t, sup.Send([]byte("x")), boom)
}

func TestSupervisor_ReconnectCardinality(t *testing.T) {
	set := metrics.NewClientSet(metrics.NewRegistry())
	sup, ff, sched := newTestSupervisor(t, WithMetrics(set))
	sup.Start(context.Background())

	const k = 5
	for i := 0; i < k; i++ {
		conn := ff.last()
		conn.open()
		conn.drop()
		assert.Equal(t, StateReconnecting, sup.State())
		require.Len(t, sched.pending(), 1, "exactly one pending reconnect")
		sched.fire()
	}

	assert.Equal(t, k+1, ff.count())
	assert.Equal(t, float64(k), set.Reconnects())
}

func TestSupervisor_UsesConfiguredDelay(t *testing.T) {
	sup, ff, sched := newTestSupervisor(t, WithReconnectDelay(50*time.Millisecond))
	sup.Start(context.Background())
	ff.last().drop()

	pending := sched.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 50*time.Millisecond, pending[0].delay)
}

func TestSupervisor_DefaultDelay(t *testing.T) {
	sup, ff, sched := newTestSupervisor(t)
	sup.Start(context.Background())
	ff.last().drop()

	require.Len(t, sched.pending(), 1)
	assert.Equal(t, DefaultReconnectDelay, sched.pending()[0].delay)
}

func TestSupervisor_RepeatedCloseKeepsSingleTimer(t *testing.T) {
	sup, ff, sched := newTestSupervisor(t)
	sup.Start(context.Background())
	conn := ff.last()

	conn.drop()
	conn.events.Closed(errDropped)

	assert.Len(t, sched.pending(), 1)
	sched.fire()
	assert.Equal(t, 2, ff.count())
}

func TestSupervisor_StaleTimerIgnored(t *testing.T) {
	sup, ff, sched := newTestSupervisor(t)
	sup.Start(context.Background())
	ff.last().drop()

	stale := sched.pending()[0]
	sched.fire()
	require.Equal(t, 2, ff.count())

	// A late duplicate firing must not create another connection.
	stale.f()
	assert.Equal(t, 2, ff.count())
}

func TestSupervisor_SupersededConnectionIgnored(t *testing.T) {
	sup, ff, sched := newTestSupervisor(t)
	sup.Start(context.Background())
	first := ff.last()
	first.drop()
	sched.fire()

	var opens int
	sup.AddObserver(ObserverFuncs{OnOpen: func() { opens++ }})

	first.events.Opened()
	first.events.Closed(errDropped)
	assert.Equal(t, StateConnecting, sup.State())
	assert.Equal(t, 0, opens)
	assert.Empty(t, sched.pending())

	ff.last().open()
	assert.Equal(t, 1, opens)
}

func TestSupervisor_OpenCancelsPendingTimer(t *testing.T) {
	sup, ff, sched := newTestSupervisor(t)
	sup.Start(context.Background())
	ff.last().drop()
	timer := sched.pending()[0]
	sched.fire()

	ff.last().open()
	timer.f()
	assert.Equal(t, 2, ff.count())
	assert.True(t, sup.IsOpen())
}

func TestSupervisor_ObserverOrder(t *testing.T) {
	sup, ff, _ := newTestSupervisor(t)

	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	sup.AddObserver(ObserverFuncs{
		OnOpen:    func() { record("open") },
		OnClose:   func() { record("close") },
		OnMessage: func(msg []byte) { record("msg:" + string(msg)) },
	})

	sup.Start(context.Background())
	require.NoError(t, sup.Send([]byte("q")))
	conn := ff.last()
	conn.open()
	conn.deliver("1")
	conn.deliver("2")
	conn.drop()

	assert.Equal(t, []string{"open", "msg:1", "msg:2", "close"}, events)
	assert.Equal(t, []string{"q"}, conn.sentStrings(), "queue is flushed before observers run")
}

func TestSupervisor_Close(t *testing.T) {
	sup, ff, sched := newTestSupervisor(t)
	sup.Start(context.Background())
	conn := ff.last()
	conn.drop()
	require.Len(t, sched.pending(), 1)

	require.NoError(t, sup.Close())
	require.NoError(t, sup.Close())

	assert.Empty(t, sched.pending())
	assert.True(t, conn.closed)
	assert.Equal(t, StateDisconnected, sup.State())
	assert.ErrorIs(t, sup.Send([]byte("x")), ErrSupervisorClosed)

	conn.events.Closed(errDropped)
	assert.Equal(t, 1, ff.count())
}

func TestSupervisor_ContextCancelCloses(t *testing.T) {
	sup, ff, _ := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)
	conn := ff.last()

	cancel()
	assert.Eventually(t, func() bool {
		return conn.ReadyState() == protocol.Closed
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, sup.Send(nil), ErrSupervisorClosed)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestSupervisor_RealTimer(t *testing.T) {
	ff := &fakeFactory{}
	sup := NewSupervisor(ff.factory, WithReconnectDelay(10*time.Millisecond))
	defer sup.Close()

	sup.Start(context.Background())
	ff.last().drop()

	assert.Eventually(t, func() bool { return ff.count() == 2 }, time.Second, 5*time.Millisecond)
}
