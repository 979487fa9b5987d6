package client

import (
	"github.com/tgnms/groupsocket/pkg/protocol"
)

// Conn is one physical connection as seen by the Supervisor.
type Conn interface {
	// Send writes a text frame.
	Send(msg []byte) error
	// ReadyState reports the current readiness.
	ReadyState() protocol.ReadyState
	// Close starts closing the connection. A Closed event follows.
	Close() error
}

// ConnEvents receives lifecycle events for a single Conn.
// Opened and Closed are each reported at most once; Received is only
// reported between them.
type ConnEvents interface {
	Opened()
	Received(msg []byte)
	Closed(err error)
}

// Factory creates a connection to path. It must return immediately with a
// Conn in the Connecting state and report establishment asynchronously:
// success as Opened, failure as Closed. It must not call events before it
// returns.
type Factory func(path string, events ConnEvents) Conn

// Observer is notified of supervisor-level events.
type Observer interface {
	// Opened runs after every successful (re)connect, once queued
	// messages have been flushed.
	Opened()
	// Closed runs after the current connection closes or fails.
	Closed()
	// Received runs for every inbound frame, in arrival order.
	Received(msg []byte)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnOpen    func()
	OnClose   func()
	OnMessage func(msg []byte)
}

// Opened implements Observer.
func (o ObserverFuncs) Opened() {
	if o.OnOpen != nil {
		o.OnOpen()
	}
}

// Closed implements Observer.
func (o ObserverFuncs) Closed() {
	if o.OnClose != nil {
		o.OnClose()
	}
}

// Received implements Observer.
func (o ObserverFuncs) Received(msg []byte) {
	if o.OnMessage != nil {
		o.OnMessage(msg)
	}
}
