package websocket

import "github.com/tgnms/groupsocket/pkg/protocol"

// CloseCode is a websocket close status code per RFC 6455.
type CloseCode int

const (
	// CloseNormalClosure indicates a normal closure (1000).
	CloseNormalClosure CloseCode = 1000
	// CloseGoingAway indicates the endpoint is going away (1001).
	CloseGoingAway CloseCode = 1001
	// ClosePolicyViolation indicates a policy violation (1008).
	ClosePolicyViolation CloseCode = 1008
	// CloseMessageTooBig indicates a message exceeded the read limit (1009).
	CloseMessageTooBig CloseCode = 1009
	// CloseInternalError indicates an internal server error (1011).
	CloseInternalError CloseCode = 1011
)

// String returns a human-readable description of the close code.
func (c CloseCode) String() string {
	switch c {
	case CloseNormalClosure:
		return "normal closure"
	case CloseGoingAway:
		return "going away"
	case ClosePolicyViolation:
		return "policy violation"
	case CloseMessageTooBig:
		return "message too big"
	case CloseInternalError:
		return "internal error"
	default:
		return "unknown"
	}
}

// Peer is a server-side connection as seen by the Registry.
type Peer interface {
	// ID uniquely identifies the connection for its lifetime.
	ID() string
	// ReadyState reports the connection's readiness.
	ReadyState() protocol.ReadyState
	// Send writes a text frame.
	Send(data []byte) error
	// Ping starts a liveness probe. A successful probe runs the pong
	// handlers; it must not block.
	Ping()
	// Terminate drops the connection without a closing handshake.
	Terminate()
	// OnClose registers fn to run once when the connection closes. If it
	// is already closed, fn runs immediately.
	OnClose(fn func())
	// OnPong registers fn to run on every pong.
	OnPong(fn func())
}

// Stats is a snapshot of registry state.
type Stats struct {
	Connections int            `json:"connections"`
	Groups      int            `json:"groups"`
	Memberships int            `json:"memberships"`
	GroupSizes  map[string]int `json:"groupSizes"`
}

// GroupInfo describes one group.
type GroupInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}
