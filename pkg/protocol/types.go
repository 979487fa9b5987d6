package protocol

import (
	"encoding/json"
	"fmt"
)

// ReadyState is the readiness of a connection.
type ReadyState int

const (
	// Connecting means the connection has not yet been established.
	Connecting ReadyState = 0
	// Open means the connection is established and can carry frames.
	Open ReadyState = 1
	// Closing means the connection is going through the closing handshake.
	Closing ReadyState = 2
	// Closed means the connection is closed or could not be opened.
	Closed ReadyState = 3
)

// String returns the string representation of the ready state.
func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// CommandType identifies a control-plane command.
type CommandType string

const (
	// JoinGroup asks the server to add the sending connection to a group.
	JoinGroup CommandType = "JOIN_GROUP"
	// LeaveGroup asks the server to remove the sending connection from a group.
	LeaveGroup CommandType = "LEAVE_GROUP"
)

// Valid reports whether t is a known command type.
func (t CommandType) Valid() bool {
	return t == JoinGroup || t == LeaveGroup
}

// Command is a control frame sent from client to server.
// Payload holds the group name.
type Command struct {
	Type    CommandType `json:"type"`
	Payload string      `json:"payload"`
}

// NewJoinCommand returns a JOIN_GROUP command for group.
func NewJoinCommand(group string) Command {
	return Command{Type: JoinGroup, Payload: group}
}

// NewLeaveCommand returns a LEAVE_GROUP command for group.
func NewLeaveCommand(group string) Command {
	return Command{Type: LeaveGroup, Payload: group}
}

// Encode serializes the command to JSON.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// MustEncode is like Encode but panics on error. Commands only carry strings,
// so encoding cannot fail in practice.
func (c Command) MustEncode() []byte {
	data, err := c.Encode()
	if err != nil {
		panic(fmt.Sprintf("protocol: encode command: %v", err))
	}
	return data
}

// DecodeCommand parses a command frame.
// Unknown command types decode successfully; callers decide whether to
// ignore them (see CommandType.Valid).
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return cmd, nil
}
