package client

import "errors"

// Sentinel errors for the client package.
var (
	// ErrSupervisorClosed is returned by Send after Close.
	ErrSupervisorClosed = errors.New("supervisor is closed")

	// ErrNotConnected is returned by a Conn that is not open.
	ErrNotConnected = errors.New("websocket is not connected")

	// errClosedBeforeOpen is reported when Close wins the race with a dial.
	errClosedBeforeOpen = errors.New("connection closed before open")

	// ErrEmptyGroup is returned when joining a group with an empty name.
	ErrEmptyGroup = errors.New("group name cannot be empty")
)
