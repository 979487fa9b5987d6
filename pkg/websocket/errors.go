package websocket

import "errors"

// Common errors for the websocket package.
var (
	// ErrConnectionClosed indicates the connection is closed.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNilRegistry indicates a handler was created without a registry.
	ErrNilRegistry = errors.New("registry is required")
)
