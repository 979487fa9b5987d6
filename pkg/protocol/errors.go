package protocol

// Error is a simple error type for protocol errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors for frame encoding and decoding.
var (
	// ErrMalformedFrame is returned when an inbound frame is not valid JSON
	// or does not match the expected envelope shape.
	ErrMalformedFrame = Error("malformed frame")

	// ErrUnknownCommand is returned when a command frame carries a type
	// other than JOIN_GROUP or LEAVE_GROUP.
	ErrUnknownCommand = Error("unknown command type")

	// ErrEmptyGroup is returned when a group name is empty.
	ErrEmptyGroup = Error("group name cannot be empty")
)
