// Package protocol defines the wire format shared by groupsocket clients and
// servers.
//
// Two frame shapes travel over a connection as JSON text frames:
//
//	// data (server -> client)
//	{"key": null, "group": "events", "payload": {"reason": "test"}}
//
//	// command (client -> server only)
//	{"type": "JOIN_GROUP", "payload": "events"}
//
// The payload of an Envelope is opaque to this package and is carried as
// json.RawMessage so it round-trips byte for byte.
//
// ReadyState mirrors the standard websocket readiness codes
// (CONNECTING=0, OPEN=1, CLOSING=2, CLOSED=3) and must keep those values for
// interoperability with existing browser clients.
package protocol
