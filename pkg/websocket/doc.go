// Package websocket is the server side of groupsocket.
//
// A Registry tracks group membership for connections and fans broadcasts
// out to the open members of a group. A Handler accepts websocket upgrades
// (github.com/coder/websocket), reads JOIN_GROUP and LEAVE_GROUP commands
// from each client and applies them to the Registry. The heartbeat monitor
// pings tracked connections and terminates those that stop answering.
//
// Usage:
//
//	registry := websocket.NewRegistry(websocket.WithLogger(logger))
//	handler, _ := websocket.NewHandler(registry)
//	http.Handle("/websockets", handler)
//
//	registry.StartHeartbeatChecker(ctx, websocket.DefaultHeartbeatInterval)
//
//	// Anywhere in the host process:
//	n, err := registry.MessageGroup("events", map[string]string{"reason": "test"})
//
// Connections are only tracked once they join a group. Closing a connection
// removes it from every group it joined.
package websocket
