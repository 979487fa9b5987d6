// Package client implements the client side of groupsocket: a reconnecting
// connection Supervisor and a group Multiplexer layered on top of it.
//
// # Usage
//
//	dialer, err := client.NewDialer("ws://localhost:8080")
//	if err != nil {
//	    return err
//	}
//	sup := client.NewSupervisor(dialer.Dial, client.WithPath("/websockets"))
//	mux := client.NewMultiplexer(sup)
//	sup.Start(ctx)
//
//	unsubscribe, err := mux.Join("events", func(env *protocol.Envelope) {
//	    fmt.Println(string(env.Payload))
//	})
//	defer unsubscribe()
//
// Joins made before the connection opens are queued and flushed in order
// once it does. After every reconnect the multiplexer re-joins all tracked
// groups, since the server forgets membership when a connection closes.
package client
