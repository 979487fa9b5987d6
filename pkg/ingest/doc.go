// Package ingest feeds groups from MQTT.
//
// A Router turns a topic of the form "<prefix>/<group>" into a group name
// and broadcasts the message payload through a Publisher, normally the
// websocket Registry. Payloads must be JSON documents and are forwarded
// unchanged.
//
// Two sources use a Router:
//
//   - Broker embeds an MQTT broker (github.com/mochi-mqtt/server/v2).
//     Anything published to it under the prefix reaches the group.
//   - Bridge follows an existing broker (github.com/eclipse/paho.mqtt.golang),
//     subscribing to "<prefix>/#" on every connect.
package ingest
