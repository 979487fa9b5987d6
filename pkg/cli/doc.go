// Package cli implements the groupsocket command-line interface.
//
// Commands:
//
//	serve     run the websocket server, heartbeat, admin API and MQTT ingest
//	listen    join groups and print received envelopes as JSON lines
//	publish   broadcast a JSON payload to a group through the admin API
//	groups    list groups or the members of one group
//	config    show the resolved configuration
//	version   show build information
package cli
