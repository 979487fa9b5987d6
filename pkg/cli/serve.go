package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tgnms/groupsocket/pkg/config"
)

// serveFlagKeys maps serve flags to config keys.
var serveFlagKeys = map[string]string{
	"addr":               "server.addr",
	"path":               "server.path",
	"admin-addr":         "server.adminAddr",
	"heartbeat-interval": "server.heartbeatInterval",
	"write-timeout":      "server.writeTimeout",
	"read-limit":         "server.readLimit",
	"origin-patterns":    "server.originPatterns",
	"prefix":             "ingest.prefix",
	"broker":             "ingest.broker.enabled",
	"broker-addr":        "ingest.broker.addr",
	"bridge-url":         "ingest.bridge.url",
	"bridge-client-id":   "ingest.bridge.clientId",
	"bridge-qos":         "ingest.bridge.qos",
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the groupsocket server (foreground)",
	Long: `Start the websocket server. Clients connect to the websocket path and send
JOIN_GROUP and LEAVE_GROUP commands; messages are broadcast to groups through
the admin API or the optional MQTT sources.

Connections that miss a heartbeat are terminated. The server shuts down
gracefully on SIGINT or SIGTERM.`,
	Example: `  # Start with defaults (websocket :8080/websockets, admin :8081)
  groupsocket serve

  # Accept browser connections from any origin
  groupsocket serve --origin-patterns '*'

  # Embed an MQTT broker: publishing to groupsocket/events broadcasts to "events"
  groupsocket serve --broker --broker-addr :1883

  # Follow an existing MQTT broker
  groupsocket serve --bridge-url tcp://mqtt.internal:1883 --prefix telemetry`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, serveFlagKeys)
		if err != nil {
			return err
		}

		log, closer, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() { _ = closer.Close() }()

		srv, err := newServer(cfg, log)
		if err != nil {
			return err
		}
		if err := srv.listen(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = srv.run(ctx)
		log.Info("server stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("addr", config.DefaultAddr, "Websocket listen address")
	f.String("path", config.DefaultPath, "Websocket endpoint path")
	f.String("admin-addr", config.DefaultAdminAddr, "Admin API listen address (empty disables it)")
	f.Duration("heartbeat-interval", config.DefaultHeartbeatInterval, "Time between liveness checks")
	f.Duration("write-timeout", config.DefaultWriteTimeout, "Timeout for each outbound frame")
	f.Int64("read-limit", config.DefaultReadLimit, "Maximum inbound frame size in bytes")
	f.String("origin-patterns", "", "Comma-separated cross-origin host patterns to accept")
	f.String("prefix", config.DefaultIngestPrefix, "MQTT topic prefix mapped to groups")
	f.Bool("broker", false, "Run an embedded MQTT broker")
	f.String("broker-addr", config.DefaultBrokerAddr, "Embedded MQTT broker address")
	f.String("bridge-url", "", "External MQTT broker to follow, e.g. tcp://host:1883")
	f.String("bridge-client-id", config.DefaultBridgeClientID, "MQTT client ID for the bridge")
	f.Int("bridge-qos", config.DefaultBridgeQoS, "Bridge subscription QoS (0-2)")
}
