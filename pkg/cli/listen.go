package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tgnms/groupsocket/pkg/cli/internal/output"
	"github.com/tgnms/groupsocket/pkg/client"
	"github.com/tgnms/groupsocket/pkg/config"
	"github.com/tgnms/groupsocket/pkg/metrics"
	"github.com/tgnms/groupsocket/pkg/protocol"
)

// listenFlagKeys maps listen flags to config keys.
var listenFlagKeys = map[string]string{
	"url":             "client.url",
	"path":            "client.path",
	"reconnect-delay": "client.reconnectDelay",
}

var listenCmd = &cobra.Command{
	Use:   "listen <group>...",
	Short: "Join groups and print every message as a JSON line",
	Long: `Connect to a groupsocket server, join each named group and print every
envelope received as one line of JSON on stdout. The connection is
re-established after a drop and all groups are joined again.`,
	Example: `  groupsocket listen events
  groupsocket listen --url ws://dashboard:8080 events links --count 10`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, listenFlagKeys)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")

		log, closer, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() { _ = closer.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runListen(ctx, cmd.OutOrStdout(), log, cfg, args, count)
	},
}

// runListen prints envelopes for groups until ctx is done or count
// envelopes have been printed (count <= 0 means no limit).
func runListen(ctx context.Context, out io.Writer, log *slog.Logger, cfg *config.Config, groups []string, count int) error {
	dialer, err := client.NewDialer(cfg.Client.URL, client.WithDialerLogger(log))
	if err != nil {
		return err
	}
	set := metrics.NewClientSet(metrics.NewRegistry())
	sup := client.NewSupervisor(dialer.Dial,
		client.WithPath(cfg.Client.Path),
		client.WithReconnectDelay(cfg.Client.ReconnectDelay),
		client.WithLogger(log),
		client.WithMetrics(set),
	)
	mux := client.NewMultiplexer(sup,
		client.WithMultiplexerLogger(log),
		client.WithMultiplexerMetrics(set),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		printed int
	)
	emit := func(env *protocol.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		if count > 0 && printed >= count {
			return
		}
		if err := output.JSONLine(out, env); err != nil {
			log.Error("write failed", "error", err)
			cancel()
			return
		}
		printed++
		if count > 0 && printed == count {
			cancel()
		}
	}

	for _, group := range groups {
		if _, err := mux.Join(group, emit); err != nil {
			return err
		}
	}

	log.Info("listening", "url", dialer.URL(cfg.Client.Path), "groups", groups)
	sup.Start(ctx)
	<-ctx.Done()
	err = sup.Close()

	mu.Lock()
	n := printed
	mu.Unlock()
	log.Info("listener stopped",
		"printed", n,
		"reconnects", set.Reconnects(),
		"malformed", set.DroppedCount(metrics.DropMalformed),
		"unknown_group", set.DroppedCount(metrics.DropUnknownGroup),
	)
	return err
}

func init() {
	rootCmd.AddCommand(listenCmd)

	f := listenCmd.Flags()
	f.String("url", config.DefaultClientURL, "Server base URL (ws, wss, http or https)")
	f.String("path", config.DefaultPath, "Websocket endpoint path")
	f.Duration("reconnect-delay", config.DefaultReconnectDelay, "Delay before reconnecting after a drop")
	f.Int("count", 0, "Exit after printing this many messages (0 = run until interrupted)")
}
