package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tgnms/groupsocket/pkg/config"
	"github.com/tgnms/groupsocket/pkg/logging"
)

var (
	// Persistent flags available to all subcommands
	configPath string
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "groupsocket",
	Short: "groupsocket multiplexes named groups over one websocket",
	Long: `groupsocket runs a websocket server whose clients join named groups and
receive every message broadcast to those groups, and a client that shares
one reconnecting connection between many group listeners.

Configuration can be provided via flags, GROUPSOCKET_* environment variables,
./.groupsocket.yaml, or $XDG_CONFIG_HOME/groupsocket/config.yaml.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./.groupsocket.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "Log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this file")
}

// persistentFlagKeys maps root flags to config keys.
var persistentFlagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-file":   "log.file",
}

// loadConfig resolves the configuration for cmd: files and environment
// from config.LoadAll, then every flag in keys that was set explicitly.
func loadConfig(cmd *cobra.Command, keys map[string]string) (*config.Config, error) {
	cfg, err := config.LoadAll(configPath)
	if err != nil {
		return nil, err
	}

	apply := func(flags *pflag.FlagSet, keys map[string]string) error {
		for name, key := range keys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := cfg.Set(key, f.Value.String(), config.SourceFlag); err != nil {
				return fmt.Errorf("--%s: %w", name, err)
			}
		}
		return nil
	}
	if err := apply(cmd.Flags(), persistentFlagKeys); err != nil {
		return nil, err
	}
	if err := apply(cmd.Flags(), keys); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg. Logs go to stderr so
// command output on stdout stays machine readable.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	return logging.Open(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.ParseFormat(cfg.Log.Format),
		Output: stderr,
		File:   cfg.Log.File,
	})
}
