package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tgnms/groupsocket/pkg/cli/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: `Display the effective configuration after merging defaults, config files
and GROUPSOCKET_* environment variables. With --sources, show where each
value came from.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()

		if sources, _ := cmd.Flags().GetBool("sources"); sources {
			keys := make([]string, 0, len(cfg.Sources))
			for k := range cfg.Sources {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			if jsonOutput {
				return output.JSON(w, cfg.Sources)
			}
			tw := output.Table(w)
			fmt.Fprintln(tw, "KEY\tSOURCE")
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%s\n", k, cfg.Sources[k])
			}
			return tw.Flush()
		}

		if jsonOutput {
			return output.JSON(w, cfg)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	configCmd.Flags().Bool("sources", false, "Show the source of each value")
	rootCmd.AddCommand(configCmd)
}

