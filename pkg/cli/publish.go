package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tgnms/groupsocket/pkg/admin/adminclient"
	"github.com/tgnms/groupsocket/pkg/cli/internal/output"
)

var publishCmd = &cobra.Command{
	Use:   "publish <group> [json]",
	Short: "Broadcast a JSON payload to a group",
	Long: `Send a JSON payload to every open member of a group through the admin API.
The payload is read from stdin when it is omitted or "-".`,
	Example: `  groupsocket publish events '{"reason":"test"}'
  echo '[1,2,3]' | groupsocket publish links`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAdminClient(cmd)
		if err != nil {
			return err
		}

		var payload []byte
		if len(args) == 2 && args[1] != "-" {
			payload = []byte(args[1])
		} else if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		payload = []byte(strings.TrimSpace(string(payload)))
		if !json.Valid(payload) {
			return errors.New("payload is not valid JSON")
		}

		resp, err := c.Publish(cmd.Context(), args[0], payload)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if jsonOutput {
			return output.JSON(w, resp)
		}
		fmt.Fprintf(w, "Sent to %d recipient(s) in %s\n", resp.Recipients, resp.Group)
		return nil
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups [group]",
	Short: "List groups, or the members of one group",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAdminClient(cmd)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()

		if len(args) == 1 {
			group, err := c.Group(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return output.JSON(w, group)
			}
			for _, id := range group.Members {
				fmt.Fprintln(w, id)
			}
			return nil
		}

		groups, err := c.Groups(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(w, groups)
		}
		if len(groups) == 0 {
			fmt.Fprintln(w, "No groups")
			return nil
		}
		tw := output.Table(w)
		fmt.Fprintln(tw, "GROUP\tMEMBERS")
		for _, g := range groups {
			fmt.Fprintf(tw, "%s\t%d\n", g.Name, g.Members)
		}
		return tw.Flush()
	},
}

// newAdminClient returns a client for --admin-url, or for the configured
// admin address when the flag is not set.
func newAdminClient(cmd *cobra.Command) (*adminclient.Client, error) {
	if url, _ := cmd.Flags().GetString("admin-url"); url != "" {
		return adminclient.New(url), nil
	}
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Server.AdminAddr == "" {
		return nil, errors.New("admin API is disabled (server.adminAddr is empty); pass --admin-url")
	}
	return adminclient.New(adminURL(cfg.Server.AdminAddr)), nil
}

// adminURL turns a listen address into a URL on the local host.
func adminURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func init() {
	for _, cmd := range []*cobra.Command{publishCmd, groupsCmd} {
		cmd.Flags().String("admin-url", "", "Admin API base URL (default: derived from server.adminAddr)")
		rootCmd.AddCommand(cmd)
	}
}
