package command

import (
	"gfxrelay/cmd/relay-cli/command/client"
	"gfxrelay/internal/protocol"

	"github.com/spf13/cobra"
)

// listenCmd joins the relay as one role and prints what that role receives
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Watch the messages a role receives",
	Long: `Connect to the relay as a Main or Sub dashboard and print every message
relayed to that role. Listening as "sub" shows what the Main dashboard
sends; listening as "main" shows what Sub dashboards report back.

The connection reconnects the same way a dashboard does. Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		roleFlag, _ := cmd.Flags().GetString("role")
		role, err := protocol.ParseRole(roleFlag)
		if err != nil {
			return err
		}

		return client.Listen(role, client.PeerOptions(cfg, relayURL), clientLogger())
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringP("role", "r", "sub", "role to connect as (main or sub)")
}
