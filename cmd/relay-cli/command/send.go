package command

import (
	"fmt"
	"time"

	"gfxrelay/cmd/relay-cli/command/client"
	"gfxrelay/internal/protocol"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one message as main or sub",
	Long: `Connect as the given role, send a single message and disconnect.

Examples:
  relayctl send --role main --type cue_item_cancelled --payload '{"cueItemId":"c-12"}'
  relayctl send --role sub --type render_complete --payload '{"jobId":"j1","output":{"outputPath":"/out/j1.mov"}}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		roleFlag, _ := cmd.Flags().GetString("role")
		msgType, _ := cmd.Flags().GetString("type")
		payload, _ := cmd.Flags().GetString("payload")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		role, err := protocol.ParseRole(roleFlag)
		if err != nil {
			return err
		}

		env, err := client.BuildEnvelope(msgType, payload, time.Now())
		if err != nil {
			return err
		}
		if env.Direction() != role.Sends() {
			return fmt.Errorf("%w: %s cannot be sent as %s", protocol.ErrWrongDirection, env.Type, role)
		}

		if err := client.SendOnce(role, client.PeerOptions(cfg, relayURL), env, timeout, clientLogger()); err != nil {
			return err
		}

		color.Green("✅ sent %s as %s", env.Type, role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringP("role", "r", "", "role to send as (main or sub) (required)")
	sendCmd.Flags().StringP("type", "t", "", "message type (required)")
	sendCmd.Flags().StringP("payload", "p", "{}", "JSON object payload")
	sendCmd.Flags().Duration("timeout", 5*time.Second, "handshake timeout")
	sendCmd.MarkFlagRequired("role")
	sendCmd.MarkFlagRequired("type")
}
