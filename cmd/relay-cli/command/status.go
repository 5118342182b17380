package command

import (
	"context"
	"fmt"
	"time"

	"gfxrelay/cmd/relay-cli/command/client"
	"gfxrelay/internal/microservices/relay"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relay status",
	Long:  `Query the relay's status route for its port and connected client counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client.FetchStatus(relayURL)
		if err != nil {
			return err
		}
		client.PrintStatus(status)
		return nil
	},
}

// presenceCmd reads the snapshot the relay publishes to Redis, which works
// even when the relay itself is unreachable.
var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Show the last presence snapshot from Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := relay.NewRedisPresence(cfg.RedisAddr(), cfg.RedisPassword, cfg.PresenceTTL)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		snap, err := store.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load presence: %w", err)
		}
		client.PrintSnapshot(snap)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(presenceCmd)
}
