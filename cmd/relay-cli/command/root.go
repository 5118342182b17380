package command

// root.go defines the root command for relayctl and its global flags.

import (
	"fmt"
	"log/slog"
	"os"

	"gfxrelay/internal/config"
	"gfxrelay/internal/logging"

	"github.com/spf13/cobra"
)

var (
	relayURL string // Global flag for the dashboard websocket URL
	logLevel string

	cfg = config.Default()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "relayctl - operator tool for the dashboard relay",
	Long: `relayctl talks to the dashboard relay the same way the Main and Sub
dashboards do. Use it to:
- Watch the traffic one role receives
- Inject a single message as either role
- Check relay status and the presence snapshot in Redis

Use "relayctl command -h" to see all available commands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		if !cmd.Flags().Changed("relay") {
			relayURL = cfg.RelayURL
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay", cfg.RelayURL, "relay websocket URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "client log level")
}

// clientLogger keeps the peer client's own logs on stderr, below the
// command output.
func clientLogger() *slog.Logger {
	return logging.NewWithWriter(os.Stderr, logLevel, "text")
}
