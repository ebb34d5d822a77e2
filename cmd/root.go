package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edurelay/ltirelay/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ltirelay",
	Short: "LTI 1.3 launch relay for browser games",
	Long: `ltirelay serves an LTI Advantage tool: it relays cookie-blocked logins
and launches through a cache-backed handshake, validates platform launch
messages, and exposes score submission, scoreboard and deep-linking
endpoints.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	// Global flags; the matching environment variables win at load time.
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().String("server-url", "", "Public base URL of this tool (env: SERVER_URL)")
	rootCmd.PersistentFlags().String("tool-config", "", "Path to the tool registration file (env: TOOL_CONFIG_PATH)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
