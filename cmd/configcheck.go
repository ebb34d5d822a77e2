package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edurelay/ltirelay/internal/lti"
)

// configCheckCmd validates the tool registration file without starting the
// server: JSON shape, key files, deployment lists.
var configCheckCmd = &cobra.Command{
	Use:   "config-check",
	Short: "Validate the tool registration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := lti.LoadToolConfig(cfg.ToolConfigPath)
		if err != nil {
			return fmt.Errorf("tool config %s: %w", cfg.ToolConfigPath, err)
		}
		for _, issuer := range conf.Issuers() {
			for _, reg := range conf.Registrations(issuer) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s client_id=%s deployments=%d\n",
					issuer, reg.ClientID, len(reg.DeploymentIDs))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCheckCmd)
}
