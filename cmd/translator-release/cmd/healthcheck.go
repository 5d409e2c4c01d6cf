package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/translator-release/internal/service/lifecycle"
)

// healthcheckCmd probes the running backend.
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe the running backend over IPC",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if err = lifecycle.New(cfg).Healthcheck(cmd.Context()); err != nil {
			return err
		}

		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Backend is healthy")

		return nil
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
