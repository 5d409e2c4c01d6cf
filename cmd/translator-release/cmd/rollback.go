package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/translator-release/internal/service/lifecycle"
)

var (
	// rollbackSkipHealthcheck disables the probe after rollback.
	rollbackSkipHealthcheck bool

	// rollbackCmd swaps current and previous.
	rollbackCmd = &cobra.Command{
		Use:   "rollback",
		Short: "Re-activate the previous release without fetching anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if rollbackSkipHealthcheck {
				cfg.Health.Enabled = false
			}

			result, err := lifecycle.New(cfg).Rollback(cmd.Context())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Current release is %s\n", result.Transition.To.ID)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rollbackCmd.Flags().BoolVar(&rollbackSkipHealthcheck, "skip-healthcheck", false, "do not probe the backend")
	rootCmd.AddCommand(rollbackCmd)
}
