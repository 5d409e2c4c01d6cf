package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/translator-release/internal/service/lifecycle"
)

var (
	// removePurge also deletes the asset cache.
	removePurge bool

	// removeCmd uninstalls every release.
	removeCmd = &cobra.Command{
		Use:   "remove",
		Short: "Stop the backend and delete all releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return lifecycle.New(cfg).Remove(cmd.Context(), lifecycle.RemoveOptions{Purge: removePurge})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	removeCmd.Flags().BoolVar(&removePurge, "purge", false, "also delete the verified asset cache")
	rootCmd.AddCommand(removeCmd)
}
