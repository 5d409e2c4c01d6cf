package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/translator-release/internal/service/packager"
)

var (
	// manifestOptions collects the manifest command flags.
	manifestOptions packager.Options

	// manifestCmd produces SHA256SUMS for publishing.
	manifestCmd = &cobra.Command{
		Use:   "manifest [dir]",
		Short: "Write or check the checksum manifest of release assets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options := manifestOptions
			if len(args) == 1 {
				options.Dir = args[0]
			}

			return packager.Run(cmd.Context(), &options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := manifestCmd.Flags()
	flags.StringSliceVar(&manifestOptions.Files, "file", nil, "asset to include (repeatable); default is every file")
	flags.StringVarP(&manifestOptions.Output, "output", "o", "", "manifest path (default <dir>/SHA256SUMS)")
	flags.BoolVar(&manifestOptions.Check, "check", false, "verify assets against an existing manifest")
	rootCmd.AddCommand(manifestCmd)
}
