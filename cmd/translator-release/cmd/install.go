package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/service/lifecycle"
)

// installFlags are the flags of install and update.
type installFlags struct {
	tag             string
	repo            string
	manifest        string
	releaseID       string
	mode            string
	sourceDir       string
	forceRemote     bool
	skipHealthcheck bool
	autoRollback    bool
}

func newInstallCommand(use, short string) *cobra.Command {
	var flags installFlags

	command := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if err = flags.apply(cmd, cfg); err != nil {
				return err
			}

			result, err := lifecycle.New(cfg).Install(cmd.Context(), lifecycle.InstallOptions{
				ReleaseID: flags.releaseID,
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Activated release %s\n", result.Transition.To.ID)

			return nil
		},
	}

	f := command.Flags()
	f.StringVar(&flags.tag, "tag", "", `release tag or "latest"`)
	f.StringVar(&flags.repo, "repo", "", "release channel repository in owner/name form")
	f.StringVar(&flags.manifest, "manifest", "", "explicit manifest path or URL")
	f.StringVar(&flags.releaseID, "release-id", "", "release id override")
	f.StringVar(&flags.mode, "mode", "", `install mode: "release" or "local"`)
	f.StringVar(&flags.sourceDir, "source-dir", "", "trusted local source tree for local mode")
	f.BoolVar(&flags.forceRemote, "force-remote", false, "never use local or trusted assets")
	f.BoolVar(&flags.skipHealthcheck, "skip-healthcheck", false, "do not probe the backend after activation")
	f.BoolVar(&flags.autoRollback, "auto-rollback", false, "re-activate the previous release when the probe fails")

	return command
}

// apply copies changed flags into cfg and validates the result.
func (f *installFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("tag") {
		cfg.Channel.Tag = f.tag
	}

	if changed("repo") {
		cfg.Channel.Repo = f.repo
	}

	if changed("manifest") {
		cfg.Manifest.Source = f.manifest
	}

	if changed("mode") {
		cfg.Install.Mode = f.mode
	}

	if changed("source-dir") {
		cfg.Install.SourceDir = f.sourceDir
	}

	if changed("force-remote") {
		cfg.Assets.ForceRemote = f.forceRemote
	}

	if changed("skip-healthcheck") {
		cfg.Health.Enabled = !f.skipHealthcheck
	}

	if changed("auto-rollback") {
		cfg.Health.AutoRollback = f.autoRollback
	}

	return config.Validate(cfg)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(
		newInstallCommand("install", "Build, verify and activate a release"),
		newInstallCommand("update", "Same as install: build and activate the newest release"),
	)
}
