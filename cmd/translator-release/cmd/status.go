package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/translator-release/internal/service/lifecycle"
)

// statusCmd prints pointers, releases and backend processes.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installed releases and the backend state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		status, err := lifecycle.New(cfg).Status(cmd.Context())
		if err != nil {
			return err
		}

		return printStatus(cmd.OutOrStdout(), status)
	},
}

func printStatus(out io.Writer, status lifecycle.Status) error {
	_, _ = fmt.Fprintf(out, "Root: %s\n", status.Root)

	if status.SupervisorErr != nil {
		_, _ = fmt.Fprintf(out, "Supervisor: unavailable (%v)\n", status.SupervisorErr)
	} else {
		_, _ = fmt.Fprintln(out, "Supervisor: available")
	}

	_, _ = fmt.Fprintf(out, "Backend processes: %d\n\n", len(status.Processes))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RELEASE\tROLE\tSOURCE\tBUILT AT")

	for _, info := range status.Releases {
		role := ""

		switch {
		case info.Current:
			role = "current"
		case info.Previous:
			role = "previous"
		case !info.Built:
			role = "incomplete"
		}

		source, builtAt := "-", "-"
		if info.Metadata != nil {
			source = string(info.Metadata.Source)
			builtAt = info.Metadata.BuiltAt.Local().Format(time.DateTime)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.ID, role, source, builtAt)
	}

	return w.Flush()
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(statusCmd)
}
