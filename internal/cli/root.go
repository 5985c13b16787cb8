package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// ErrThresholdsFailed is returned by the run command when the run
// completed but breached a threshold.
var ErrThresholdsFailed = errors.New("thresholds failed")

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "volley",
		Short:   "Load-test orchestration for HTTP APIs",
		Version: version,
		Long: `Volley runs load tests against HTTP APIs. A run file describes the target,
the scenarios virtual users invoke, the load profile (constant, ramp-up,
spike, soak, endurance) and the pass/fail thresholds; volley schedules the
virtual users, aggregates every outcome and prints a grouped report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil && !errors.Is(err, ErrThresholdsFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
