package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Check a run file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(args[0])
			if err != nil {
				return err
			}
			plan, err := f.Build()
			if err != nil {
				return err
			}

			prof := plan.Run.Profile
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ %s is valid\n", args[0])
			fmt.Fprintf(out, "  name:      %s\n", plan.Name)
			fmt.Fprintf(out, "  profile:   %s, %d VUs peak", prof.Kind, prof.Peak())
			if d := prof.TotalDuration(); d > 0 {
				fmt.Fprintf(out, ", %s", d)
			}
			if prof.Iterations > 0 {
				fmt.Fprintf(out, ", %d iterations per VU", prof.Iterations)
			}
			if plan.Run.MaxRate > 0 {
				fmt.Fprintf(out, ", at most %g calls/s", plan.Run.MaxRate)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  scenarios: %d\n", len(plan.Scenarios))
			for _, def := range plan.Scenarios {
				fmt.Fprintf(out, "    - %s: %s %s (%d checks)\n", def.Name, def.Method, def.Endpoint, len(def.Validators))
			}
			return nil
		},
	}
}
