package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"redditstudy/internal/app"
)

func newStudyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "study",
		Short: "Run one study in the foreground and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				res, err := a.RunStudy(cmd.Context())
				if res.Study.ID != "" {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Study:     %s\n", res.Study.ID)
					fmt.Fprintf(out, "  Status:    %s\n", res.Study.Status)
					fmt.Fprintf(out, "  Sampled:   %d\n", res.Sampled)
					fmt.Fprintf(out, "  Snapshots: %d\n", res.Snapshots)
					fmt.Fprintf(out, "  Failures:  %d\n", res.Failures)
					fmt.Fprintf(out, "  Duration:  %s\n", res.Duration)
				}
				return err
			})
		},
	}
}
