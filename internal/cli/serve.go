package cli

import (
	"github.com/spf13/cobra"

	"redditstudy/internal/app"
)

func newServeCmd() *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Telegram bot and scheduled studies",
		Long: "serve runs until interrupted. Studies start on the STUDY_CRON schedule,\n" +
			"or immediately with --now.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				return a.Serve(cmd.Context(), app.ServeOptions{StudyNow: now})
			})
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "start a study immediately")
	return cmd
}
