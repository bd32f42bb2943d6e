package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"redditstudy/internal/app"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending storage migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				m, err := a.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				if m.Applied {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: migrated from version %d to %d\n", m.Driver, m.From, m.To)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: schema up to date at version %d\n", m.Driver, m.To)
				}
				return nil
			})
		},
	}
}
