package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"redditstudy/internal/config"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Validate the study plan and print it with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			plan, err := config.LoadPlan(cfg.Study.PlanFile)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(plan); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
