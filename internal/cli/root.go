// Package cli implements the redditstudy command line.
package cli

import (
	"github.com/spf13/cobra"

	"redditstudy/internal/app"
	"redditstudy/internal/config"
)

var (
	flagPlan     string
	flagLogLevel string
	flagStorage  string
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "redditstudy",
		Short: "Sample new Reddit posts and track how they evolve",
		Long: "redditstudy samples the most commented new posts of a set of subreddits\n" +
			"and records repeated snapshots of them. Configuration comes from the\n" +
			"environment and an optional .env file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagPlan, "plan", "", "study plan YAML file (overrides STUDY_PLAN_FILE)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "console log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flagStorage, "storage", "", "storage driver: sqlite or postgres (overrides STORAGE_DRIVER)")

	root.AddCommand(
		newServeCmd(),
		newStudyCmd(),
		newMigrateCmd(),
		newPlanCmd(),
	)
	return root
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if flagPlan != "" {
		cfg.Study.PlanFile = flagPlan
	}
	if flagLogLevel != "" {
		cfg.Log.ConsoleLevel = flagLogLevel
	}
	if flagStorage != "" {
		cfg.Storage.Driver = flagStorage
	}
	return cfg, nil
}

// withApp builds an App for the duration of fn.
func withApp(fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a := app.New(cfg)
	defer func() { _ = a.Close() }()
	return fn(a)
}
