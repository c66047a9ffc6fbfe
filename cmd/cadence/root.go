package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/cadence/internal/config"
	"github.com/aristath/cadence/internal/logging"
)

// globalFlags holds the flags shared by every subcommand.
type globalFlags struct {
	globalConfig  string
	projectConfig string
	logLevel      string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "cadence",
		Short: "Cooperative task kernel with a priority event bus",
		Long: `cadence drives a set of cooperative tasks from a YAML manifest.

Tasks are ordered by dependency and priority band, ticked by a single
kernel, and talk to each other through named event channels. Lifecycle
transitions can be journaled to SQLite and browsed afterwards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.globalConfig, "global-config", config.GlobalPath(), "Global config file")
	pf.StringVarP(&flags.projectConfig, "config", "c", config.ProjectPath(), "Project config file")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(flags),
		newValidateCmd(flags),
		newMonitorCmd(flags),
		newJournalCmd(flags),
	)
	return cmd
}

// load reads the configuration and installs the process logger.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.globalConfig, f.projectConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	if err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	}); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}
