package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/cadence/internal/engine"
	"github.com/aristath/cadence/internal/logging"
	"github.com/aristath/cadence/internal/manifest"
	"github.com/aristath/cadence/internal/tui"
)

// shutdownTimeout bounds how long a signal waits for the monitor to exit.
const shutdownTimeout = 10 * time.Second

func newMonitorCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <manifest>",
		Short: "Run a manifest under the interactive monitor",
		Long: `Run a manifest with a terminal dashboard. The monitor drives the
kernel one cycle per frame and shows task states, lifecycle history and
channel backlogs. Space pauses, n single-steps, s suspends or resumes
the selected task and c opens the settings editor.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := engine.New(ctx, *cfg)
			if err != nil {
				return err
			}
			defer func() {
				eng.Drain()
				if cerr := eng.Close(); cerr != nil {
					err = errors.Join(err, fmt.Errorf("closing engine: %w", cerr))
				}
			}()
			if err := eng.Apply(m); err != nil {
				return err
			}

			model := tui.New(eng, cfg, flags.globalConfig, flags.projectConfig)
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			return runProgram(ctx, stop, p)
		},
	}
}

// runProgram runs p until the user quits or a signal arrives.
func runProgram(ctx context.Context, stop context.CancelFunc, p *tea.Program) error {
	log := logging.Component("cli")

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	case <-ctx.Done():
		// Restore default handling so a second Ctrl+C exits immediately.
		stop()
		log.Info("shutdown signal received, stopping tasks")
		p.Quit()

		select {
		case err := <-errChan:
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				log.Err(err).Msg("monitor exit error")
			}
		case <-time.After(shutdownTimeout):
			log.Warn("shutdown timeout exceeded, forcing exit")
		}
		return nil
	}
}
