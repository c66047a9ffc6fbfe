package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/cadence/internal/config"
	"github.com/aristath/cadence/internal/engine"
	"github.com/aristath/cadence/internal/logging"
	"github.com/aristath/cadence/internal/manifest"
)

type runOptions struct {
	duration time.Duration
	status   time.Duration
	journal  bool
	tick     time.Duration
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Run a manifest until it drains",
		Long: `Load a manifest, register its tasks with a fresh kernel and cycle
until every task has finished.

SIGINT or SIGTERM stops all tasks; the kernel keeps cycling until the
teardown hooks have run. --duration does the same after a fixed time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("journal") {
				cfg.Journal.Enabled = opts.journal
			}
			if cmd.Flags().Changed("tick") {
				cfg.Kernel.TickInterval = opts.tick
				if err := config.Validate(cfg); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runManifest(ctx, *cfg, args[0], opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop all tasks after this long (0 runs until drained)")
	cmd.Flags().DurationVar(&opts.status, "status", 0, "Log a progress line at this interval (0 disables)")
	cmd.Flags().BoolVar(&opts.journal, "journal", false, "Override journal.enabled")
	cmd.Flags().DurationVar(&opts.tick, "tick", 0, "Override kernel.tick_interval")
	return cmd
}

func runManifest(ctx context.Context, cfg config.Config, path string, opts *runOptions) (err error) {
	log := logging.Component("cli")

	m, err := manifest.Load(path)
	if err != nil {
		return err
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing engine: %w", cerr))
		}
	}()

	if err := eng.Apply(m); err != nil {
		return err
	}
	log.InfoCtx("manifest applied", map[string]any{
		"path":     path,
		"tasks":    len(m.Tasks),
		"channels": len(m.Channels),
	})

	// The reporter follows the engine, not ctx: it must exit when the
	// kernel drains on its own.
	reportCtx, cancelReport := context.WithCancel(context.Background())
	g := new(errgroup.Group)
	g.Go(func() error {
		defer cancelReport()
		return eng.Run(ctx)
	})
	if opts.status > 0 {
		g.Go(func() error {
			reportStatus(reportCtx, eng, opts.status, log)
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Infof("stopped after %d ticks", eng.Ticks())
		return nil
	}
	return err
}

func reportStatus(ctx context.Context, eng *engine.Engine, every time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.InfoCtx("status", map[string]any{
				"ticks": eng.Ticks(),
				"tasks": len(eng.Snapshot()),
			})
		}
	}
}
