package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/config"
	"github.com/wippyai/hal-runtime/hal"
	"github.com/wippyai/hal-runtime/sched"
)

type runOptions struct {
	duration time.Duration
	teardown time.Duration
	dump     bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create an arena from the configuration and run its threads",
		Long: `Create an arena, load the configured components and instances, wire
their pins, and drive every thread at its period until interrupted.

With --segment the arena is shared and other halrun processes can show
or watch it while it runs. The segment is removed on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runArena(ctx, cmd, rootOpts, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().DurationVar(&opts.teardown, "teardown-timeout", 2*time.Second, "how long teardown waits for running functs")
	cmd.Flags().BoolVar(&opts.dump, "dump", false, "print the directory before exiting")

	return cmd
}

func loadConfig(rootOpts *RootOptions) (*config.Config, error) {
	cfg := &config.Config{}
	if rootOpts.Config != "" {
		var err error
		if cfg, err = config.Load(rootOpts.Config); err != nil {
			return nil, err
		}
	}
	if rootOpts.Segment != "" {
		cfg.Segment = rootOpts.Segment
	}
	return cfg, nil
}

func runArena(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, opts *runOptions) (err error) {
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	log, err := newLogger(rootOpts.Verbose, level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	hal.SetLogger(log)

	h, err := hal.New(cfg.HALConfig(log))
	if err != nil {
		return err
	}
	defer func() {
		if e := h.StopThreads(); e != nil {
			log.Warn("threads left running", zap.Error(e))
		}
		tctx, cancel := context.WithTimeout(context.Background(), opts.teardown)
		defer cancel()
		err = multierr.Append(err, h.Close(tctx))
	}()

	if err := cfg.Apply(ctx, h); err != nil {
		return err
	}

	runner, err := sched.New(h, nil, sched.WithLogger(log))
	if err != nil {
		return err
	}
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	log.Info("running", zap.Strings("threads", runner.Threads()), zap.String("segment", cfg.Segment))
	if err := runner.Run(ctx); err != nil {
		return err
	}
	if err := h.StopThreads(); err != nil {
		return err
	}

	if opts.dump {
		return h.Dump(cmd.OutOrStdout(), "all", "")
	}
	return nil
}
