package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Config  string
	Segment string
}

// NewRootCommand creates the halrun command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "halrun",
		Short:         "Run and inspect HAL shared-memory arenas",
		Long:          "halrun builds a HAL arena from a YAML file, drives its threads, and inspects arenas created by other processes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "development logging at debug level")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVarP(&opts.Segment, "segment", "s", "", "shared segment name (overrides the configuration)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewLockCommand(opts))
	cmd.AddCommand(NewComponentsCommand())

	return cmd
}

// newLogger builds a production logger at level, or a development logger
// at debug level when verbose is set. Logs go to stderr.
func newLogger(verbose bool, level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
