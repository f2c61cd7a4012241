package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/hal"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [section] [prefix]",
		Short: "Print the directory of a running arena",
		Long: `Attach to a shared arena and print one section of its directory, or
all of them. Sections: ` + strings.Join(hal.DumpSections, ", ") + `.
The prefix filters pin, parameter and signal names.`,
		Args:      cobra.MaximumNArgs(2),
		ValidArgs: hal.DumpSections,
		RunE: func(cmd *cobra.Command, args []string) error {
			section, prefix := "all", ""
			if len(args) > 0 {
				section = args[0]
			}
			if len(args) > 1 {
				prefix = args[1]
			}
			h, err := attach(rootOpts)
			if err != nil {
				return err
			}
			defer h.Close(context.Background())
			return h.Dump(cmd.OutOrStdout(), section, prefix)
		},
	}
	return cmd
}

// attach opens the segment named by --segment or the configuration.
func attach(rootOpts *RootOptions) (*hal.HAL, error) {
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return nil, err
	}
	if cfg.Segment == "" {
		return nil, errors.InvalidInput(errors.PhaseAttach, "no segment given; use --segment or a configuration with segment set")
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(rootOpts.Verbose, level)
	if err != nil {
		return nil, err
	}
	return hal.Attach(cfg.HALConfig(log))
}
