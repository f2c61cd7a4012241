package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/hal-runtime/hal"
)

// NewLockCommand creates the lock command.
func NewLockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock [level]",
		Short: "Print or change the lock level of a running arena",
		Long: `Attach to a shared arena and print its lock level, or replace it.
Levels: none, tune, all, or any of load, config, params and run joined
with '|'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var level hal.LockLevel
			if len(args) > 0 {
				var err error
				if level, err = hal.ParseLockLevel(args[0]); err != nil {
					return err
				}
			}
			h, err := attach(rootOpts)
			if err != nil {
				return err
			}
			defer h.Close(context.Background())
			if len(args) > 0 {
				if err := h.SetLock(level); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.LockLevel())
			return nil
		},
	}
	return cmd
}
