package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/hal-runtime/components"
)

// NewComponentsCommand creates the components command.
func NewComponentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "components",
		Short: "List the bundled components a configuration can instantiate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, n := range components.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
