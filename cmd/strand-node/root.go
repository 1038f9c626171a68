package main

import (
	"github.com/spf13/cobra"

	"github.com/strand-sched/strand/version"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "strand-node",
		Version: version.Version,
	}

	cmd.AddCommand(newCompletionCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}
