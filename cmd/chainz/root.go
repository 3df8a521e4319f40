package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chainz",
		Short: "Run declarative pipelines with rollback",
		Long: `chainz runs pipelines described in YAML. Operations run in order; when one
faults, the operations that already ran are rolled back in reverse.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Disable default completion command
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
