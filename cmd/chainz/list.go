package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in operation types",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Operation types:")
			fmt.Fprintln(out)
			for _, name := range builtins(environment{}).Names() {
				fmt.Fprintf(out, "  %-12s %s\n", name, descriptions[name])
			}
		},
	}
}
