package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zoobzio/chainz/config"
)

func newValidateCmd() *cobra.Command {
	var file string
	var envPrefix string
	var showSchema bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a pipeline definition without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := config.Load(file, envPrefix)
			if err != nil {
				return err
			}
			pipeline, err := config.Build(builtins(environment{}), def)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			out := cmd.OutOrStdout()
			if showSchema {
				data, err := pipeline.Schema().JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "ok: %s (%d operations)\n", pipeline.Name(), pipeline.Len())
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to pipeline definition")
	cmd.Flags().StringVar(&envPrefix, "env-prefix", "CHAINZ_", "Prefix of environment overrides (empty disables)")
	cmd.Flags().BoolVar(&showSchema, "schema", false, "Print the built pipeline structure as JSON")
	cmd.MarkFlagRequired("file") //nolint:errcheck

	return cmd
}
