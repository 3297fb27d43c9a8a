package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nulpointcorp/apibridge/internal/config"
)

func validateConfigCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Parse and validate a connector policy file, exiting nonzero on error",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.ConnectorsFile
			}

			policies, err := config.LoadPoliciesFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			cmd.Printf("%s: %d connector(s) valid\n", path, len(policies))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "file", "", "path to the connector policy file (default: CONNECTORS_FILE)")
	return cmd
}
