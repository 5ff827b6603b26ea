package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonop-io/wonopcore/internal/config"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Validate a config file's schema version against this build",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("migrate: --config is required")
			}
			if _, err := config.Load(configPath); err != nil {
				return err
			}
			fmt.Printf("config at %s is up to date (version %d)\n", configPath, config.CurrentVersion)
			return nil
		},
	}
}
