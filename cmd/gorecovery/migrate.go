package main

import (
	"github.com/spf13/cobra"

	"github.com/MrEthical07/goRecovery/directory/postgres"
	"github.com/MrEthical07/goRecovery/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version|force N]",
	Short:     "Manage the directory schema",
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{"up", "down", "version", "force"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return postgres.Migrate(logger.L, cfg.Postgres.DSN(), args[0], args[1:])
	},
}
