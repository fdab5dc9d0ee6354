package cmd

import (
	"fmt"

	"teamdrive/database"
	"teamdrive/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := openDatabase()
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("running database migrations", "driver", a.cfg.Database.Driver)
	if err := database.Migrate(a.db); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrations completed (driver: %s)\n", a.cfg.Database.Driver)
	return nil
}
