package cmd

import (
	"github.com/sahana-project/ewaste-api/config"
	"github.com/sahana-project/ewaste-api/internal/db"
	"github.com/spf13/cobra"
)

var migrationsURL string

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return db.Migrate(config.LoadConfig().Database, migrationsURL, db.Up)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert all migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return db.Migrate(config.LoadConfig().Database, migrationsURL, db.Down)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.PersistentFlags().StringVar(&migrationsURL, "source", db.DefaultMigrationsURL, "migration source URL")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
