package main

import (
	"fmt"
	"os"

	"discussion-companion-be/internal/config"
	"discussion-companion-be/internal/model"
	"discussion-companion-be/internal/repository/specification"
	"discussion-companion-be/internal/repository/unitofwork"
	"discussion-companion-be/pkg/database"
	"discussion-companion-be/pkg/docstore"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	var driver, dsn string

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the users and documents tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if driver == "" {
				driver = cfg.Database.Driver
			}
			if dsn == "" {
				dsn = cfg.Database.Connection
			}
			if driver == database.DriverPostgres && dsn == "" {
				return fmt.Errorf("DB_CONNECTION_STRING is not set")
			}

			db, err := database.NewGormDB(database.GormConfig{Driver: driver, DSN: dsn})
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			color.Yellow("Running AutoMigrate (%s)...", driver)
			models := []interface{}{
				&model.User{},
				&docstore.DocumentRecord{},
			}
			if err := db.AutoMigrate(models...); err != nil {
				return fmt.Errorf("automigrate: %w", err)
			}
			color.Green("Success: database migration completed.")

			users := unitofwork.NewRepositoryFactory(db).NewUnitOfWork(cmd.Context()).UserRepository()
			active, err := users.Count(cmd.Context(), specification.ActiveUsers{})
			if err != nil {
				return fmt.Errorf("count users: %w", err)
			}
			color.Cyan("Active accounts: %d", active)
			return nil
		},
	}
	root.Flags().StringVar(&driver, "driver", "", "postgres or sqlite (default DB_DRIVER)")
	root.Flags().StringVar(&dsn, "dsn", "", "connection string (default DB_CONNECTION_STRING)")

	if err := root.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
