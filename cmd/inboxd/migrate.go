package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // PGX driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/ttinbox/inboxd/config"
	"github.com/ttinbox/inboxd/internal/store"
)

// migrateCmd applies database migration scripts.
var migrateCmd = &cobra.Command{
	Use:   "migrate [path-to-migration-scripts]",
	Short: "Run migration scripts",
	Long: `Run migration scripts to create or update the database schema.

The database connection is taken from the config file; the command fails
if no database is configured.

Example:
  inboxd migrate -c config.yaml ./migrations`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("migrate command accepts exactly one argument")
		}
		return nil
	},
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = migrateCmd.MarkFlagRequired("config")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database == nil {
		return errors.New("no database configured; the memory store needs no migrations")
	}

	migrationsDir := args[0]
	fileInfo, err := os.Stat(migrationsDir)
	if err != nil {
		return fmt.Errorf("the provided path to migration scripts is not valid: %v", err)
	}
	if !fileInfo.IsDir() {
		return fmt.Errorf("the provided path to migration scripts should be a directory, not a file")
	}

	dsn := store.PostgresConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}.URI("pgx5")

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsDir), dsn)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %v", err)
	}
	defer func() {
		if sErr, dbErr := m.Close(); sErr != nil || dbErr != nil {
			if sErr != nil {
				logger.Error("failed to close migration instance", "error", sErr)
			}
			if dbErr != nil {
				logger.Error("failed to close database connection", "error", dbErr)
			}
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %v", err)
	}
	logger.Info("migrations applied successfully")
	return nil
}
