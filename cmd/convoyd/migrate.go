package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbitalcx/convoy/internal/config"
	"github.com/orbitalcx/convoy/internal/store/pg"
)

var migrationsPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Postgres schema migrations",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsPath, "path", "internal/store/pg/migrations", "directory of golang-migrate migration files")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("migrate: postgres.dsn is not set")
	}
	if err := pg.Migrate(cfg.Postgres.DSN, migrationsPath); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println("convoyd: migrations applied")
	return nil
}
