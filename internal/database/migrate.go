package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies every pending up-migration from migrationsPath.
func RunMigrations(dsn, migrationsPath string) error {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return err
	}
	cfg.MultiStatements = true

	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		"mysql://"+cfg.FormatDSN(),
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
