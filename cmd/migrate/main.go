package main

import (
	"errors"
	"flag"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/liamcoop/derive/internal/config"
	"github.com/liamcoop/derive/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	var command string
	flag.StringVar(&cfg.DatabaseURL, "database", cfg.DatabaseURL, "Database URL (defaults to DATABASE_URL)")
	flag.StringVar(&cfg.MigrationsPath, "path", cfg.MigrationsPath, "Path to migrations directory (defaults to MIGRATIONS_PATH)")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	if cfg.DatabaseURL == "" {
		logger.Fatal("database URL is required, use -database or DATABASE_URL")
	}

	logger.Info("connecting to database", "migrations_path", cfg.MigrationsPath)

	m, err := migrate.New(fmt.Sprintf("file://%s", cfg.MigrationsPath), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err)
	}
	defer m.Close()

	if err := run(m, command, flag.Args()); err != nil {
		logger.Fatal("migration failed", "command", command, "error", err)
	}
}

// migrator is the subset of *migrate.Migrate the commands use
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
}

func run(m migrator, command string, args []string) error {
	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("migrations completed")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		logger.Info("rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number: -command force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", args[0], err)
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Info("forced version", "version", version)

	default:
		return fmt.Errorf("unknown command %q (use: up, down, version, force)", command)
	}
	return nil
}
