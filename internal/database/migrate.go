package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrateUp runs all pending migrations to bring the database to the latest version.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m is not closed: that would close db, which the caller owns.
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// MigrationStatus describes the applied schema version against the embedded files.
type MigrationStatus struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Current reports whether the schema is at the latest version.
func (s MigrationStatus) Current() bool {
	return !s.Dirty && s.Version == s.Latest
}

// Status reads the applied schema version.
func (d *DB) Status() (MigrationStatus, error) {
	return CheckMigrationStatus(d.sql)
}

// CheckMigrationStatus reads the applied schema version of db.
func CheckMigrationStatus(db *sql.DB) (MigrationStatus, error) {
	var status MigrationStatus

	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return status, fmt.Errorf("read migration files: %w", err)
	}
	defer sourceDriver.Close()

	latest, err := latestVersion(sourceDriver)
	if err != nil {
		return status, fmt.Errorf("determine latest version: %w", err)
	}
	status.Latest = latest

	m, err := newMigrate(db)
	if err != nil {
		return status, fmt.Errorf("create migrate instance: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return status, nil
		}
		return status, fmt.Errorf("get database version: %w", err)
	}
	status.Version = version
	status.Dirty = dirty
	return status, nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create source driver: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

func latestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	latest := version
	for {
		next, err := src.Next(latest)
		if err != nil {
			break
		}
		latest = next
	}
	return latest, nil
}
