package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pigeon-im/pigeon/internal/store/migrations"
)

// MigrateResult reports the schema state after Migrate returns.
type MigrateResult struct {
	// Version is the schema version the database ended up at.
	Version uint
	// Dirty is set when a previous migration run was interrupted mid-step.
	Dirty bool
	// Changed is false when the schema was already current.
	Changed bool
}

// Migrate applies pending schema migrations from the embedded sources.
// Safe to run on every startup; an up-to-date database is left untouched.
func (db *DB) Migrate() (*MigrateResult, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	drv, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return nil, fmt.Errorf("migrator: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return nil, fmt.Errorf("apply migrations: %w", upErr)
	}

	version, dirty, _ := m.Version()
	return &MigrateResult{
		Version: version,
		Dirty:   dirty,
		Changed: upErr == nil,
	}, nil
}
