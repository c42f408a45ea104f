package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationNotFound is returned by MigrateDown when the latest applied
	// version has no matching file.
	ErrMigrationNotFound = errors.New("database: migration not found")

	// ErrNoDownMigration is returned by MigrateDown for a migration without
	// a .down.sql file.
	ErrNoDownMigration = errors.New("database: migration has no down SQL")
)
