// Package database provides the SQLite store behind the lifecycle journal.
//
// It opens the file with WAL mode and a busy timeout, pins the pool to a
// single connection, and applies embedded schema migrations.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. Migrations are additive only.
package database
