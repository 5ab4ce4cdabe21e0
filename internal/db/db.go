// Package db opens and migrates the control-plane's sqlite file. The
// database is never the source of truth for apps/machines/leases (that
// stays in internal/store's maps); it exists so /health/ready and
// /health/comprehensive have something real to ping, matching spec §9.
package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// PathFromURL strips the "sqlite:" scheme spec §6 uses for
// MINIFLY_DATABASE_URL, returning the bare filesystem path.
func PathFromURL(databaseURL string) string {
	return strings.TrimPrefix(databaseURL, "sqlite:")
}

// Open opens (creating if needed) the sqlite file at path and runs the
// control-plane migration.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// schema is intentionally minimal: a single table recording deploys
// for diagnostic purposes, since the control plane keeps its real
// state in memory.
const schema = `
CREATE TABLE IF NOT EXISTS deploy_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	app_name TEXT NOT NULL,
	machine_id TEXT NOT NULL,
	deployed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
