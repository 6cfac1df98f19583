// Package db is the SQLite primary backend: one table per record space plus a
// settings table, opened in WAL mode.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/chronicler/internal/config"
	_ "modernc.org/sqlite"
)

// FileName is the database file created under the data directory.
const FileName = "chronicler.db"

// openTimeout bounds the first round trip to a freshly opened database.
const openTimeout = 5 * time.Second

// Spaces lists the record space tables in creation order.
var Spaces = []string{"characters", "customSections", "worldBooks"}

// migrations[i] moves the schema from user_version i to i+1.
var migrations = []func() string{
	schemaV1,
}

// CurrentSchemaVersion is the latest schema version.
var CurrentSchemaVersion = len(migrations)

func schemaV1() string {
	var b strings.Builder
	for _, space := range Spaces {
		fmt.Fprintf(&b, `
		CREATE TABLE IF NOT EXISTS %[1]s (
		  id       TEXT PRIMARY KEY,
		  name     TEXT NOT NULL DEFAULT '',
		  position INTEGER NOT NULL,
		  record   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_name ON %[1]s(name);
		`, space)
	}
	b.WriteString(`
		CREATE TABLE IF NOT EXISTS settings (
		  key   TEXT PRIMARY KEY,
		  value TEXT NOT NULL,
		  date  INTEGER
		);
	`)
	return b.String()
}

// Init opens (creating if needed) baseDir/chronicler.db and brings its schema
// up to CurrentSchemaVersion.
func Init(ctx context.Context, baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := verifyWALMode(pingCtx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(pingCtx, db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)
	return db, nil
}

// ConfigurePool applies connection pool limits that are set (non-zero) in cfg.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate runs every migration above the stored user_version, each in its own
// transaction together with the version bump.
func migrate(ctx context.Context, db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}
	for v := version; v < len(migrations); v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[v]()); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", v+1, err)
		}
	}
	return nil
}

func verifyWALMode(ctx context.Context, db *sql.DB) error {
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&mode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if mode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", mode)
	}
	return nil
}

// GetUserVersion returns the schema version stored in the user_version pragma.
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}
