package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/chronicler/internal/config"
)

func sqliteObject(t *testing.T, db *sql.DB, typ, name string) bool {
	t.Helper()
	var got string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type=? AND name=?", typ, name).Scan(&got)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		t.Fatalf("sqlite_master lookup %s %s: %v", typ, name, err)
	}
	return true
}

func TestInit_Schema(t *testing.T) {
	dir := t.TempDir()
	db, err := Init(context.Background(), dir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("database file missing: %v", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}

	for _, space := range Spaces {
		if !sqliteObject(t, db, "table", space) {
			t.Errorf("table %s missing", space)
		}
		if !sqliteObject(t, db, "index", "idx_"+space+"_name") {
			t.Errorf("name index for %s missing", space)
		}
	}
	if !sqliteObject(t, db, "table", "settings") {
		t.Error("settings table missing")
	}
}

func TestInit_NestedDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", ".chronicler")
	db, err := Init(context.Background(), dir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", dir)
	}
}

func TestInit_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Init(ctx, dir)
	if err != nil {
		t.Fatalf("first Init() error = %v", err)
	}
	if err := ReplaceAll(ctx, first, "characters", rowsOf("c1")); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	first.Close()

	second, err := Init(ctx, dir)
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	defer second.Close()

	version, err := GetUserVersion(second)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, CurrentSchemaVersion)
	}
	rows, err := All(ctx, second, "characters")
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows after reopen = %d, want 1", len(rows))
	}
}

func TestInit_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if db, err := Init(ctx, t.TempDir()); err == nil {
		db.Close()
		t.Fatal("Init() with canceled context succeeded")
	}
}

func TestConfigurePool(t *testing.T) {
	db := openTestDB(t)

	ConfigurePool(db, nil)
	ConfigurePool(db, &config.Config{DBMaxOpenConns: 1, DBMaxIdleConns: 1})

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}
