package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FallbackQuotaBytes != DefaultConfig().FallbackQuotaBytes {
		t.Fatalf("FallbackQuotaBytes = %d, want %d", cfg.FallbackQuotaBytes, DefaultConfig().FallbackQuotaBytes)
	}
	if cfg.StorageWarnPercent != 80 {
		t.Fatalf("StorageWarnPercent = %d, want 80", cfg.StorageWarnPercent)
	}
	if cfg.DisablePrimary {
		t.Fatal("DisablePrimary = true, want false")
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"fallback_quota_bytes": 500, "disable_primary": true}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FallbackQuotaBytes != 500 {
		t.Fatalf("FallbackQuotaBytes = %d, want %d", cfg.FallbackQuotaBytes, 500)
	}
	if !cfg.DisablePrimary {
		t.Fatal("DisablePrimary = false, want true")
	}
	// Untouched fields keep defaults
	if cfg.UsagePollSeconds != 60 {
		t.Fatalf("UsagePollSeconds = %d, want 60", cfg.UsagePollSeconds)
	}
}

func TestLoad_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlConfig := "storage_warn_percent: 90\nlog_level: debug\ndisabled_tools:\n  - data_reset\n"
	if err := os.WriteFile(configPath, []byte(yamlConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageWarnPercent != 90 {
		t.Errorf("StorageWarnPercent = %d, want 90", cfg.StorageWarnPercent)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "data_reset" {
		t.Errorf("DisabledTools = %v, want [data_reset]", cfg.DisabledTools)
	}
}

func TestLoad_JSONWinsOverYAML(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"storage_warn_percent": 70}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("storage_warn_percent: 95\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageWarnPercent != 70 {
		t.Errorf("StorageWarnPercent = %d, want 70 (json)", cfg.StorageWarnPercent)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"disabled_tools": ["data_reset", "collection_clear"]}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "data_reset" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "data_reset")
	}
	if cfg.DisabledTools[1] != "collection_clear" {
		t.Errorf("DisabledTools[1] = %q, want %q", cfg.DisabledTools[1], "collection_clear")
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{FallbackQuotaBytes: 10000, DBMaxOpenConns: 5, LogLevel: "info"}
	overlay := &Config{FallbackQuotaBytes: 5000, LogLevel: " warn "}

	result := Merge(base, overlay)

	if result.FallbackQuotaBytes != 5000 {
		t.Errorf("FallbackQuotaBytes = %d, want 5000 (overlay)", result.FallbackQuotaBytes)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", result.LogLevel)
	}
}

func TestMerge_ArraysDeduplicated(t *testing.T) {
	base := &Config{AllowedPaths: []string{"/a", " /b "}}
	overlay := &Config{AllowedPaths: []string{"/b", "", "/c"}}

	result := Merge(base, overlay)

	want := []string{"/a", "/b", "/c"}
	if len(result.AllowedPaths) != len(want) {
		t.Fatalf("AllowedPaths = %v, want %v", result.AllowedPaths, want)
	}
	for i := range want {
		if result.AllowedPaths[i] != want[i] {
			t.Errorf("AllowedPaths[%d] = %q, want %q", i, result.AllowedPaths[i], want[i])
		}
	}
}

func TestMerge_BooleansSticky(t *testing.T) {
	result := Merge(&Config{DisablePrimary: true}, &Config{LogPretty: true})
	if !result.DisablePrimary || !result.LogPretty {
		t.Errorf("booleans = %+v, want both true", result)
	}
}
