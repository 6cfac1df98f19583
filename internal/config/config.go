package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	// DisablePrimary forces fallback-only operation, as if the runtime had no
	// transactional storage available. Mostly useful for diagnosing the fallback path.
	DisablePrimary bool `json:"disable_primary,omitempty" yaml:"disable_primary,omitempty"`

	// FallbackQuotaBytes caps the total size of the flat key-value backend.
	// Writes that would exceed it fail with a quota error.
	FallbackQuotaBytes int64 `json:"fallback_quota_bytes" yaml:"fallback_quota_bytes"`

	// StorageQuotaBytes is the quota reported by usage estimation.
	// 0 means "whatever the filesystem has left".
	StorageQuotaBytes int64 `json:"storage_quota_bytes,omitempty" yaml:"storage_quota_bytes,omitempty"`

	// StorageWarnPercent is the usage percentage above which callers should warn.
	StorageWarnPercent int `json:"storage_warn_percent" yaml:"storage_warn_percent"`

	// UsagePollSeconds is the interval for periodic usage polling by long-running surfaces.
	UsagePollSeconds int `json:"usage_poll_seconds" yaml:"usage_poll_seconds"`

	// AllowedPaths is an allowlist of directories for backup import/export.
	// Paths outside <data dir>/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty" yaml:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty" yaml:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// LogPretty switches logs to zerolog's human-readable console writer.
	LogPretty bool `json:"log_pretty,omitempty" yaml:"log_pretty,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		FallbackQuotaBytes: 5 * 1024 * 1024,
		StorageWarnPercent: 80,
		UsagePollSeconds:   60,
		LogLevel:           "info",
	}
}

// Load loads configuration from baseDir/config.json, or baseDir/config.yaml when
// no JSON file exists. Returns default config if neither file exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.chronicler.
func Load(baseDir string) (*Config, error) {
	jsonPath := filepath.Join(baseDir, "config.json")
	if _, err := os.Stat(jsonPath); err == nil {
		return loadFile(jsonPath)
	}
	return loadFile(filepath.Join(baseDir, "config.yaml"))
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch filepath.Ext(configPath) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.FallbackQuotaBytes = overlay.FallbackQuotaBytes
	if result.FallbackQuotaBytes == 0 {
		result.FallbackQuotaBytes = base.FallbackQuotaBytes
	}

	result.StorageQuotaBytes = overlay.StorageQuotaBytes
	if result.StorageQuotaBytes == 0 {
		result.StorageQuotaBytes = base.StorageQuotaBytes
	}

	result.StorageWarnPercent = overlay.StorageWarnPercent
	if result.StorageWarnPercent == 0 {
		result.StorageWarnPercent = base.StorageWarnPercent
	}

	result.UsagePollSeconds = overlay.UsagePollSeconds
	if result.UsagePollSeconds == 0 {
		result.UsagePollSeconds = base.UsagePollSeconds
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	result.LogLevel = strings.TrimSpace(overlay.LogLevel)
	if result.LogLevel == "" {
		result.LogLevel = base.LogLevel
	}

	// Booleans: overlay wins if true, else base
	result.DisablePrimary = base.DisablePrimary || overlay.DisablePrimary
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.LogPretty = base.LogPretty || overlay.LogPretty

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
