package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/chronicler/internal/config"
	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/flat"
	"github.com/hpungsan/chronicler/internal/model"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: <baseDir>/exports/chronicler_backup_<timestamp>.json
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string         `json:"path"`
	Counts     map[string]int `json:"counts"`
	ExportedAt string         `json:"exported_at"`
}

// Export writes every collection in src to a backup file. An existing file at
// the path is replaced atomically.
func Export(ctx context.Context, src Collections, cfg *config.Config, baseDir string, input ExportInput) (*ExportOutput, error) {
	now := model.Now()

	path := input.Path
	if path == "" {
		path = defaultExportPath(baseDir, now.Time)
	}
	// Default paths are validated too.
	if err := ValidatePath(path, PathCheckWrite, cfg, baseDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	doc := &Document{ExportDate: now, Version: FormatVersion}
	counts := make(map[string]int)
	for _, k := range model.Kinds() {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewInternal(err)
		}
		items := src.Items(k)
		doc.setCollection(k, items)
		counts[k.Space()] = len(items)
	}

	data, err := Encode(doc)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := flat.WriteFileAtomic(path, data, 0600); err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path:       path,
		Counts:     counts,
		ExportedAt: now.Format(time.RFC3339),
	}, nil
}

// defaultExportPath is <baseDir>/exports/chronicler_backup_<timestamp>.json.
func defaultExportPath(baseDir string, now time.Time) string {
	name := fmt.Sprintf("chronicler_backup_%s.json", now.UTC().Format("2006-01-02T150405"))
	return filepath.Join(DefaultExportsDir(baseDir), name)
}
