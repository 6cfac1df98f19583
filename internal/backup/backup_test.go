package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/chronicler/internal/config"
	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/model"
)

type memCollections map[model.Kind][]model.Entity

func (m memCollections) Items(kind model.Kind) []model.Entity {
	return append([]model.Entity{}, m[kind]...)
}

func (m memCollections) ReplaceCollection(kind model.Kind, items []model.Entity) error {
	m[kind] = items
	return nil
}

func sample() memCollections {
	entry := model.NewEntry("e1", 0)
	entry.Key = []string{"dragon"}
	return memCollections{
		model.KindCharacter: {&model.Character{ID: "c1", Name: "Alice", Versions: []model.CharacterVersion{{ID: "v1", Name: "Version 1", Description: "A"}}}},
		model.KindLorebook:  {&model.Lorebook{ID: "l1", Name: "Bestiary", Versions: []model.LorebookVersion{{ID: "lv1", Name: "Version 1", Entries: []model.Entry{entry}}}}},
		model.KindNotebook:  {},
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	out, err := Export(ctx, sample(), nil, base, ExportInput{})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, ExportsDirName), filepath.Dir(out.Path))
	require.True(t, strings.HasPrefix(filepath.Base(out.Path), "chronicler_backup_"))
	require.Equal(t, map[string]int{"characters": 1, "worldBooks": 1, "customSections": 0}, out.Counts)

	dst := memCollections{}
	in, err := Import(ctx, dst, nil, base, ImportInput{Path: out.Path})
	require.NoError(t, err)
	require.Equal(t, ImportModeReplace, in.Mode)
	require.Equal(t, 1, in.Imported["characters"])
	require.Empty(t, in.Errors)

	want := sample()
	for _, k := range model.Kinds() {
		require.Equal(t, want[k], dst[k], k)
	}
}

func TestExport_FileLayout(t *testing.T) {
	base := t.TempDir()
	out, err := Export(context.Background(), sample(), nil, base, ExportInput{})
	require.NoError(t, err)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Contains(t, doc, "characters")
	require.Contains(t, doc, "customSections")
	require.Contains(t, doc, "worldBooks")
	require.Contains(t, doc, "exportDate")
	require.JSONEq(t, `"1.0.0"`, string(doc["version"]))
	require.Contains(t, string(data), "\n  \"characters\"")
}

func TestImport_LegacyBackupWithoutLorebooks(t *testing.T) {
	base := t.TempDir()
	dir := DefaultExportsDir(base)
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "old.json")
	legacy := `{"characters":[{"id":"c1","name":"Alice","versions":[{"id":"v1","name":"Version 1"}]}],` +
		`"customSections":[{"id":"n1","name":"Notes"}],"exportDate":"2024-01-02T03:04:05.000Z","version":"1.0.0"}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0600))

	dst := sample()
	out, err := Import(context.Background(), dst, nil, base, ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 1, out.Imported["customSections"])
	require.Empty(t, dst[model.KindLorebook])
	require.NotNil(t, dst[model.KindLorebook])

	// Repair gives the version-less notebook an empty version list
	n := dst[model.KindNotebook][0].(*model.Notebook)
	require.Equal(t, "Notes", n.Name)
	require.NotNil(t, n.Versions)
}

func TestImport_Merge(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	out, err := Export(ctx, sample(), nil, base, ExportInput{})
	require.NoError(t, err)

	dst := memCollections{
		model.KindCharacter: {&model.Character{ID: "c1", Name: "Local Alice", Versions: []model.CharacterVersion{}}},
		model.KindNotebook:  {&model.Notebook{ID: "n9", Name: "Mine", Versions: []model.NotebookVersion{}}},
	}
	in, err := Import(ctx, dst, nil, base, ImportInput{Path: out.Path, Mode: ImportModeMerge})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"characters": 1}, in.Skipped)
	require.Equal(t, 0, in.Imported["characters"])
	require.Equal(t, 1, in.Imported["worldBooks"])

	require.Len(t, dst[model.KindCharacter], 1)
	require.Equal(t, "Local Alice", dst[model.KindCharacter][0].EntityName())
	require.Len(t, dst[model.KindLorebook], 1)
	require.Len(t, dst[model.KindNotebook], 1)
}

func TestImport_Errors(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	dir := DefaultExportsDir(base)
	require.NoError(t, os.MkdirAll(dir, 0700))

	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0600))
		return p
	}

	t.Run("bad mode", func(t *testing.T) {
		_, err := Import(ctx, memCollections{}, nil, base, ImportInput{Path: write("a.json", `{}`), Mode: "rename"})
		require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Import(ctx, memCollections{}, nil, base, ImportInput{Path: filepath.Join(dir, "nope.json")})
		require.True(t, errors.Is(err, errors.ErrFileNotFound))
	})

	t.Run("not a backup", func(t *testing.T) {
		dst := sample()
		_, err := Import(ctx, dst, nil, base, ImportInput{Path: write("b.json", `{"entries":{}}`)})
		require.True(t, errors.Is(err, errors.ErrInvalidRequest))
		require.Len(t, dst[model.KindCharacter], 1, "destination untouched")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := Import(ctx, memCollections{}, nil, base, ImportInput{Path: write("c.json", `{`)})
		require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})

	t.Run("invalid records dropped", func(t *testing.T) {
		dst := memCollections{}
		out, err := Import(ctx, dst, nil, base, ImportInput{Path: write("d.json", `{"characters":[{"name":"no id"},{"id":"c2","name":"ok"}]}`)})
		require.NoError(t, err)
		require.Len(t, out.Errors, 1)
		require.Len(t, dst[model.KindCharacter], 1)
	})
}

func TestValidatePath(t *testing.T) {
	base := t.TempDir()
	exports := DefaultExportsDir(base)
	require.NoError(t, os.MkdirAll(exports, 0700))
	other := t.TempDir()

	tests := []struct {
		name string
		path string
		mode PathCheckMode
		cfg  *config.Config
		code errors.ErrorCode
	}{
		{"ok write", filepath.Join(exports, "x.json"), PathCheckWrite, nil, ""},
		{"empty", "", PathCheckWrite, nil, errors.ErrInvalidRequest},
		{"traversal", exports + "/../x.json", PathCheckWrite, nil, errors.ErrInvalidRequest},
		{"extension", filepath.Join(exports, "x.jsonl"), PathCheckWrite, nil, errors.ErrInvalidRequest},
		{"subdirectory", filepath.Join(exports, "sub", "x.json"), PathCheckWrite, nil, errors.ErrInvalidRequest},
		{"outside", filepath.Join(other, "x.json"), PathCheckWrite, nil, errors.ErrInvalidRequest},
		{"allowed path", filepath.Join(other, "x.json"), PathCheckWrite, &config.Config{AllowedPaths: []string{other}}, ""},
		{"unsafe", filepath.Join(other, "x.json"), PathCheckWrite, &config.Config{AllowUnsafePaths: true}, ""},
		{"read missing", filepath.Join(exports, "missing.json"), PathCheckRead, nil, errors.ErrFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.mode, tt.cfg, base)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, tt.code), "err = %v", err)
		})
	}
}

func TestValidatePath_Symlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	base := t.TempDir()
	exports := DefaultExportsDir(base)
	require.NoError(t, os.MkdirAll(exports, 0700))

	target := filepath.Join(t.TempDir(), "target.json")
	require.NoError(t, os.WriteFile(target, []byte(`{"characters":[]}`), 0600))
	link := filepath.Join(exports, "link.json")
	require.NoError(t, os.Symlink(target, link))

	err := ValidatePath(link, PathCheckRead, nil, base)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	err = ValidatePath(link, PathCheckWrite, &config.Config{AllowUnsafePaths: true}, base)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
