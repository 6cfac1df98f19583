package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/chronicler/internal/db"
	"github.com/hpungsan/chronicler/internal/metrics"
	"github.com/hpungsan/chronicler/internal/model"
)

// seedFallback writes collections the way a fallback-only session does.
func seedFallback(t *testing.T, dir string, collections map[model.Kind][]model.Entity) {
	t.Helper()
	s := newTestStore(t, dir, disablePrimary)
	for kind, items := range collections {
		require.True(t, s.SaveCollection(context.Background(), kind, items))
	}
}

func readMarker(t *testing.T, s *Store) MigrationMarker {
	t.Helper()
	setting, err := db.GetSetting(context.Background(), s.database, MigratedKey)
	require.NoError(t, err)
	var m MigrationMarker
	require.NoError(t, json.Unmarshal(setting.Value, &m))
	return m
}

func TestMigrate_LorebookScenario(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seedFallback(t, dir, map[model.Kind][]model.Entity{model.KindLorebook: dragonLorebook()})

	s := newTestStore(t, dir, nil)
	report := s.Startup(ctx)
	require.True(t, report.Primary)
	require.False(t, report.AlreadyMigrated)
	require.True(t, report.MigrationRan)
	require.True(t, report.Migrated)

	require.True(t, s.IsMigrated(ctx))
	require.Equal(t, dragonLorebook(), s.LoadCollection(ctx, model.KindLorebook))

	// The copy lives in the primary itself, not just behind the fallback.
	rows, err := db.Count(ctx, s.database, model.SpaceLorebooks)
	require.NoError(t, err)
	require.Equal(t, 1, rows)

	marker := readMarker(t, s)
	require.True(t, marker.Migrated)
	require.Equal(t, 1, marker.Collections["worldBooks"])
	require.Equal(t, 0, marker.Collections["characters"])
	require.Empty(t, marker.Degraded)
}

func TestMigrate_NonDestructive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seedFallback(t, dir, map[model.Kind][]model.Entity{
		model.KindCharacter: alice(),
		model.KindNotebook:  notebooks("n1", "n2"),
	})

	s := newTestStore(t, dir, nil)
	require.True(t, s.Startup(ctx).Migrated)

	for kind, want := range map[model.Kind][]model.Entity{
		model.KindCharacter: alice(),
		model.KindNotebook:  notebooks("n1", "n2"),
	} {
		items, _, err := s.flat.Load(ctx, kind)
		require.NoError(t, err)
		require.Equal(t, want, items)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seedFallback(t, dir, map[model.Kind][]model.Entity{model.KindCharacter: alice()})

	s1 := newTestStore(t, dir, nil)
	require.True(t, s1.Startup(ctx).MigrationRan)

	// Edit after migration; a restart must not re-copy the stale fallback.
	require.True(t, s1.SaveCollection(ctx, model.KindCharacter, []model.Entity{}))
	require.NoError(t, s1.Close())

	s2 := newTestStore(t, dir, nil)
	report := s2.Startup(ctx)
	require.True(t, report.AlreadyMigrated)
	require.False(t, report.MigrationRan)
	require.Empty(t, s2.LoadCollection(ctx, model.KindCharacter))
}

func bob() []model.Entity {
	return []model.Entity{&model.Character{
		ID:       "c9",
		Name:     "Bob",
		Versions: []model.CharacterVersion{{ID: "v9", Name: "Version 1", Description: "newer"}},
	}}
}

func TestMigrate_SecondRunKeepsNewerPrimaryData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seedFallback(t, dir, map[model.Kind][]model.Entity{model.KindCharacter: alice()})

	m := metrics.New()
	s, err := New(Options{DataDir: dir, Logger: zerolog.Nop(), Metrics: m})
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Startup(ctx).Migrated)
	require.True(t, s.SaveCollection(ctx, model.KindCharacter, bob()))

	require.True(t, s.Migrate(ctx))
	require.Equal(t, bob(), s.LoadCollection(ctx, model.KindCharacter))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MigrationsTotal.WithLabelValues("already")))
}

func TestMigrate_SkipsNonEmptyPrimarySpace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seedFallback(t, dir, map[model.Kind][]model.Entity{
		model.KindCharacter: alice(),
		model.KindLorebook:  dragonLorebook(),
	})

	s := newTestStore(t, dir, nil)
	require.True(t, s.Initialize(ctx))
	require.False(t, s.IsMigrated(ctx))
	require.True(t, s.SaveCollection(ctx, model.KindCharacter, bob()))

	require.True(t, s.Migrate(ctx))
	require.Equal(t, bob(), s.LoadCollection(ctx, model.KindCharacter))
	require.Equal(t, dragonLorebook(), s.LoadCollection(ctx, model.KindLorebook))

	marker := readMarker(t, s)
	require.Equal(t, []string{"characters"}, marker.Skipped)
	require.Empty(t, marker.Degraded)
}

func TestMigrate_EmptyFallbackStillMarks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir(), nil)
	require.True(t, s.Initialize(ctx))
	require.False(t, s.IsMigrated(ctx))

	require.True(t, s.Migrate(ctx))
	require.True(t, s.IsMigrated(ctx))
	for _, k := range model.Kinds() {
		require.Empty(t, s.LoadCollection(ctx, k))
	}
}

func TestMigrate_DegradedCopyStillMarks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	// Duplicate ids cannot land in the primary, so the copy degrades.
	dup := append(notebooks("x"), notebooks("x")...)
	seedFallback(t, dir, map[model.Kind][]model.Entity{
		model.KindNotebook:  dup,
		model.KindCharacter: alice(),
	})

	m := metrics.New()
	s, err := New(Options{DataDir: dir, Logger: zerolog.Nop(), Metrics: m})
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Startup(ctx).Migrated)
	require.True(t, s.IsMigrated(ctx))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MigrationsTotal.WithLabelValues("degraded")))

	marker := readMarker(t, s)
	require.Equal(t, []string{"customSections"}, marker.Degraded)
	require.Equal(t, alice(), s.LoadCollection(ctx, model.KindCharacter))
	require.Equal(t, dup, s.LoadCollection(ctx, model.KindNotebook))
}

func TestIsMigrated_LegacyBooleanMarker(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir(), nil)
	require.True(t, s.Initialize(ctx))

	require.NoError(t, db.PutSetting(ctx, s.database, db.Setting{Key: MigratedKey, Value: json.RawMessage(`true`), Date: time.Now()}))
	require.True(t, s.IsMigrated(ctx))

	// Any stored marker counts, whatever its value.
	require.NoError(t, db.PutSetting(ctx, s.database, db.Setting{Key: MigratedKey, Value: json.RawMessage(`false`)}))
	require.True(t, s.IsMigrated(ctx))

	require.NoError(t, db.PutSetting(ctx, s.database, db.Setting{Key: MigratedKey, Value: json.RawMessage(`"yes"`)}))
	require.True(t, s.IsMigrated(ctx))

	require.NoError(t, db.DeleteSetting(ctx, s.database, MigratedKey))
	require.False(t, s.IsMigrated(ctx))
}

func TestStartup_RunsOnce(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	s, err := New(Options{DataDir: t.TempDir(), Logger: zerolog.Nop(), Metrics: m})
	require.NoError(t, err)
	defer s.Close()

	first := s.Startup(ctx)
	second := s.Startup(ctx)
	require.Equal(t, first, second)
	require.Equal(t, 1.0, testutil.ToFloat64(m.MigrationsTotal.WithLabelValues("ok")))
}

func TestStartup_FallbackOnly(t *testing.T) {
	s := newTestStore(t, t.TempDir(), disablePrimary)
	report := s.Startup(context.Background())
	require.Equal(t, StartupReport{}, report)
}
