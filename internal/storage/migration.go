package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hpungsan/chronicler/internal/db"
	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/model"
)

// MigratedKey is the settings key of the migration marker.
const MigratedKey = "migrated"

// MigrationMarker is the value stored under MigratedKey.
type MigrationMarker struct {
	Migrated    bool           `json:"migrated"`
	Collections map[string]int `json:"collections"`
	// Degraded lists record spaces whose copy did not land in the primary.
	Degraded []string `json:"degraded,omitempty"`
	// Skipped lists record spaces left alone because the primary already had rows.
	Skipped []string `json:"skipped,omitempty"`
}

// IsMigrated reports whether a migration marker exists. Any stored marker
// counts, whatever its value. It is false when the primary backend is
// unavailable or holds no marker.
func (s *Store) IsMigrated(ctx context.Context) bool {
	if !s.PrimaryAvailable() {
		return false
	}
	setting, err := db.GetSetting(ctx, s.database, MigratedKey)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			s.log.Warn().Err(err).Msg("could not read migration marker")
		}
		return false
	}
	s.log.Debug().RawJSON("marker", setting.Value).Msg("migration marker found")
	return true
}

// Migrate copies every non-empty fallback collection into the primary backend and
// then writes the migration marker, even when a copy degraded. It does nothing
// once the marker exists, and never overwrites a record space the primary already
// holds rows for. Fallback data is never removed. Returns false when the primary
// is unavailable or the marker cannot be written.
func (s *Store) Migrate(ctx context.Context) bool {
	if !s.PrimaryAvailable() {
		s.metrics.RecordMigration("skipped")
		return false
	}
	if s.IsMigrated(ctx) {
		s.log.Debug().Msg("migration marker present, nothing to copy")
		s.metrics.RecordMigration("already")
		return true
	}

	marker := MigrationMarker{Migrated: true, Collections: make(map[string]int)}
	for _, kind := range model.Kinds() {
		space := kind.Space()

		items, _, err := s.flat.Load(ctx, kind)
		if err != nil {
			s.log.Error().Err(err).Str("space", space).Msg("could not read fallback collection for migration")
			marker.Degraded = append(marker.Degraded, space)
			continue
		}
		marker.Collections[space] = len(items)
		if len(items) == 0 {
			continue
		}

		rows, err := db.Count(ctx, s.database, space)
		if err != nil {
			s.log.Error().Err(err).Str("space", space).Msg("could not count primary rows for migration")
			marker.Degraded = append(marker.Degraded, space)
			continue
		}
		if rows > 0 {
			s.log.Warn().Str("space", space).Int("primary_rows", rows).Msg("primary already holds data, fallback copy not migrated")
			marker.Skipped = append(marker.Skipped, space)
			continue
		}

		out := s.Persist(ctx, kind, items)
		if out.Medium != MediumPrimary {
			s.log.Error().Err(out.Err).Str("space", space).Str("medium", string(out.Medium)).Msg("migration copy did not reach primary")
			marker.Degraded = append(marker.Degraded, space)
			continue
		}
		s.log.Info().Str("space", space).Int("items", len(items)).Msg("migrated collection")
	}

	value, err := json.Marshal(marker)
	if err != nil {
		s.log.Error().Err(err).Msg("could not encode migration marker")
		s.metrics.RecordMigration("failed")
		return false
	}
	err = db.PutSetting(ctx, s.database, db.Setting{Key: MigratedKey, Value: value, Date: time.Now()})
	if err != nil {
		s.log.Error().Err(err).Msg("could not write migration marker")
		s.metrics.RecordMigration("failed")
		return false
	}

	result := "ok"
	if len(marker.Degraded) > 0 {
		result = "degraded"
		s.log.Warn().Strs("degraded", marker.Degraded).Msg("migration completed with degraded collections")
	}
	s.metrics.RecordMigration(result)
	return true
}

// StartupReport describes what Startup did.
type StartupReport struct {
	Primary         bool `json:"primary"`
	AlreadyMigrated bool `json:"already_migrated"`
	MigrationRan    bool `json:"migration_ran"`
	Migrated        bool `json:"migrated"`
}

// Startup runs Initialize and then check-then-migrate, at most once per Store.
// Later calls return the first report.
func (s *Store) Startup(ctx context.Context) StartupReport {
	s.startupMu.Lock()
	defer s.startupMu.Unlock()
	if s.startupDone {
		return s.startup
	}

	r := StartupReport{Primary: s.Initialize(ctx)}
	if r.Primary {
		if s.IsMigrated(ctx) {
			r.AlreadyMigrated = true
		} else {
			r.MigrationRan = true
			r.Migrated = s.Migrate(ctx)
		}
	}
	s.startup = r
	s.startupDone = true
	s.log.Info().
		Bool("primary", r.Primary).
		Bool("already_migrated", r.AlreadyMigrated).
		Bool("migration_ran", r.MigrationRan).
		Bool("migrated", r.Migrated).
		Msg("storage started")
	return r
}
