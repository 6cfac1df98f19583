// Package storage is chronicler's durable store: three entity collections and a
// settings map kept in SQLite, with a flat key-value directory as fallback.
//
// Public methods never return storage errors directly. They resolve to booleans,
// collections (never nil) or nil usage, and log what went wrong.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hpungsan/chronicler/internal/config"
	"github.com/hpungsan/chronicler/internal/db"
	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/flat"
	"github.com/hpungsan/chronicler/internal/logging"
	"github.com/hpungsan/chronicler/internal/metrics"
	"github.com/hpungsan/chronicler/internal/model"
	"github.com/hpungsan/chronicler/internal/quota"
)

// FlatDirName is the fallback directory under the data directory.
const FlatDirName = "local"

// Options configures a Store.
type Options struct {
	DataDir string
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	// Estimator overrides the default disk estimator.
	Estimator quota.Estimator
}

// Outcome is the detailed result of a save.
type Outcome struct {
	OK     bool   `json:"ok"`
	Medium Medium `json:"medium"`
	Err    error  `json:"-"`
}

// Store is the durable store. Create with New, then call Initialize (or Startup).
type Store struct {
	dataDir   string
	cfg       *config.Config
	log       zerolog.Logger
	metrics   *metrics.Metrics
	estimator quota.Estimator

	flatStore *flat.Store
	flat      *flatBackend

	initOnce  sync.Once
	database  *sql.DB
	primary   *sqlBackend
	decorator *Fallback
	backend   Backend

	locks map[model.Kind]*sync.Mutex

	startupMu   sync.Mutex
	startupDone bool
	startup     StartupReport
}

// New opens the fallback directory. The primary backend is not touched until Initialize.
func New(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.NewInvalidRequest("data directory is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	log := logging.Component(opts.Logger, "storage")
	fs, err := flat.Open(filepath.Join(opts.DataDir, FlatDirName), cfg.FallbackQuotaBytes)
	if err != nil {
		return nil, err
	}

	estimator := opts.Estimator
	if estimator == nil {
		estimator = quota.Disk{Dir: opts.DataDir, Quota: cfg.StorageQuotaBytes}
	}

	fb := newFlatBackend(fs, log)
	s := &Store{
		dataDir:   opts.DataDir,
		cfg:       cfg,
		log:       log,
		metrics:   opts.Metrics,
		estimator: estimator,
		flatStore: fs,
		flat:      fb,
		backend:   fb,
		locks:     make(map[model.Kind]*sync.Mutex),
	}
	for _, k := range model.Kinds() {
		s.locks[k] = &sync.Mutex{}
	}
	return s, nil
}

// Initialize opens the primary backend and creates its schema. It returns true
// when the primary is usable; otherwise every operation uses the fallback only.
// Only the first call does any work.
func (s *Store) Initialize(ctx context.Context) bool {
	s.initOnce.Do(func() {
		if s.cfg.DisablePrimary {
			s.log.Info().Msg("primary backend disabled by config, using fallback only")
			return
		}

		database, err := db.Init(ctx, s.dataDir)
		if err != nil {
			s.log.Warn().Err(err).Msg("primary backend unavailable, using fallback only")
			return
		}
		db.ConfigurePool(database, s.cfg)

		s.database = database
		s.primary = newSQLBackend(database, s.log)
		s.decorator = NewFallback(ctx, s.primary, s.flat, s.primary, s.log, s.metrics)
		s.backend = s.decorator
		s.log.Debug().Str("path", filepath.Join(s.dataDir, db.FileName)).Msg("primary backend ready")
	})
	return s.primary != nil
}

// PrimaryAvailable reports whether Initialize opened the primary backend.
func (s *Store) PrimaryAvailable() bool {
	return s.primary != nil
}

// DataDir returns the data directory.
func (s *Store) DataDir() string {
	return s.dataDir
}

// Close releases the primary backend connection.
func (s *Store) Close() error {
	if s.database == nil {
		return nil
	}
	return s.database.Close()
}

func (s *Store) lock(kinds ...model.Kind) func() {
	for _, k := range kinds {
		s.locks[k].Lock()
	}
	return func() {
		for i := len(kinds) - 1; i >= 0; i-- {
			s.locks[kinds[i]].Unlock()
		}
	}
}

func validateCollection(kind model.Kind, items []model.Entity) error {
	if !kind.Valid() {
		return errors.NewInvalidRequest(fmt.Sprintf("unknown kind %q", kind))
	}
	for i, item := range items {
		if item == nil {
			return errors.NewInvalidRequest(fmt.Sprintf("%s item %d is nil", kind, i))
		}
		if item.Kind() != kind {
			return errors.NewInvalidRequest(fmt.Sprintf("%s item %d is a %s", kind, i, item.Kind()))
		}
		if err := model.Validate(item); err != nil {
			return errors.NewInvalidRecord(string(kind), fmt.Errorf("item %d: %w", i, err))
		}
	}
	return nil
}

// Persist replaces the stored collection with items and reports which medium
// accepted the write. Err carries the cause when no medium did.
func (s *Store) Persist(ctx context.Context, kind model.Kind, items []model.Entity) Outcome {
	if err := validateCollection(kind, items); err != nil {
		return Outcome{Err: err}
	}
	unlock := s.lock(kind)
	defer unlock()

	medium, err := s.backend.Save(ctx, kind, items)
	if err != nil {
		s.log.Error().Err(err).Str("space", kind.Space()).Int("items", len(items)).Msg("save failed on every backend")
		s.metrics.RecordPersistenceFailure(kind.Space())
		return Outcome{Err: err}
	}

	s.metrics.RecordSave(kind.Space(), string(medium))
	s.log.Debug().Str("space", kind.Space()).Str("medium", string(medium)).Int("items", len(items)).Msg("collection saved")
	return Outcome{OK: true, Medium: medium}
}

// SaveCollection replaces the stored collection with items. It returns true when
// some medium accepted the write.
func (s *Store) SaveCollection(ctx context.Context, kind model.Kind, items []model.Entity) bool {
	return s.Persist(ctx, kind, items).OK
}

// LoadCollection returns the stored collection in saved order. It never returns nil.
func (s *Store) LoadCollection(ctx context.Context, kind model.Kind) []model.Entity {
	if !kind.Valid() {
		s.log.Warn().Str("kind", string(kind)).Msg("load of unknown kind")
		return []model.Entity{}
	}
	unlock := s.lock(kind)
	defer unlock()

	items, _, err := s.backend.Load(ctx, kind)
	if err != nil {
		s.log.Error().Err(err).Str("space", kind.Space()).Msg("load failed on every backend")
		return []model.Entity{}
	}
	if items == nil {
		return []model.Entity{}
	}
	return items
}

// ClearCollection erases one collection.
func (s *Store) ClearCollection(ctx context.Context, kind model.Kind) bool {
	if !kind.Valid() {
		return false
	}
	unlock := s.lock(kind)
	defer unlock()
	return s.clearLocked(ctx, kind)
}

// ClearAll erases all three collections in one primary transaction, or from the
// fallback when the primary fails.
func (s *Store) ClearAll(ctx context.Context) bool {
	kinds := model.Kinds()
	unlock := s.lock(kinds...)
	defer unlock()
	return s.clearLocked(ctx, kinds...)
}

func (s *Store) clearLocked(ctx context.Context, kinds ...model.Kind) bool {
	medium, err := s.backend.Clear(ctx, kinds...)
	if err != nil {
		s.log.Error().Err(err).Int("spaces", len(kinds)).Msg("clear failed on every backend")
		return false
	}
	s.log.Debug().Str("medium", string(medium)).Int("spaces", len(kinds)).Msg("collections cleared")
	return true
}

// Reset is the hard data reset: it clears all collections and always removes
// every fallback key, colors included. The migration marker is kept.
func (s *Store) Reset(ctx context.Context) bool {
	kinds := model.Kinds()
	unlock := s.lock(kinds...)
	defer unlock()

	ok := s.clearLocked(ctx, kinds...)
	keys, err := s.flatStore.Keys()
	if err != nil {
		s.log.Warn().Err(err).Msg("could not list fallback keys, removing known keys only")
		keys = model.FlatKeys()
	}
	for _, key := range keys {
		if err := s.flatStore.Remove(key); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("could not remove fallback key")
			ok = false
		}
	}
	s.log.Info().Bool("ok", ok).Msg("data reset")
	return ok
}

// EstimateUsage returns a best-effort usage estimate, or nil when the session is
// fallback-only, the platform cannot measure, or the query fails.
func (s *Store) EstimateUsage(ctx context.Context) *quota.Usage {
	if !s.PrimaryAvailable() {
		return nil
	}
	u, err := s.estimator.Estimate(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("usage estimate unavailable")
		return nil
	}
	if u != nil {
		s.metrics.SetStorageUsed(u.UsedBytes)
	}
	return u
}

// SaveColors stores the custom color map. Colors live in the fallback backend only.
func (s *Store) SaveColors(_ context.Context, colors map[string]string) bool {
	if colors == nil {
		colors = map[string]string{}
	}
	data, err := json.Marshal(colors)
	if err != nil {
		s.log.Error().Err(err).Msg("could not encode colors")
		return false
	}
	if err := s.flatStore.Set(model.FlatKeyColors, data); err != nil {
		s.log.Error().Err(err).Msg("could not save colors")
		return false
	}
	return true
}

// LoadColors returns the custom color map, empty when none is stored.
func (s *Store) LoadColors(_ context.Context) map[string]string {
	colors := map[string]string{}
	data, ok, err := s.flatStore.Get(model.FlatKeyColors)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not read colors")
		return colors
	}
	if !ok {
		return colors
	}
	if err := json.Unmarshal(data, &colors); err != nil {
		s.log.Warn().Err(err).Msg("stored colors are not a string map")
		return map[string]string{}
	}
	return colors
}

// Status summarises the session for diagnostics.
type Status struct {
	Medium           Medium         `json:"medium"`
	PrimaryAvailable bool           `json:"primary_available"`
	Migrated         bool           `json:"migrated"`
	DataDir          string         `json:"data_dir"`
	Collections      map[string]int `json:"collections"`
	FallbackNewer    []string       `json:"fallback_newer,omitempty"`
	FallbackBytes    int64          `json:"fallback_bytes"`
	FallbackQuota    int64          `json:"fallback_quota"`
}

// Status reports the active medium, collection sizes and fallback usage.
func (s *Store) Status(ctx context.Context) *Status {
	st := &Status{
		Medium:           MediumFallback,
		PrimaryAvailable: s.PrimaryAvailable(),
		DataDir:          s.dataDir,
		Collections:      make(map[string]int),
		FallbackQuota:    s.flatStore.Quota(),
	}
	if st.PrimaryAvailable {
		st.Medium = MediumPrimary
		st.Migrated = s.IsMigrated(ctx)
		st.FallbackNewer = s.decorator.Newer()
	}
	for _, k := range model.Kinds() {
		st.Collections[k.Space()] = len(s.LoadCollection(ctx, k))
	}
	if size, err := s.flatStore.Size(); err == nil {
		st.FallbackBytes = size
	}
	return st
}
