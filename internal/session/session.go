// Package session owns the in-memory model of one editing session: the three
// entity collections, their dirty state and the save/reset lifecycle against a
// storage.Store.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/logging"
	"github.com/hpungsan/chronicler/internal/model"
	"github.com/hpungsan/chronicler/internal/quota"
	"github.com/hpungsan/chronicler/internal/storage"
)

// Session is safe for concurrent use. Entities returned by Items and Item are
// shared with the session; callers that edit them in place must call MarkDirty.
type Session struct {
	store       *storage.Store
	log         zerolog.Logger
	warnPercent float64

	mu          sync.Mutex
	collections map[model.Kind][]model.Entity
	dirty       bool
	saved       string
}

// New wraps store. warnPercent <= 0 uses quota.DefaultWarnPercent.
func New(store *storage.Store, log zerolog.Logger, warnPercent int) *Session {
	pct := float64(warnPercent)
	if pct <= 0 {
		pct = quota.DefaultWarnPercent
	}
	s := &Session{
		store:       store,
		log:         logging.Component(log, "session"),
		warnPercent: pct,
		collections: make(map[model.Kind][]model.Entity),
	}
	for _, k := range model.Kinds() {
		s.collections[k] = []model.Entity{}
	}
	s.saved = s.fingerprintLocked()
	return s
}

// OpenReport describes what Open found.
type OpenReport struct {
	Startup    storage.StartupReport `json:"startup"`
	Loaded     map[string]int        `json:"loaded"`
	Backfilled int                   `json:"backfilled"`
}

// Open runs the store startup sequence and loads every collection. Items and
// versions stored without timestamps get them now, and the affected collections
// are written back.
func (s *Session) Open(ctx context.Context) *OpenReport {
	report := &OpenReport{
		Startup: s.store.Startup(ctx),
		Loaded:  make(map[string]int),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := model.Now()
	for _, k := range model.Kinds() {
		items := s.store.LoadCollection(ctx, k)
		if n := model.BackfillTimestamps(now, items); n > 0 {
			report.Backfilled += n
			if !s.store.SaveCollection(ctx, k, items) {
				s.log.Warn().Str("space", k.Space()).Msg("could not write back backfilled timestamps")
			}
		}
		s.collections[k] = items
		report.Loaded[k.Space()] = len(items)
	}
	s.markCleanLocked(s.fingerprintLocked())

	s.log.Info().
		Int("characters", report.Loaded[model.SpaceCharacters]).
		Int("lorebooks", report.Loaded[model.SpaceLorebooks]).
		Int("notebooks", report.Loaded[model.SpaceNotebooks]).
		Int("backfilled", report.Backfilled).
		Msg("session opened")
	return report
}

// SaveReport describes where a successful save landed.
type SaveReport struct {
	Media map[string]storage.Medium `json:"media"`
	// Degraded lists collections written to the fallback while the primary was up.
	Degraded       []string     `json:"degraded,omitempty"`
	Usage          *quota.Usage `json:"usage,omitempty"`
	StorageWarning bool         `json:"storage_warning"`
}

// Save persists all three collections. The session is marked clean only when
// every collection landed on some medium. When any collection could not be
// stored the error is INVALID_RECORD for a collection holding an item without
// ids, QUOTA_EXCEEDED if a quota was the cause and PERSISTENCE_FAILED otherwise;
// memory and the dirty flag are left as they were.
func (s *Session) Save(ctx context.Context) (*SaveReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &SaveReport{Media: make(map[string]storage.Medium)}
	var failed []string
	quotaHit := false
	var invalid error
	for _, k := range model.Kinds() {
		out := s.store.Persist(ctx, k, s.collections[k])
		if !out.OK {
			failed = append(failed, k.Space())
			if errors.Is(out.Err, errors.ErrQuotaExceeded) {
				quotaHit = true
			}
			if invalid == nil && errors.Is(out.Err, errors.ErrInvalidRecord) {
				invalid = out.Err
			}
			continue
		}
		report.Media[k.Space()] = out.Medium
		if out.Medium == storage.MediumFallback && s.store.PrimaryAvailable() {
			report.Degraded = append(report.Degraded, k.Space())
		}
	}

	if len(failed) > 0 {
		s.log.Error().Strs("failed", failed).Bool("quota", quotaHit).Msg("save failed")
		if invalid != nil {
			return nil, invalid
		}
		if quotaHit {
			return nil, errors.NewQuotaExceeded(failed)
		}
		return nil, errors.NewPersistenceFailed(failed)
	}

	s.markCleanLocked(s.fingerprintLocked())
	if len(report.Degraded) > 0 {
		s.log.Warn().Strs("degraded", report.Degraded).Msg("saved to fallback storage")
	}

	report.Usage = s.store.EstimateUsage(ctx)
	if report.Usage != nil && report.Usage.NearLimit(s.warnPercent) {
		report.StorageWarning = true
		s.log.Warn().Float64("percent", report.Usage.Percent()).Msg("storage nearly full")
	}
	return report, nil
}

// Reset erases everything in memory and in both storage media.
func (s *Session) Reset(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.store.Reset(ctx)
	for _, k := range model.Kinds() {
		s.collections[k] = []model.Entity{}
	}
	s.markCleanLocked(s.fingerprintLocked())
	return ok
}

// ClearCollection erases one collection in memory and in storage. Unsaved edits
// to the other collections keep the session dirty.
func (s *Session) ClearCollection(ctx context.Context, kind model.Kind) (bool, error) {
	if err := checkKind(kind); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.store.ClearCollection(ctx, kind)
	s.collections[kind] = []model.Entity{}
	switch {
	case !ok:
		s.dirty = true
	case !s.dirty:
		s.markCleanLocked(s.fingerprintLocked())
	}
	return ok, nil
}

// WatchUsage polls usage until ctx is done and calls onWarn when it crosses the
// warning threshold. A non-positive interval polls once a minute.
func (s *Session) WatchUsage(ctx context.Context, interval time.Duration, onWarn func(quota.Usage)) {
	quota.Watch(ctx, interval, s.store.EstimateUsage, s.warnPercent, onWarn)
}

// MarkDirty records an unsaved change.
func (s *Session) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// MarkClean records that memory matches storage.
func (s *Session) MarkClean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCleanLocked(s.fingerprintLocked())
}

func (s *Session) markCleanLocked(fp string) {
	s.dirty = false
	s.saved = fp
}

// IsDirty reports whether a change was recorded since the last save.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Fingerprint is a sha256 over the encoded collections.
func (s *Session) Fingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprintLocked()
}

// Changed reports whether memory differs from what was last saved, whatever the dirty flag says.
func (s *Session) Changed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprintLocked() != s.saved
}

func (s *Session) fingerprintLocked() string {
	h := sha256.New()
	for _, k := range model.Kinds() {
		data, err := model.Encode(s.collections[k])
		if err != nil {
			// Unencodable state never matches a saved fingerprint.
			fmt.Fprintf(h, "%s:error:%v\n", k, err)
			continue
		}
		fmt.Fprintf(h, "%s:%d\n", k, len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
