package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hpungsan/chronicler/internal/metrics"
	"github.com/hpungsan/chronicler/internal/model"
)

// Fallback composes a primary and a fallback backend. Failed primary calls are
// logged, counted and retried against the fallback.
//
// A collection whose save landed in the fallback while the primary was up is
// marked fallback-newer; loads read the fallback copy for it until a later primary
// save or clear succeeds. Marks live in memory and, best effort, in marks.
type Fallback struct {
	primary  Backend
	fallback Backend
	marks    MarkStore
	log      zerolog.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	newer map[model.Kind]bool
}

// NewFallback builds the decorator and restores persisted marks. marks and m may be nil.
func NewFallback(ctx context.Context, primary, fallback Backend, marks MarkStore, log zerolog.Logger, m *metrics.Metrics) *Fallback {
	f := &Fallback{
		primary:  primary,
		fallback: fallback,
		marks:    marks,
		log:      log,
		metrics:  m,
		newer:    make(map[model.Kind]bool),
	}
	if marks != nil {
		restored, err := marks.LoadMarks(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("could not read fallback marks")
		}
		for k, on := range restored {
			if on {
				f.newer[k] = true
			}
		}
	}
	return f
}

// Save implements Backend.
func (f *Fallback) Save(ctx context.Context, kind model.Kind, items []model.Entity) (Medium, error) {
	medium, err := f.primary.Save(ctx, kind, items)
	if err == nil {
		f.setNewer(ctx, kind, false)
		return medium, nil
	}

	f.log.Warn().Err(err).Str("space", kind.Space()).Int("items", len(items)).Msg("primary save failed, writing fallback")
	f.metrics.RecordFallback("save")

	medium, ferr := f.fallback.Save(ctx, kind, items)
	if ferr != nil {
		return MediumNone, fmt.Errorf("primary: %v; fallback: %w", err, ferr)
	}
	f.setNewer(ctx, kind, true)
	return medium, nil
}

// Load implements Backend.
func (f *Fallback) Load(ctx context.Context, kind model.Kind) ([]model.Entity, Medium, error) {
	if f.isNewer(kind) {
		items, medium, err := f.fallback.Load(ctx, kind)
		if err == nil {
			return items, medium, nil
		}
		f.log.Warn().Err(err).Str("space", kind.Space()).Msg("fallback read failed for fallback-newer collection, reading primary")
		return f.primary.Load(ctx, kind)
	}

	items, medium, err := f.primary.Load(ctx, kind)
	if err == nil {
		return items, medium, nil
	}

	f.log.Warn().Err(err).Str("space", kind.Space()).Msg("primary load failed, reading fallback")
	f.metrics.RecordFallback("load")

	items, medium, ferr := f.fallback.Load(ctx, kind)
	if ferr != nil {
		return nil, MediumNone, fmt.Errorf("primary: %v; fallback: %w", err, ferr)
	}
	return items, medium, nil
}

// Clear implements Backend.
func (f *Fallback) Clear(ctx context.Context, kinds ...model.Kind) (Medium, error) {
	medium, err := f.primary.Clear(ctx, kinds...)
	if err == nil {
		for _, k := range kinds {
			f.setNewer(ctx, k, false)
		}
		return medium, nil
	}

	f.log.Warn().Err(err).Int("spaces", len(kinds)).Msg("primary clear failed, clearing fallback")
	f.metrics.RecordFallback("clear")

	medium, ferr := f.fallback.Clear(ctx, kinds...)
	if ferr != nil {
		return MediumNone, fmt.Errorf("primary: %v; fallback: %w", err, ferr)
	}
	for _, k := range kinds {
		f.setNewer(ctx, k, true)
	}
	return medium, nil
}

// Newer lists the record spaces currently served from the fallback, sorted.
func (f *Fallback) Newer() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.newer))
	for k := range f.newer {
		out = append(out, k.Space())
	}
	sort.Strings(out)
	return out
}

func (f *Fallback) isNewer(kind model.Kind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newer[kind]
}

func (f *Fallback) setNewer(ctx context.Context, kind model.Kind, on bool) {
	f.mu.Lock()
	changed := f.newer[kind] != on
	if on {
		f.newer[kind] = true
	} else {
		delete(f.newer, kind)
	}
	f.mu.Unlock()

	if !changed || f.marks == nil {
		return
	}
	if err := f.marks.SetMark(ctx, kind, on); err != nil {
		f.log.Debug().Err(err).Str("space", kind.Space()).Bool("on", on).Msg("could not persist fallback mark")
	}
}
