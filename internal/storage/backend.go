package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hpungsan/chronicler/internal/db"
	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/flat"
	"github.com/hpungsan/chronicler/internal/model"
)

// Medium names the storage technology that served an operation.
type Medium string

const (
	MediumNone     Medium = ""
	MediumPrimary  Medium = "primary"
	MediumFallback Medium = "fallback"
)

// Backend persists entity collections. Every method reports which medium
// actually served the call.
type Backend interface {
	Save(ctx context.Context, kind model.Kind, items []model.Entity) (Medium, error)
	Load(ctx context.Context, kind model.Kind) ([]model.Entity, Medium, error)
	Clear(ctx context.Context, kinds ...model.Kind) (Medium, error)
}

// MarkStore persists per-collection "fallback holds newer data" flags.
type MarkStore interface {
	LoadMarks(ctx context.Context) (map[model.Kind]bool, error)
	SetMark(ctx context.Context, kind model.Kind, on bool) error
}

// sqlBackend stores each entity as one row of its record space.
type sqlBackend struct {
	db  *sql.DB
	log zerolog.Logger
}

func newSQLBackend(database *sql.DB, log zerolog.Logger) *sqlBackend {
	return &sqlBackend{db: database, log: log}
}

func (b *sqlBackend) Save(ctx context.Context, kind model.Kind, items []model.Entity) (Medium, error) {
	rows := make([]db.Row, len(items))
	for i, item := range items {
		record, err := json.Marshal(item)
		if err != nil {
			return MediumNone, errors.NewInternal(fmt.Errorf("encode %s %s: %w", kind, item.EntityID(), err))
		}
		rows[i] = db.Row{ID: item.EntityID(), Name: item.EntityName(), Record: record}
	}
	if err := db.ReplaceAll(ctx, b.db, kind.Space(), rows); err != nil {
		return MediumNone, err
	}
	return MediumPrimary, nil
}

func (b *sqlBackend) Load(ctx context.Context, kind model.Kind) ([]model.Entity, Medium, error) {
	rows, err := db.All(ctx, b.db, kind.Space())
	if err != nil {
		return nil, MediumNone, err
	}
	items := make([]model.Entity, 0, len(rows))
	for _, r := range rows {
		e, err := model.DecodeOne(kind, r.Record)
		if err != nil {
			b.log.Warn().Err(err).Str("space", kind.Space()).Str("id", r.ID).Msg("dropping invalid record")
			continue
		}
		items = append(items, e)
	}
	return items, MediumPrimary, nil
}

func (b *sqlBackend) Clear(ctx context.Context, kinds ...model.Kind) (Medium, error) {
	spaces := make([]string, len(kinds))
	for i, k := range kinds {
		spaces[i] = k.Space()
	}
	if err := db.Clear(ctx, b.db, spaces...); err != nil {
		return MediumNone, err
	}
	return MediumPrimary, nil
}

func markKey(kind model.Kind) string {
	return "fallback:" + kind.Space()
}

// LoadMarks implements MarkStore using the settings space.
func (b *sqlBackend) LoadMarks(ctx context.Context) (map[model.Kind]bool, error) {
	marks := make(map[model.Kind]bool)
	for _, kind := range model.Kinds() {
		s, err := db.GetSetting(ctx, b.db, markKey(kind))
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var on bool
		if json.Unmarshal(s.Value, &on) == nil && on {
			marks[kind] = true
		}
	}
	return marks, nil
}

// SetMark implements MarkStore.
func (b *sqlBackend) SetMark(ctx context.Context, kind model.Kind, on bool) error {
	if !on {
		return db.DeleteSetting(ctx, b.db, markKey(kind))
	}
	return db.PutSetting(ctx, b.db, db.Setting{Key: markKey(kind), Value: json.RawMessage(`true`)})
}

// flatBackend stores each collection as one JSON array under its flat key.
type flatBackend struct {
	store *flat.Store
	log   zerolog.Logger
}

func newFlatBackend(store *flat.Store, log zerolog.Logger) *flatBackend {
	return &flatBackend{store: store, log: log}
}

func (b *flatBackend) Save(_ context.Context, kind model.Kind, items []model.Entity) (Medium, error) {
	data, err := model.Encode(items)
	if err != nil {
		return MediumNone, errors.NewInternal(fmt.Errorf("encode %s collection: %w", kind, err))
	}
	if err := b.store.Set(kind.FlatKey(), data); err != nil {
		if errors.Is(err, errors.ErrQuotaExceeded) {
			return MediumNone, errors.NewQuotaExceeded([]string{kind.Space()})
		}
		return MediumNone, err
	}
	return MediumFallback, nil
}

func (b *flatBackend) Load(_ context.Context, kind model.Kind) ([]model.Entity, Medium, error) {
	data, ok, err := b.store.Get(kind.FlatKey())
	if err != nil {
		return nil, MediumNone, err
	}
	if !ok {
		return []model.Entity{}, MediumFallback, nil
	}
	items, errs := model.Decode(kind, data)
	for _, err := range errs {
		b.log.Warn().Err(err).Str("key", kind.FlatKey()).Msg("dropping invalid record")
	}
	return items, MediumFallback, nil
}

func (b *flatBackend) Clear(_ context.Context, kinds ...model.Kind) (Medium, error) {
	for _, k := range kinds {
		if err := b.store.Remove(k.FlatKey()); err != nil {
			return MediumNone, err
		}
	}
	return MediumFallback, nil
}
