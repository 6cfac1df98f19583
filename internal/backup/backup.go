// Package backup exports the three collections to a single JSON document and
// imports them back, either replacing or merging with what the session holds.
package backup

import (
	"encoding/json"
	"fmt"

	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/model"
)

// FormatVersion is written to every backup.
const FormatVersion = "1.0.0"

// Collections is what Export reads from and Import writes to. *session.Session
// satisfies it.
type Collections interface {
	Items(kind model.Kind) []model.Entity
	ReplaceCollection(kind model.Kind, items []model.Entity) error
}

// Document is a full backup. Top-level keys are the record space names.
type Document struct {
	Characters     []model.Entity
	CustomSections []model.Entity
	WorldBooks     []model.Entity
	ExportDate     model.Timestamp
	Version        string
}

type wireDocument struct {
	Characters     json.RawMessage `json:"characters"`
	CustomSections json.RawMessage `json:"customSections,omitempty"`
	WorldBooks     json.RawMessage `json:"worldBooks,omitempty"`
	ExportDate     model.Timestamp `json:"exportDate,omitzero"`
	Version        string          `json:"version,omitempty"`
}

// Collection returns the document's items of one kind.
func (d *Document) Collection(kind model.Kind) []model.Entity {
	switch kind {
	case model.KindCharacter:
		return d.Characters
	case model.KindNotebook:
		return d.CustomSections
	case model.KindLorebook:
		return d.WorldBooks
	}
	return nil
}

func (d *Document) setCollection(kind model.Kind, items []model.Entity) {
	switch kind {
	case model.KindCharacter:
		d.Characters = items
	case model.KindNotebook:
		d.CustomSections = items
	case model.KindLorebook:
		d.WorldBooks = items
	}
}

// Encode writes the document as indented JSON.
func Encode(d *Document) ([]byte, error) {
	w := wireDocument{ExportDate: d.ExportDate, Version: d.Version}
	var err error
	if w.Characters, err = model.Encode(d.Characters); err != nil {
		return nil, err
	}
	if w.CustomSections, err = model.Encode(d.CustomSections); err != nil {
		return nil, err
	}
	if w.WorldBooks, err = model.Encode(d.WorldBooks); err != nil {
		return nil, err
	}
	return json.MarshalIndent(w, "", "  ")
}

// Decode parses a backup. A document without a "characters" array is not a
// backup. Missing notebook or lorebook arrays decode as empty collections;
// records that cannot be decoded are dropped and returned as errors.
func Decode(data []byte) (*Document, []error, error) {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("backup is not valid JSON: %v", err))
	}
	if !isArray(w.Characters) {
		return nil, nil, errors.NewInvalidRequest("not a chronicler backup: missing characters array")
	}

	d := &Document{ExportDate: w.ExportDate, Version: w.Version}
	var problems []error
	raw := map[model.Kind]json.RawMessage{
		model.KindCharacter: w.Characters,
		model.KindNotebook:  w.CustomSections,
		model.KindLorebook:  w.WorldBooks,
	}
	for _, k := range model.Kinds() {
		items, errs := model.Decode(k, raw[k])
		d.setCollection(k, items)
		problems = append(problems, errs...)
	}
	return d, problems, nil
}

func isArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
