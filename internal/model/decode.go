package model

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/ids"
)

// DecodeOne decodes a single stored record of the given kind. Records that are not
// JSON objects or carry no id are rejected with INVALID_RECORD. Accepted records are
// repaired in place (see Repair).
func DecodeOne(kind Kind, raw []byte) (Entity, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.NewInvalidRecord(string(kind), stderrors.New("record is not an object"))
	}

	var e Entity
	switch kind {
	case KindCharacter:
		e = &Character{}
	case KindLorebook:
		e = &Lorebook{}
	case KindNotebook:
		e = &Notebook{}
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown kind %q", kind))
	}
	if err := json.Unmarshal(trimmed, e); err != nil {
		return nil, errors.NewInvalidRecord(string(kind), err)
	}
	if e.EntityID() == "" {
		return nil, errors.NewInvalidRecord(string(kind), stderrors.New("missing id"))
	}
	Repair(e)
	return e, nil
}

// Decode decodes a serialized collection (a JSON array of records). Invalid records
// are skipped and reported in the returned error slice; the entity slice is never nil.
// Empty input decodes to an empty collection.
func Decode(kind Kind, data []byte) ([]Entity, []error) {
	out := []Entity{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return out, []error{errors.NewInvalidRecord(string(kind), fmt.Errorf("collection is not an array: %w", err))}
	}

	var errs []error
	for i, raw := range raws {
		e, err := DecodeOne(kind, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		out = append(out, e)
	}
	return out, errs
}

// Encode serializes a collection as a JSON array. A nil collection encodes as [].
func Encode(items []Entity) ([]byte, error) {
	if items == nil {
		items = []Entity{}
	}
	return json.Marshal(items)
}

// Repair replaces nil slices with empty ones and generates missing version, entry
// and field ids. It returns the number of repairs made.
func Repair(e Entity) int {
	n := 0
	fixID := func(id *string) {
		if *id == "" {
			*id = ids.New()
			n++
		}
	}

	switch v := e.(type) {
	case *Character:
		if v.Versions == nil {
			v.Versions = []CharacterVersion{}
			n++
		}
		for i := range v.Versions {
			fixID(&v.Versions[i].ID)
		}
	case *Lorebook:
		if v.Versions == nil {
			v.Versions = []LorebookVersion{}
			n++
		}
		for i := range v.Versions {
			ver := &v.Versions[i]
			fixID(&ver.ID)
			if ver.Entries == nil {
				ver.Entries = []Entry{}
				n++
			}
			for j := range ver.Entries {
				entry := &ver.Entries[j]
				fixID(&entry.ID)
				if entry.Key == nil {
					entry.Key = []string{}
					n++
				}
				if entry.KeySecondary == nil {
					entry.KeySecondary = []string{}
					n++
				}
			}
		}
	case *Notebook:
		if v.Versions == nil {
			v.Versions = []NotebookVersion{}
			n++
		}
		for i := range v.Versions {
			ver := &v.Versions[i]
			fixID(&ver.ID)
			if ver.Fields == nil {
				ver.Fields = []Field{}
				n++
			}
			for j := range ver.Fields {
				fixID(&ver.Fields[j].ID)
			}
		}
	}
	return n
}

// Validate reports the first missing id in e: the entity id, a version id, or a
// lorebook entry or notebook field id. Repaired records always validate.
func Validate(e Entity) error {
	if e.EntityID() == "" {
		return stderrors.New("missing id")
	}
	switch v := e.(type) {
	case *Character:
		for i, ver := range v.Versions {
			if ver.ID == "" {
				return fmt.Errorf("version %d has no id", i)
			}
		}
	case *Lorebook:
		for i, ver := range v.Versions {
			if ver.ID == "" {
				return fmt.Errorf("version %d has no id", i)
			}
			for j, entry := range ver.Entries {
				if entry.ID == "" {
					return fmt.Errorf("version %d entry %d has no id", i, j)
				}
			}
		}
	case *Notebook:
		for i, ver := range v.Versions {
			if ver.ID == "" {
				return fmt.Errorf("version %d has no id", i)
			}
			for j, f := range ver.Fields {
				if f.ID == "" {
					return fmt.Errorf("version %d field %d has no id", i, j)
				}
			}
		}
	}
	return nil
}

// BackfillTimestamps sets createdAt/updatedAt on items and versions that have none.
// It returns how many items and versions were touched.
func BackfillTimestamps(now Timestamp, items []Entity) int {
	n := 0
	fill := func(created, updated *Timestamp) {
		if created.IsZero() {
			*created, *updated = now, now
			n++
		}
	}

	for _, item := range items {
		switch v := item.(type) {
		case *Character:
			fill(&v.CreatedAt, &v.UpdatedAt)
			for i := range v.Versions {
				fill(&v.Versions[i].CreatedAt, &v.Versions[i].UpdatedAt)
			}
		case *Lorebook:
			fill(&v.CreatedAt, &v.UpdatedAt)
			for i := range v.Versions {
				fill(&v.Versions[i].CreatedAt, &v.Versions[i].UpdatedAt)
			}
		case *Notebook:
			fill(&v.CreatedAt, &v.UpdatedAt)
			for i := range v.Versions {
				fill(&v.Versions[i].CreatedAt, &v.Versions[i].UpdatedAt)
			}
		}
	}
	return n
}
