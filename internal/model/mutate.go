package model

import (
	"fmt"

	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/ids"
)

// New creates an entity of the given kind with one empty version.
// index is the collection length and drives the default name ("Character 3").
func New(kind Kind, index int) (Entity, error) {
	switch kind {
	case KindCharacter:
		return NewCharacter(index), nil
	case KindLorebook:
		return NewLorebook(index), nil
	case KindNotebook:
		return NewNotebook(index), nil
	}
	return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown kind %q", kind))
}

// NewCharacter returns a character with one blank version.
func NewCharacter(index int) *Character {
	now := Now()
	return &Character{
		ID:        ids.New(),
		Name:      fmt.Sprintf("%s %d", KindCharacter.Label(), index+1),
		CreatedAt: now,
		UpdatedAt: now,
		Versions:  []CharacterVersion{newCharacterVersion(1, now)},
	}
}

// NewLorebook returns a lorebook with one version and no entries.
func NewLorebook(index int) *Lorebook {
	now := Now()
	return &Lorebook{
		ID:        ids.New(),
		Name:      fmt.Sprintf("%s %d", KindLorebook.Label(), index+1),
		CreatedAt: now,
		UpdatedAt: now,
		Versions:  []LorebookVersion{newLorebookVersion(1, now)},
	}
}

// NewNotebook returns a notebook with one version holding a single empty field.
func NewNotebook(index int) *Notebook {
	now := Now()
	v := newNotebookVersion(1, now)
	v.Fields[0].Name = "Field 1"
	return &Notebook{
		ID:        ids.New(),
		Name:      fmt.Sprintf("%s %d", KindNotebook.Label(), index+1),
		CreatedAt: now,
		UpdatedAt: now,
		Versions:  []NotebookVersion{v},
	}
}

func versionName(n int) string {
	return fmt.Sprintf("Version %d", n)
}

func newCharacterVersion(n int, now Timestamp) CharacterVersion {
	return CharacterVersion{ID: ids.New(), Name: versionName(n), CreatedAt: now, UpdatedAt: now}
}

func newLorebookVersion(n int, now Timestamp) LorebookVersion {
	return LorebookVersion{ID: ids.New(), Name: versionName(n), Entries: []Entry{}, CreatedAt: now, UpdatedAt: now}
}

func newNotebookVersion(n int, now Timestamp) NotebookVersion {
	return NotebookVersion{
		ID:   ids.New(),
		Name: versionName(n),
		Fields: []Field{{
			ID: ids.New(), Name: "Default Field", CreatedAt: now, UpdatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddVersion appends a blank version named after its position and returns its id.
func AddVersion(e Entity) string {
	now := Now()
	switch v := e.(type) {
	case *Character:
		nv := newCharacterVersion(len(v.Versions)+1, now)
		v.Versions = append(v.Versions, nv)
		v.UpdatedAt = now
		return nv.ID
	case *Lorebook:
		nv := newLorebookVersion(len(v.Versions)+1, now)
		v.Versions = append(v.Versions, nv)
		v.UpdatedAt = now
		return nv.ID
	case *Notebook:
		nv := newNotebookVersion(len(v.Versions)+1, now)
		v.Versions = append(v.Versions, nv)
		v.UpdatedAt = now
		return nv.ID
	}
	return ""
}

// CopyVersion appends a deep copy of the version with fresh ids and a " - Copy"
// suffix, returning the new version id.
func CopyVersion(e Entity, versionID string) (string, error) {
	now := Now()
	switch v := e.(type) {
	case *Character:
		for _, ver := range v.Versions {
			if ver.ID == versionID {
				nv := cloneCharacterVersion(ver, now)
				nv.Name += " - Copy"
				v.Versions = append(v.Versions, nv)
				v.UpdatedAt = now
				return nv.ID, nil
			}
		}
	case *Lorebook:
		for _, ver := range v.Versions {
			if ver.ID == versionID {
				nv := cloneLorebookVersion(ver, now)
				nv.Name += " - Copy"
				v.Versions = append(v.Versions, nv)
				v.UpdatedAt = now
				return nv.ID, nil
			}
		}
	case *Notebook:
		for _, ver := range v.Versions {
			if ver.ID == versionID {
				nv := cloneNotebookVersion(ver, now)
				nv.Name += " - Copy"
				v.Versions = append(v.Versions, nv)
				v.UpdatedAt = now
				return nv.ID, nil
			}
		}
	}
	return "", errors.NewNotFound("version", versionID)
}

// RemoveVersion deletes a version. The last remaining version cannot be removed.
func RemoveVersion(e Entity, versionID string) error {
	idx := -1
	for i, id := range e.VersionIDs() {
		if id == versionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.NewNotFound("version", versionID)
	}
	if e.VersionCount() <= 1 {
		return errors.NewLastVersion(e.EntityID())
	}

	now := Now()
	switch v := e.(type) {
	case *Character:
		v.Versions = append(v.Versions[:idx], v.Versions[idx+1:]...)
		v.UpdatedAt = now
	case *Lorebook:
		v.Versions = append(v.Versions[:idx], v.Versions[idx+1:]...)
		v.UpdatedAt = now
	case *Notebook:
		v.Versions = append(v.Versions[:idx], v.Versions[idx+1:]...)
		v.UpdatedAt = now
	}
	return nil
}

// Rename sets the display name and bumps the update timestamp.
func Rename(e Entity, name string) {
	now := Now()
	switch v := e.(type) {
	case *Character:
		v.Name, v.UpdatedAt = name, now
	case *Lorebook:
		v.Name, v.UpdatedAt = name, now
	case *Notebook:
		v.Name, v.UpdatedAt = name, now
	}
}

// Clone deep-copies an entity with fresh ids throughout and a " - Copy" name suffix.
// Version names are kept.
func Clone(e Entity) Entity {
	now := Now()
	switch v := e.(type) {
	case *Character:
		out := &Character{ID: ids.New(), Name: v.Name + " - Copy", CreatedAt: now, UpdatedAt: now}
		out.Versions = make([]CharacterVersion, len(v.Versions))
		for i, ver := range v.Versions {
			out.Versions[i] = cloneCharacterVersion(ver, now)
		}
		return out
	case *Lorebook:
		out := &Lorebook{ID: ids.New(), Name: v.Name + " - Copy", Description: v.Description, CreatedAt: now, UpdatedAt: now}
		out.Versions = make([]LorebookVersion, len(v.Versions))
		for i, ver := range v.Versions {
			out.Versions[i] = cloneLorebookVersion(ver, now)
		}
		return out
	case *Notebook:
		out := &Notebook{ID: ids.New(), Name: v.Name + " - Copy", CreatedAt: now, UpdatedAt: now}
		out.Versions = make([]NotebookVersion, len(v.Versions))
		for i, ver := range v.Versions {
			out.Versions[i] = cloneNotebookVersion(ver, now)
		}
		return out
	}
	return nil
}

func cloneCharacterVersion(v CharacterVersion, now Timestamp) CharacterVersion {
	out := v
	out.ID = ids.New()
	out.CreatedAt, out.UpdatedAt = now, now
	return out
}

func cloneLorebookVersion(v LorebookVersion, now Timestamp) LorebookVersion {
	out := LorebookVersion{ID: ids.New(), Name: v.Name, CreatedAt: now, UpdatedAt: now}
	out.Entries = make([]Entry, len(v.Entries))
	for i, e := range v.Entries {
		out.Entries[i] = cloneEntry(e, ids.New())
	}
	return out
}

func cloneNotebookVersion(v NotebookVersion, now Timestamp) NotebookVersion {
	out := NotebookVersion{ID: ids.New(), Name: v.Name, CreatedAt: now, UpdatedAt: now}
	out.Fields = make([]Field, len(v.Fields))
	for i, f := range v.Fields {
		out.Fields[i] = Field{ID: ids.New(), Name: f.Name, Content: f.Content, CreatedAt: now, UpdatedAt: now}
	}
	return out
}
