package session

import (
	"fmt"

	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/model"
)

func checkKind(kind model.Kind) error {
	if !kind.Valid() {
		return errors.NewInvalidRequest(fmt.Sprintf("unknown kind %q", kind))
	}
	return nil
}

// Items returns the collection in order. The slice is a copy; the entities are not.
func (s *Session) Items(kind model.Kind) []model.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Entity{}, s.collections[kind]...)
}

// Item returns one entity by id.
func (s *Session) Item(kind model.Kind, id string) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(kind, id)
}

func (s *Session) findLocked(kind model.Kind, id string) (model.Entity, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	item, _ := model.Find(s.collections[kind], id)
	if item == nil {
		return nil, errors.NewNotFound(kind.Label(), id)
	}
	return item, nil
}

// AddItem appends a new entity with one blank version.
func (s *Session) AddItem(kind model.Kind) (model.Entity, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := model.New(kind, len(s.collections[kind]))
	if err != nil {
		return nil, err
	}
	s.collections[kind] = append(s.collections[kind], item)
	s.dirty = true
	return item, nil
}

// CopyItem inserts a deep copy with fresh ids right after the original.
func (s *Session) CopyItem(kind model.Kind, id string) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.findLocked(kind, id)
	if err != nil {
		return nil, err
	}
	_, idx := model.Find(s.collections[kind], id)
	clone := model.Clone(item)

	items := s.collections[kind]
	out := make([]model.Entity, 0, len(items)+1)
	out = append(out, items[:idx+1]...)
	out = append(out, clone)
	out = append(out, items[idx+1:]...)
	s.collections[kind] = out
	s.dirty = true
	return clone, nil
}

// RemoveItem deletes an entity.
func (s *Session) RemoveItem(kind model.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.findLocked(kind, id); err != nil {
		return err
	}
	_, idx := model.Find(s.collections[kind], id)
	items := s.collections[kind]
	out := make([]model.Entity, 0, len(items)-1)
	out = append(out, items[:idx]...)
	s.collections[kind] = append(out, items[idx+1:]...)
	s.dirty = true
	return nil
}

// RenameItem sets an entity's display name.
func (s *Session) RenameItem(kind model.Kind, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.findLocked(kind, id)
	if err != nil {
		return err
	}
	model.Rename(item, name)
	s.dirty = true
	return nil
}

// AddVersion appends a blank version and returns its id.
func (s *Session) AddVersion(kind model.Kind, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.findLocked(kind, id)
	if err != nil {
		return "", err
	}
	vid := model.AddVersion(item)
	s.dirty = true
	return vid, nil
}

// CopyVersion duplicates a version and returns the copy's id.
func (s *Session) CopyVersion(kind model.Kind, id, versionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.findLocked(kind, id)
	if err != nil {
		return "", err
	}
	vid, err := model.CopyVersion(item, versionID)
	if err != nil {
		return "", err
	}
	s.dirty = true
	return vid, nil
}

// RemoveVersion deletes a version. An entity's last version cannot be removed.
func (s *Session) RemoveVersion(kind model.Kind, id, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.findLocked(kind, id)
	if err != nil {
		return err
	}
	if err := model.RemoveVersion(item, versionID); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// ReplaceCollection swaps in a whole collection, as an import does.
func (s *Session) ReplaceCollection(kind model.Kind, items []model.Entity) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	for i, item := range items {
		if item == nil || item.Kind() != kind {
			return errors.NewInvalidRequest(fmt.Sprintf("%s item %d has the wrong kind", kind, i))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if items == nil {
		items = []model.Entity{}
	}
	s.collections[kind] = items
	s.dirty = true
	return nil
}
