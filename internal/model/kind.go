package model

import (
	"fmt"
	"strings"

	"github.com/hpungsan/chronicler/internal/errors"
)

// Kind identifies one of the three entity collections.
type Kind string

const (
	KindCharacter Kind = "character"
	KindLorebook  Kind = "lorebook"
	KindNotebook  Kind = "notebook"
)

// Record spaces in the primary backend.
const (
	SpaceCharacters = "characters"
	SpaceNotebooks  = "customSections"
	SpaceLorebooks  = "worldBooks"
	SpaceSettings   = "settings"
)

// Keys in the flat fallback backend.
const (
	FlatKeyCharacters = "characterCreatorData"
	FlatKeyNotebooks  = "characterCreatorCustomData"
	FlatKeyLorebooks  = "characterCreatorWorldBooks"
	FlatKeyColors     = "characterCreatorCustomColors"
)

// Kinds returns every kind in persistence order.
func Kinds() []Kind {
	return []Kind{KindCharacter, KindNotebook, KindLorebook}
}

// FlatKeys returns every key the fallback backend may hold, colors included.
func FlatKeys() []string {
	return []string{FlatKeyCharacters, FlatKeyNotebooks, FlatKeyLorebooks, FlatKeyColors}
}

// ParseKind parses a kind name. Legacy names (worldbook, custom) and plurals are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "character", "characters":
		return KindCharacter, nil
	case "lorebook", "lorebooks", "worldbook", "worldbooks":
		return KindLorebook, nil
	case "notebook", "notebooks", "custom", "customsections":
		return KindNotebook, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown kind %q (want character, lorebook or notebook)", s))
	}
}

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCharacter, KindLorebook, KindNotebook:
		return true
	}
	return false
}

// Space returns the primary-backend record space holding this kind.
func (k Kind) Space() string {
	switch k {
	case KindCharacter:
		return SpaceCharacters
	case KindLorebook:
		return SpaceLorebooks
	case KindNotebook:
		return SpaceNotebooks
	}
	return ""
}

// FlatKey returns the fallback-backend key holding this kind.
func (k Kind) FlatKey() string {
	switch k {
	case KindCharacter:
		return FlatKeyCharacters
	case KindLorebook:
		return FlatKeyLorebooks
	case KindNotebook:
		return FlatKeyNotebooks
	}
	return ""
}

// Label is the display name used for new items ("Character 1").
func (k Kind) Label() string {
	switch k {
	case KindCharacter:
		return "Character"
	case KindLorebook:
		return "Lorebook"
	case KindNotebook:
		return "Notebook"
	}
	return "Item"
}
