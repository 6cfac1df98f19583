package model

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Entry is a keyword-triggered lorebook fragment. Keys not modelled here are kept
// in Extra and written back unchanged, so imported entries survive a round trip.
type Entry struct {
	ID                  string   `json:"id"`
	UID                 int      `json:"uid"`
	DisplayIndex        int      `json:"displayIndex"`
	Key                 []string `json:"key"`
	KeySecondary        []string `json:"keysecondary"`
	Content             string   `json:"content"`
	Comment             string   `json:"comment"`
	Constant            bool     `json:"constant"`
	Vectorized          bool     `json:"vectorized"`
	Selective           bool     `json:"selective"`
	SelectiveLogic      int      `json:"selectiveLogic"`
	AddMemo             bool     `json:"addMemo"`
	UseProbability      bool     `json:"useProbability"`
	Disable             bool     `json:"disable"`
	Order               int      `json:"order"`
	Position            int      `json:"position"`
	ExcludeRecursion    bool     `json:"excludeRecursion"`
	PreventRecursion    bool     `json:"preventRecursion"`
	DelayUntilRecursion bool     `json:"delayUntilRecursion"`
	Probability         int      `json:"probability"`
	Depth               int      `json:"depth"`
	Group               string   `json:"group"`
	GroupOverride       bool     `json:"groupOverride"`
	GroupWeight         int      `json:"groupWeight"`
	ScanDepth           *int     `json:"scanDepth"`
	CaseSensitive       *bool    `json:"caseSensitive"`
	MatchWholeWords     *bool    `json:"matchWholeWords"`
	UseGroupScoring     *bool    `json:"useGroupScoring"`
	AutomationID        string   `json:"automationId"`
	Role                int      `json:"role"`
	Sticky              int      `json:"sticky"`
	Cooldown            int      `json:"cooldown"`
	Delay               int      `json:"delay"`

	MatchPersonaDescription   bool `json:"matchPersonaDescription"`
	MatchCharacterDescription bool `json:"matchCharacterDescription"`
	MatchCharacterPersonality bool `json:"matchCharacterPersonality"`
	MatchCharacterDepthPrompt bool `json:"matchCharacterDepthPrompt"`
	MatchScenario             bool `json:"matchScenario"`
	MatchCreatorNotes         bool `json:"matchCreatorNotes"`

	Extra map[string]json.RawMessage `json:"-"`
}

// entryPlain has Entry's fields without its methods.
type entryPlain Entry

var entryKeys = sync.OnceValue(func() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(Entry{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
})

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var p entryPlain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := entryKeys()
	for k := range raw {
		if known[k] {
			delete(raw, k)
		}
	}
	p.Extra = nil
	if len(raw) > 0 {
		p.Extra = raw
	}
	*e = Entry(p)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(entryPlain(e))
	if err != nil || len(e.Extra) == 0 {
		return data, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// NewEntry returns an entry with the editor's defaults at the given index.
func NewEntry(id string, index int) Entry {
	return Entry{
		ID:           id,
		UID:          index,
		DisplayIndex: index,
		Key:          []string{},
		KeySecondary: []string{},
		Selective:    true,
		AddMemo:      true,
		Order:        100,
		Probability:  100,
		Depth:        4,
		GroupWeight:  100,
	}
}

func cloneEntry(e Entry, id string) Entry {
	out := e
	out.ID = id
	out.Key = append([]string{}, e.Key...)
	out.KeySecondary = append([]string{}, e.KeySecondary...)
	out.ScanDepth = clonePtr(e.ScanDepth)
	out.CaseSensitive = clonePtr(e.CaseSensitive)
	out.MatchWholeWords = clonePtr(e.MatchWholeWords)
	out.UseGroupScoring = clonePtr(e.UseGroupScoring)
	if e.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(e.Extra))
		for k, v := range e.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
