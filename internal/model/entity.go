// Package model defines the versioned entities persisted by chronicler: characters,
// lorebooks and notebooks. JSON shapes match the editor's stored layout.
package model

// Entity is implemented by *Character, *Lorebook and *Notebook.
type Entity interface {
	Kind() Kind
	EntityID() string
	EntityName() string
	VersionCount() int
	VersionIDs() []string
}

// Character is a character card with one or more versions.
type Character struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	CreatedAt Timestamp          `json:"createdAt,omitzero"`
	UpdatedAt Timestamp          `json:"updatedAt,omitzero"`
	Versions  []CharacterVersion `json:"versions"`
}

// CharacterVersion is one named snapshot of a character card.
type CharacterVersion struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar"`
	Description  string    `json:"description"`
	Personality  string    `json:"personality"`
	Scenario     string    `json:"scenario"`
	Dialogue     string    `json:"dialogue"`
	FirstMessage string    `json:"firstMessage"`
	Creator      string    `json:"creator"`
	CharVersion  string    `json:"charVersion"`
	CreatorNotes string    `json:"creatorNotes"`
	Tags         string    `json:"tags"`
	CreatedAt    Timestamp `json:"createdAt,omitzero"`
	UpdatedAt    Timestamp `json:"updatedAt,omitzero"`
}

// Lorebook is a world-info book whose versions hold keyword-triggered entries.
type Lorebook struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	CreatedAt   Timestamp         `json:"createdAt,omitzero"`
	UpdatedAt   Timestamp         `json:"updatedAt,omitzero"`
	Versions    []LorebookVersion `json:"versions"`
}

// LorebookVersion is one named snapshot of a lorebook's entries.
type LorebookVersion struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Entries   []Entry   `json:"entries"`
	CreatedAt Timestamp `json:"createdAt,omitzero"`
	UpdatedAt Timestamp `json:"updatedAt,omitzero"`
}

// Notebook is a free-form collection of named text fields.
type Notebook struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	CreatedAt Timestamp         `json:"createdAt,omitzero"`
	UpdatedAt Timestamp         `json:"updatedAt,omitzero"`
	Versions  []NotebookVersion `json:"versions"`
}

// NotebookVersion is one named snapshot of a notebook's fields.
type NotebookVersion struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Fields    []Field   `json:"fields"`
	CreatedAt Timestamp `json:"createdAt,omitzero"`
	UpdatedAt Timestamp `json:"updatedAt,omitzero"`
}

// Field is a named block of notebook text, rendered as markdown.
type Field struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"createdAt,omitzero"`
	UpdatedAt Timestamp `json:"updatedAt,omitzero"`
}

func (c *Character) Kind() Kind { return KindCharacter }
func (c *Character) EntityID() string { return c.ID }
func (c *Character) EntityName() string { return c.Name }
func (c *Character) VersionCount() int { return len(c.Versions) }
func (l *Lorebook) Kind() Kind { return KindLorebook }
func (l *Lorebook) EntityID() string { return l.ID }
func (l *Lorebook) EntityName() string { return l.Name }
func (l *Lorebook) VersionCount() int { return len(l.Versions) }
func (n *Notebook) Kind() Kind { return KindNotebook }
func (n *Notebook) EntityID() string { return n.ID }
func (n *Notebook) EntityName() string { return n.Name }
func (n *Notebook) VersionCount() int { return len(n.Versions) }

func (c *Character) VersionIDs() []string {
	out := make([]string, len(c.Versions))
	for i := range c.Versions {
		out[i] = c.Versions[i].ID
	}
	return out
}

func (l *Lorebook) VersionIDs() []string {
	out := make([]string, len(l.Versions))
	for i := range l.Versions {
		out[i] = l.Versions[i].ID
	}
	return out
}

func (n *Notebook) VersionIDs() []string {
	out := make([]string, len(n.Versions))
	for i := range n.Versions {
		out[i] = n.Versions[i].ID
	}
	return out
}

// Typed returns the elements of items that are of type T, in order.
func Typed[T Entity](items []Entity) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if v, ok := item.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Find returns the entity with the given id and its index, or nil and -1.
func Find(items []Entity, id string) (Entity, int) {
	for i, item := range items {
		if item.EntityID() == id {
			return item, i
		}
	}
	return nil, -1
}
