package backup

import (
	"context"
	"fmt"

	"github.com/hpungsan/chronicler/internal/config"
	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/flat"
	"github.com/hpungsan/chronicler/internal/model"
)

// ImportMode controls how a backup combines with existing data.
type ImportMode string

const (
	ImportModeReplace ImportMode = "replace" // backup replaces every collection
	ImportModeMerge   ImportMode = "merge"   // backup items are appended; id collisions are skipped
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: replace
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Mode     ImportMode     `json:"mode"`
	Imported map[string]int `json:"imported"`
	Skipped  map[string]int `json:"skipped,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
}

// Import reads a backup file into dst. dst is only touched once the whole file
// has been parsed. Undecodable records are left out and listed in Errors.
func Import(ctx context.Context, dst Collections, cfg *config.Config, baseDir string, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeReplace
	}
	if input.Mode != ImportModeReplace && input.Mode != ImportModeMerge {
		return nil, errors.NewInvalidRequest("mode must be one of: replace, merge")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg, baseDir); err != nil {
		return nil, err
	}

	data, err := flat.ReadFileNoFollow(input.Path)
	if err != nil {
		if errors.Is(err, errors.ErrFileNotFound) {
			return nil, errors.NewFileNotFound(input.Path)
		}
		return nil, err
	}
	doc, problems, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	out := &ImportOutput{Mode: input.Mode, Imported: make(map[string]int)}
	for _, p := range problems {
		out.Errors = append(out.Errors, p.Error())
	}

	for _, k := range model.Kinds() {
		items := doc.Collection(k)
		added := len(items)
		if input.Mode == ImportModeMerge {
			existing := dst.Items(k)
			var skipped int
			items, skipped = merge(existing, items)
			added = len(items) - len(existing)
			if skipped > 0 {
				if out.Skipped == nil {
					out.Skipped = make(map[string]int)
				}
				out.Skipped[k.Space()] = skipped
			}
		}
		if err := dst.ReplaceCollection(k, items); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("import %s: %w", k.Space(), err))
		}
		out.Imported[k.Space()] = added
	}
	return out, nil
}

// merge appends the incoming items whose ids are not already present.
func merge(existing, incoming []model.Entity) ([]model.Entity, int) {
	seen := make(map[string]bool, len(existing))
	out := make([]model.Entity, 0, len(existing)+len(incoming))
	for _, e := range existing {
		seen[e.EntityID()] = true
		out = append(out, e)
	}
	skipped := 0
	for _, e := range incoming {
		if seen[e.EntityID()] {
			skipped++
			continue
		}
		seen[e.EntityID()] = true
		out = append(out, e)
	}
	return out, skipped
}
