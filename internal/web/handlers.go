package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/hpungsan/chronicler/internal/config"
	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/model"
	"github.com/hpungsan/chronicler/internal/session"
	"github.com/hpungsan/chronicler/internal/storage"
)

// maxBodyBytes caps PUT /api/{kind} bodies.
const maxBodyBytes = 64 << 20

// Handlers contains HTTP route handlers.
type Handlers struct {
	sess     *session.Session
	store    *storage.Store
	cfg      *config.Config
	log      zerolog.Logger
	renderer *Renderer
}

// collectionResponse is the body of GET /api/{kind}.
type collectionResponse struct {
	Kind  model.Kind     `json:"kind"`
	Space string         `json:"space"`
	Count int            `json:"count"`
	Items []model.Entity `json:"items"`
}

// saveResponse is the body of a successful PUT /api/{kind}.
type saveResponse struct {
	Saved bool                `json:"saved"`
	Count int                 `json:"count"`
	Save  *session.SaveReport `json:"save"`
}

func (h *Handlers) kind(w http.ResponseWriter, r *http.Request) (model.Kind, bool) {
	kind, err := model.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewNotFound("collection", r.PathValue("kind")))
		return "", false
	}
	return kind, true
}

// HandleIndex handles GET /, the storage overview with notebook links.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, "index", IndexPageData{
		PageData:  PageData{Title: "Overview", Version: h.renderer.version},
		Status:    h.store.Status(r.Context()),
		Usage:     h.store.EstimateUsage(r.Context()),
		Dirty:     h.sess.IsDirty(),
		Notebooks: model.Typed[*model.Notebook](h.sess.Items(model.KindNotebook)),
	})
}

// HandleNotebookVersion handles GET /notebooks/{id}/versions/{vid}, the notebook markdown preview.
func (h *Handlers) HandleNotebookVersion(w http.ResponseWriter, r *http.Request) {
	item, err := h.sess.Item(model.KindNotebook, r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	nb := item.(*model.Notebook)

	vid := r.PathValue("vid")
	for _, v := range nb.Versions {
		if v.ID != vid {
			continue
		}
		fields := make([]RenderedField, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = RenderedField{Name: f.Name, HTML: renderMarkdown(f.Content)}
		}
		h.renderer.renderPage(w, "notebook", NotebookPageData{
			PageData: PageData{Title: nb.Name, Version: h.renderer.version},
			Notebook: nb,
			Version:  v,
			Fields:   fields,
		})
		return
	}
	h.renderer.renderError(w, r, errors.NewNotFound("version", vid))
}

// HandleLoad handles GET /api/{kind}.
func (h *Handlers) HandleLoad(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	items := h.sess.Items(kind)
	renderJSON(w, http.StatusOK, collectionResponse{Kind: kind, Space: kind.Space(), Count: len(items), Items: items})
}

// HandleSave handles PUT /api/{kind}, replacing the collection with the body's JSON array.
func (h *Handlers) HandleSave(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest(fmt.Sprintf("read body: %v", err)))
		return
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil || raws == nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("body must be a JSON array of records"))
		return
	}

	items := make([]model.Entity, 0, len(raws))
	for i, raw := range raws {
		item, err := model.DecodeOne(kind, raw)
		if err != nil {
			h.renderer.renderError(w, r, fmt.Errorf("item %d: %w", i, err))
			return
		}
		items = append(items, item)
	}
	if err := h.sess.ReplaceCollection(kind, items); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	report, err := h.sess.Save(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, saveResponse{Saved: true, Count: len(items), Save: report})
}

// HandleClear handles DELETE /api/{kind}.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	cleared, err := h.sess.ClearCollection(r.Context(), kind)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !cleared {
		h.renderer.renderError(w, r, errors.NewPersistenceFailed([]string{kind.Space()}))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReset handles DELETE /api/data?confirm=true, the hard data reset.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if !confirm {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm=true is required"))
		return
	}
	ok := h.sess.Reset(r.Context())
	h.log.Warn().Bool("ok", ok).Str("remote", r.RemoteAddr).Msg("data reset requested over http")
	renderJSON(w, http.StatusOK, map[string]any{"reset": ok})
}

// HandleColorsLoad handles GET /api/colors, the custom color map.
func (h *Handlers) HandleColorsLoad(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.store.LoadColors(r.Context()))
}

// HandleColorsSave handles PUT /api/colors. The body replaces the whole map.
func (h *Handlers) HandleColorsSave(w http.ResponseWriter, r *http.Request) {
	var colors map[string]string
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&colors); err != nil || colors == nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("body must be a JSON object of color names to values"))
		return
	}
	if !h.store.SaveColors(r.Context(), colors) {
		h.renderer.renderError(w, r, errors.NewPersistenceFailed([]string{model.FlatKeyColors}))
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"saved": true, "count": len(colors)})
}

// HandleStatus handles GET /api/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, struct {
		*storage.Status
		Dirty bool `json:"dirty"`
	}{h.store.Status(r.Context()), h.sess.IsDirty()})
}

// HandleUsage handles GET /api/usage. usage is null on fallback-only sessions.
func (h *Handlers) HandleUsage(w http.ResponseWriter, r *http.Request) {
	u := h.store.EstimateUsage(r.Context())
	warning := u != nil && u.NearLimit(float64(h.cfg.StorageWarnPercent))
	renderJSON(w, http.StatusOK, map[string]any{
		"available": u != nil,
		"usage":     u,
		"warning":   warning,
	})
}
