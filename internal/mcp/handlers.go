package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/hpungsan/chronicler/internal/backup"
	"github.com/hpungsan/chronicler/internal/config"
	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/logging"
	"github.com/hpungsan/chronicler/internal/model"
	"github.com/hpungsan/chronicler/internal/quota"
	"github.com/hpungsan/chronicler/internal/session"
	"github.com/hpungsan/chronicler/internal/storage"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	sess  *session.Session
	store *storage.Store
	cfg   *config.Config
	log   zerolog.Logger
}

// NewHandlers creates a new Handlers instance. sess must be opened on store.
func NewHandlers(sess *session.Session, store *storage.Store, cfg *config.Config, log zerolog.Logger) *Handlers {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Handlers{sess: sess, store: store, cfg: cfg, log: logging.Component(log, "mcp")}
}

// KindRequest names a collection.
type KindRequest struct {
	Kind string `json:"kind"`
}

// SaveRequest represents the arguments for collection_save.
type SaveRequest struct {
	Kind  string            `json:"kind"`
	Items []json.RawMessage `json:"items"`
}

// ResetRequest represents the arguments for data_reset.
type ResetRequest struct {
	Confirm bool `json:"confirm"`
}

// ColorsRequest represents the arguments for colors_save.
type ColorsRequest struct {
	Colors map[string]string `json:"colors"`
}

// ExportRequest represents the arguments for backup_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// ImportRequest represents the arguments for backup_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// CollectionOutput is the collection_load result.
type CollectionOutput struct {
	Kind  model.Kind     `json:"kind"`
	Space string         `json:"space"`
	Count int            `json:"count"`
	Items []model.Entity `json:"items"`
}

// SaveOutput is the collection_save and backup_import save result.
type SaveOutput struct {
	Saved bool                `json:"saved"`
	Count int                 `json:"count,omitempty"`
	Save  *session.SaveReport `json:"save"`
}

// StatusOutput is the storage_status result.
type StatusOutput struct {
	*storage.Status
	Dirty bool `json:"dirty"`
}

// UsageOutput is the storage_usage result.
type UsageOutput struct {
	Available bool         `json:"available"`
	Usage     *quota.Usage `json:"usage"`
	Percent   float64      `json:"percent,omitempty"`
	Warning   bool         `json:"warning"`
}

// ImportOutput is the backup_import result.
type ImportOutput struct {
	*backup.ImportOutput
	Save *session.SaveReport `json:"save"`
}

func parseKind(raw string) (model.Kind, error) {
	if raw == "" {
		return "", errors.NewInvalidRequest("kind is required")
	}
	return model.ParseKind(raw)
}

// HandleCollectionLoad handles the collection_load tool call.
func (h *Handlers) HandleCollectionLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[KindRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	kind, err := parseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}

	items := h.sess.Items(kind)
	return successResult(CollectionOutput{Kind: kind, Space: kind.Space(), Count: len(items), Items: items})
}

// HandleCollectionSave handles the collection_save tool call.
func (h *Handlers) HandleCollectionSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	kind, err := parseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Items == nil {
		return errorResult(errors.NewInvalidRequest("items is required")), nil
	}

	items := make([]model.Entity, 0, len(input.Items))
	for i, raw := range input.Items {
		item, err := model.DecodeOne(kind, raw)
		if err != nil {
			return errorResult(fmt.Errorf("item %d: %w", i, err)), nil
		}
		items = append(items, item)
	}
	if err := h.sess.ReplaceCollection(kind, items); err != nil {
		return errorResult(err), nil
	}

	report, err := h.sess.Save(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(SaveOutput{Saved: true, Count: len(items), Save: report})
}

// HandleCollectionClear handles the collection_clear tool call.
func (h *Handlers) HandleCollectionClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[KindRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	kind, err := parseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}

	ok, err := h.sess.ClearCollection(ctx, kind)
	if err != nil {
		return errorResult(err), nil
	}
	if !ok {
		return errorResult(errors.NewPersistenceFailed([]string{kind.Space()})), nil
	}
	return successResult(map[string]any{"cleared": true, "space": kind.Space()})
}

// HandleDataReset handles the data_reset tool call.
func (h *Handlers) HandleDataReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ResetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if !input.Confirm {
		return errorResult(errors.NewInvalidRequest("confirm must be true")), nil
	}

	ok := h.sess.Reset(ctx)
	h.log.Warn().Bool("ok", ok).Msg("data reset requested over mcp")
	return successResult(map[string]any{"reset": ok})
}

// HandleColorsLoad handles the colors_load tool call.
func (h *Handlers) HandleColorsLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	colors := h.store.LoadColors(ctx)
	return successResult(map[string]any{"colors": colors, "count": len(colors)})
}

// HandleColorsSave handles the colors_save tool call.
func (h *Handlers) HandleColorsSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ColorsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Colors == nil {
		return errorResult(errors.NewInvalidRequest("colors is required")), nil
	}
	if !h.store.SaveColors(ctx, input.Colors) {
		return errorResult(errors.NewPersistenceFailed([]string{model.FlatKeyColors})), nil
	}
	return successResult(map[string]any{"saved": true, "count": len(input.Colors)})
}

// HandleStorageStatus handles the storage_status tool call.
func (h *Handlers) HandleStorageStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(StatusOutput{Status: h.store.Status(ctx), Dirty: h.sess.IsDirty()})
}

// HandleStorageUsage handles the storage_usage tool call.
func (h *Handlers) HandleStorageUsage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u := h.store.EstimateUsage(ctx)
	out := UsageOutput{Available: u != nil, Usage: u}
	if u != nil {
		out.Percent = u.Percent()
		out.Warning = u.NearLimit(float64(h.cfg.StorageWarnPercent))
	}
	return successResult(out)
}

// HandleStorageMigrate handles the storage_migrate tool call.
func (h *Handlers) HandleStorageMigrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !h.store.PrimaryAvailable() {
		return errorResult(errors.NewBackendUnavailable("primary storage is not available; nothing to migrate into")), nil
	}
	already := h.store.IsMigrated(ctx)
	if !h.store.Migrate(ctx) {
		return errorResult(errors.NewInternal(stderrors.New("migration marker could not be written"))), nil
	}
	return successResult(map[string]any{"migrated": true, "already_migrated": already})
}

// HandleBackupExport handles the backup_export tool call.
func (h *Handlers) HandleBackupExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := backup.Export(ctx, h.sess, h.cfg, h.store.DataDir(), backup.ExportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBackupImport handles the backup_import tool call.
func (h *Handlers) HandleBackupImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := backup.Import(ctx, h.sess, h.cfg, h.store.DataDir(), backup.ImportInput{
		Path: input.Path,
		Mode: backup.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	report, err := h.sess.Save(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(ImportOutput{ImportOutput: result, Save: report})
}

// errorResult renders err as an error payload. Details are omitted for internal
// errors, which can carry paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var cErr *errors.ChroniclerError
	if stderrors.As(err, &cErr) {
		errorObj := map[string]any{
			"code":    cErr.Code,
			"message": err.Error(),
			"status":  cErr.Status,
		}
		if cErr.Code != errors.ErrInternal && cErr.Details != nil {
			errorObj["details"] = cErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates a success result with JSON content.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
