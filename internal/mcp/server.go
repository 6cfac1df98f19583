package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"collection_load": {
		def:     collectionLoadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCollectionLoad },
	},
	"collection_save": {
		def:     collectionSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCollectionSave },
	},
	"collection_clear": {
		def:     collectionClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCollectionClear },
	},
	"data_reset": {
		def:     dataResetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDataReset },
	},
	"colors_load": {
		def:     colorsLoadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleColorsLoad },
	},
	"colors_save": {
		def:     colorsSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleColorsSave },
	},
	"storage_status": {
		def:     storageStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStorageStatus },
	},
	"storage_usage": {
		def:     storageUsageToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStorageUsage },
	},
	"storage_migrate": {
		def:     storageMigrateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStorageMigrate },
	},
	"backup_export": {
		def:     backupExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBackupExport },
	},
	"backup_import": {
		def:     backupImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBackupImport },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns the names in the list that are not tools.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the chronicler tools registered, minus
// those listed in the handlers' config DisabledTools.
func NewServer(h *Handlers, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"chronicler",
		version,
		server.WithToolCapabilities(true),
	)

	disabled := make(map[string]bool)
	if h.cfg != nil {
		for _, name := range h.cfg.DisabledTools {
			disabled[name] = true
		}
	}
	for _, name := range AllToolNames() {
		if disabled[name] {
			continue
		}
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run serves the tools over stdio until stdin closes.
func Run(h *Handlers, version string) error {
	return server.ServeStdio(NewServer(h, version))
}
