package mcp

import "github.com/mark3labs/mcp-go/mcp"

var kindOption = mcp.WithString("kind",
	mcp.Required(),
	mcp.Description("Collection to act on"),
	mcp.Enum("character", "lorebook", "notebook"),
)

var collectionLoadToolDef = mcp.NewTool("collection_load",
	mcp.WithDescription("Return every item of one collection in saved order."),
	mcp.WithReadOnlyHintAnnotation(true),
	kindOption,
)

var collectionSaveToolDef = mcp.NewTool("collection_save",
	mcp.WithDescription("Replace one collection with the given items and persist all collections. "+
		"Items use the stored record format (id, name, versions, ...)."),
	kindOption,
	mcp.WithArray("items",
		mcp.Required(),
		mcp.Description("The full collection; anything not listed is removed"),
		mcp.Items(map[string]any{"type": "object"}),
	),
)

var collectionClearToolDef = mcp.NewTool("collection_clear",
	mcp.WithDescription("Erase one collection."),
	mcp.WithDestructiveHintAnnotation(true),
	kindOption,
)

var dataResetToolDef = mcp.NewTool("data_reset",
	mcp.WithDescription("Erase all characters, lorebooks, notebooks and custom colors from both storage media. "+
		"Export a backup first."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithBoolean("confirm",
		mcp.Required(),
		mcp.Description("Must be true"),
	),
)

var colorsLoadToolDef = mcp.NewTool("colors_load",
	mcp.WithDescription("Return the custom color map. Colors are kept in fallback storage only."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var colorsSaveToolDef = mcp.NewTool("colors_save",
	mcp.WithDescription("Replace the custom color map."),
	mcp.WithObject("colors",
		mcp.Required(),
		mcp.Description("Color name to CSS color value, e.g. {\"primary\": \"#4E5E79\"}"),
	),
)

var storageStatusToolDef = mcp.NewTool("storage_status",
	mcp.WithDescription("Report the active storage medium, migration state, collection sizes and unsaved changes."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var storageUsageToolDef = mcp.NewTool("storage_usage",
	mcp.WithDescription("Estimate storage usage. Usage is null when the session runs on fallback storage."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var storageMigrateToolDef = mcp.NewTool("storage_migrate",
	mcp.WithDescription("Copy fallback collections into primary storage and set the migration marker. "+
		"Normally runs once at startup; once the marker exists it does nothing. "+
		"Collections the primary already holds are never overwritten."),
)

var backupExportToolDef = mcp.NewTool("backup_export",
	mcp.WithDescription("Write every collection to a JSON backup file."),
	mcp.WithString("path",
		mcp.Description("Destination .json file; defaults to <data dir>/exports/chronicler_backup_<timestamp>.json"),
	),
)

var backupImportToolDef = mcp.NewTool("backup_import",
	mcp.WithDescription("Load a JSON backup and persist it."),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Backup .json file"),
	),
	mcp.WithString("mode",
		mcp.Description("replace (default) overwrites every collection; merge adds items whose ids are new"),
		mcp.Enum("replace", "merge"),
	),
)
