package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/chronicler/internal/backup"
	"github.com/hpungsan/chronicler/internal/errors"
	"github.com/hpungsan/chronicler/internal/model"
	"github.com/hpungsan/chronicler/internal/web"
)

// newCLIApp creates the CLI application with all commands. svc may be nil
// when only help or version output is needed.
func newCLIApp(svc *services) *cli.App {
	app := &cli.App{
		Name:    "chronicler",
		Usage:   "Character, lorebook and notebook storage",
		Version: Version,
		Commands: []*cli.Command{
			statusCmd(svc),
			usageCmd(svc),
			migrateCmd(svc),
			loadCmd(svc),
			saveCmd(svc),
			clearCmd(svc),
			resetCmd(svc),
			exportCmd(svc),
			importCmd(svc),
			colorsCmd(svc),
			serveCmd(svc),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// statusCmd creates the status command.
func statusCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the active storage medium and collection sizes",
		Action: func(c *cli.Context) error {
			return outputJSON(c, map[string]any{
				"status": svc.store.Status(c.Context),
				"dirty":  svc.sess.IsDirty(),
			})
		},
	}
}

// usageCmd creates the usage command.
func usageCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "usage",
		Usage: "Estimate storage usage (unavailable in fallback-only mode)",
		Action: func(c *cli.Context) error {
			u := svc.store.EstimateUsage(c.Context)
			out := map[string]any{"available": u != nil, "usage": u, "warning": false}
			if u != nil {
				out["percent"] = u.Percent()
				out["warning"] = u.NearLimit(float64(svc.cfg.StorageWarnPercent))
			}
			return outputJSON(c, out)
		},
	}
}

// migrateCmd creates the migrate command.
func migrateCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Copy fallback data into the primary database",
		Action: func(c *cli.Context) error {
			if !svc.store.PrimaryAvailable() {
				return outputError(errors.NewBackendUnavailable("primary storage is not available; nothing to migrate into"))
			}
			already := svc.store.IsMigrated(c.Context)
			if already {
				return outputJSON(c, map[string]any{"migrated": true, "already_migrated": true, "ran": false})
			}
			if !svc.store.Migrate(c.Context) {
				return outputError(errors.NewInternal(stderrors.New("migration marker could not be written")))
			}
			return outputJSON(c, map[string]any{"migrated": true, "already_migrated": already, "ran": true})
		},
	}
}

// loadCmd creates the load command.
func loadCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Print a collection as a JSON array",
		ArgsUsage: "<character|lorebook|notebook>",
		Action: func(c *cli.Context) error {
			kind, err := kindArg(c)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, svc.sess.Items(kind))
		},
	}
}

// saveCmd creates the save command.
func saveCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Replace a collection with a JSON array read from stdin",
		ArgsUsage: "<character|lorebook|notebook>",
		Action: func(c *cli.Context) error {
			kind, err := kindArg(c)
			if err != nil {
				return outputError(err)
			}
			data, err := readInput(c)
			if err != nil {
				return outputError(err)
			}
			items, err := decodeRecords(kind, data)
			if err != nil {
				return outputError(err)
			}
			if err := svc.sess.ReplaceCollection(kind, items); err != nil {
				return outputError(err)
			}
			report, err := svc.sess.Save(c.Context)
			if err != nil {
				return outputError(err)
			}
			if report.StorageWarning {
				svc.log.Warn().Float64("percent", report.Usage.Percent()).Msg("storage is nearly full")
			}
			return outputJSON(c, map[string]any{"saved": true, "count": len(items), "save": report})
		},
	}
}

// colorsCmd creates the colors command.
func colorsCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "colors",
		Usage: "Print the custom color map, or replace it with a JSON object read from stdin",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "set", Usage: "Replace the color map with stdin"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("set") {
				return outputJSON(c, svc.store.LoadColors(c.Context))
			}
			data, err := readInput(c)
			if err != nil {
				return outputError(err)
			}
			var colors map[string]string
			if err := json.Unmarshal(data, &colors); err != nil || colors == nil {
				return outputError(errors.NewInvalidRequest("input must be a JSON object of color names to values"))
			}
			if !svc.store.SaveColors(c.Context, colors) {
				return outputError(errors.NewPersistenceFailed([]string{model.FlatKeyColors}))
			}
			return outputJSON(c, map[string]any{"saved": true, "count": len(colors)})
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "clear",
		Usage:     "Delete every item of one collection",
		ArgsUsage: "<character|lorebook|notebook>",
		Action: func(c *cli.Context) error {
			kind, err := kindArg(c)
			if err != nil {
				return outputError(err)
			}
			ok, err := svc.sess.ClearCollection(c.Context, kind)
			if err != nil {
				return outputError(err)
			}
			if !ok {
				return outputError(errors.NewPersistenceFailed([]string{kind.Space()}))
			}
			return outputJSON(c, map[string]any{"cleared": true, "space": kind.Space()})
		},
	}
}

// resetCmd creates the reset command.
func resetCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Erase all data from both storage media",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm the reset"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return outputError(errors.NewInvalidRequest("reset erases all data; pass --yes to confirm"))
			}
			ok := svc.sess.Reset(c.Context)
			svc.log.Warn().Bool("ok", ok).Msg("data reset requested from cli")
			return outputJSON(c, map[string]any{"reset": ok})
		},
	}
}

// exportCmd creates the export command.
func exportCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write every collection to a JSON backup file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Backup file path (default: ~/.chronicler/exports/chronicler_backup_<timestamp>.json)"},
		},
		Action: func(c *cli.Context) error {
			output, err := backup.Export(c.Context, svc.sess, svc.cfg, svc.baseDir, backup.ExportInput{
				Path: c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Load collections from a JSON backup file and save them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Backup file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: string(backup.ImportModeReplace), Usage: "Import mode: replace|merge"},
		},
		Action: func(c *cli.Context) error {
			output, err := backup.Import(c.Context, svc.sess, svc.cfg, svc.baseDir, backup.ImportInput{
				Path: c.String("path"),
				Mode: backup.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			report, err := svc.sess.Save(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"import": output, "save": report})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API, notebook previews and metrics over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8420, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(web.Deps{
				Session: svc.sess,
				Store:   svc.store,
				Config:  svc.cfg,
				Metrics: svc.metrics,
				Logger:  svc.log,
			}, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			go svc.watchUsage(ctx)

			return web.Run(ctx, srv, svc.log)
		},
	}
}

// Helper functions

// kindArg parses the first positional argument as a collection kind.
func kindArg(c *cli.Context) (model.Kind, error) {
	if c.NArg() == 0 {
		return "", errors.NewInvalidRequest("kind argument is required (character, lorebook or notebook)")
	}
	return model.ParseKind(c.Args().First())
}

// readInput reads all of the app's input. An interactive stdin is rejected.
func readInput(c *cli.Context) ([]byte, error) {
	if f, ok := c.App.Reader.(*os.File); ok && isTerminal(f) {
		return nil, errors.NewInvalidRequest("records must be piped via stdin")
	}
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return data, nil
}

// decodeRecords decodes a JSON array of kind records. Any invalid record fails the whole batch.
func decodeRecords(kind model.Kind, data []byte) ([]model.Entity, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil || raws == nil {
		return nil, errors.NewInvalidRequest("input must be a JSON array of records")
	}
	items := make([]model.Entity, 0, len(raws))
	for i, raw := range raws {
		item, err := model.DecodeOne(kind, raw)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// outputJSON marshals result to the app's writer as JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var cErr *errors.ChroniclerError
	if stderrors.As(err, &cErr) {
		msg := cErr.Message
		if err != error(cErr) {
			msg = err.Error()
		}
		return cli.Exit(fmt.Sprintf("[%s] %s", cErr.Code, msg), 1)
	}
	return cli.Exit(err.Error(), 1)
}
