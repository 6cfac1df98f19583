package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/chronicler/internal/config"
	"github.com/hpungsan/chronicler/internal/logging"
	"github.com/hpungsan/chronicler/internal/mcp"
	"github.com/hpungsan/chronicler/internal/metrics"
	"github.com/hpungsan/chronicler/internal/quota"
	"github.com/hpungsan/chronicler/internal/session"
	"github.com/hpungsan/chronicler/internal/storage"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// dataDirEnv overrides the default data directory (~/.chronicler).
const dataDirEnv = "CHRONICLER_DATA_DIR"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"status": true, "usage": true, "migrate": true,
	"load": true, "save": true, "clear": true, "reset": true,
	"export": true, "import": true, "colors": true, "serve": true,
	"help": true,
}

// services is everything a command needs, opened once per process.
type services struct {
	baseDir string
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	store   *storage.Store
	sess    *session.Session
}

// openServices loads config from baseDir, opens storage and loads the session.
// Startup (primary init and migration) runs here.
func openServices(ctx context.Context, baseDir string) (*services, error) {
	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	m := metrics.New()

	store, err := storage.New(storage.Options{DataDir: baseDir, Config: cfg, Logger: log, Metrics: m})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	sess := session.New(store, log, cfg.StorageWarnPercent)
	report := sess.Open(ctx)
	log.Debug().
		Bool("primary", report.Startup.Primary).
		Int("backfilled", report.Backfilled).
		Msg("session opened")

	return &services{baseDir: baseDir, cfg: cfg, log: log, metrics: m, store: store, sess: sess}, nil
}

// Close releases the storage handles.
func (s *services) Close() error {
	return s.store.Close()
}

// watchUsage logs a warning whenever usage crosses the configured threshold.
// It blocks until ctx is done.
func (s *services) watchUsage(ctx context.Context) {
	interval := time.Duration(s.cfg.UsagePollSeconds) * time.Second
	s.sess.WatchUsage(ctx, interval, func(u quota.Usage) {
		s.log.Warn().
			Int64("used_bytes", u.UsedBytes).
			Int64("total_bytes", u.TotalBytes).
			Float64("percent", u.Percent()).
			Msg("storage is nearly full; delete data or export a backup")
	})
}

// resolveDataDir returns $CHRONICLER_DATA_DIR, or ~/.chronicler.
func resolveDataDir() (string, error) {
	if dir := os.Getenv(dataDirEnv); dir != "" {
		return filepath.Abs(dir)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".chronicler"), nil
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return isHelpOrVersion(args)
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if f is a terminal (not piped).
func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  chronicler

  Character, lorebook and notebook storage

  Usage: chronicler <command> [options]
         chronicler --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal(os.Stdin) {
		printBanner()
		return
	}

	// Handle --help/--version before storage is opened
	if isHelpOrVersion(os.Args) {
		if err := newCLIApp(nil).Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode(os.Args) && len(os.Args) >= 2 && isTerminal(os.Stdin) {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'chronicler --help' for usage.\n")
		os.Exit(1)
	}

	baseDir, err := resolveDataDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	svc, err := openServices(ctx, baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if isCLIMode(os.Args) {
		err = newCLIApp(svc).Run(os.Args)
	} else {
		err = runMCP(ctx, svc)
	}
	svc.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runMCP serves the MCP tools over stdio until stdin closes.
func runMCP(ctx context.Context, svc *services) error {
	if unknown := mcp.ValidateDisabledTools(svc.cfg.DisabledTools); len(unknown) > 0 {
		svc.log.Warn().Strs("tools", unknown).Msg("disabled_tools lists unknown tool names")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go svc.watchUsage(ctx)

	h := mcp.NewHandlers(svc.sess, svc.store, svc.cfg, svc.log)
	return mcp.Run(h, Version)
}
