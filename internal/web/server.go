package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/chronicler/internal/config"
	"github.com/hpungsan/chronicler/internal/logging"
	"github.com/hpungsan/chronicler/internal/metrics"
	"github.com/hpungsan/chronicler/internal/session"
	"github.com/hpungsan/chronicler/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Session *session.Session
	Store   *storage.Store
	Config  *config.Config
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// NewHandler builds the route table.
func NewHandler(deps Deps, version string) (http.Handler, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	log := logging.Component(deps.Logger, "web")
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	h := &Handlers{
		sess:     deps.Session,
		store:    deps.Store,
		cfg:      cfg,
		log:      log,
		renderer: NewRenderer(templateSub, version, log),
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", h.HandleIndex)
	mux.HandleFunc("GET /notebooks/{id}/versions/{vid}", h.HandleNotebookVersion)

	mux.HandleFunc("GET /api/status", h.HandleStatus)
	mux.HandleFunc("GET /api/usage", h.HandleUsage)
	mux.HandleFunc("DELETE /api/data", h.HandleReset)
	mux.HandleFunc("GET /api/colors", h.HandleColorsLoad)
	mux.HandleFunc("PUT /api/colors", h.HandleColorsSave)
	mux.HandleFunc("GET /api/{kind}", h.HandleLoad)
	mux.HandleFunc("PUT /api/{kind}", h.HandleSave)
	mux.HandleFunc("DELETE /api/{kind}", h.HandleClear)

	mux.Handle("GET /metrics", deps.Metrics.Handler())
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return securityHeaders(mux), nil
}

// NewServer creates the HTTP server.
func NewServer(deps Deps, version, bind string, port int) (*http.Server, error) {
	handler, err := NewHandler(deps, version)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run serves until SIGINT/SIGTERM or ctx is done, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().Str("addr", srv.Addr).Msgf("chronicler running at http://%s", srv.Addr)
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn().Msg("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
