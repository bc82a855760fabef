// Package server serves the generated documentation with live reload: a
// static file server over the builder's output directory, plus a
// websocket endpoint through which the notification hub pushes new build
// generations to connected browsers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/docserve/internal/build"
	"github.com/conneroisu/docserve/internal/config"
	"github.com/conneroisu/docserve/internal/hub"
	"github.com/conneroisu/docserve/internal/logging"
	"github.com/conneroisu/docserve/internal/metrics"
	"github.com/conneroisu/docserve/internal/version"
)

// PreviewServer serves generated docs with live reload capability.
type PreviewServer struct {
	config       *config.Config
	orchestrator *build.Orchestrator
	hub          *hub.Hub
	recorder     *metrics.Recorder
	log          logging.Logger

	httpServer   *http.Server
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
}

// New creates a preview server over the given orchestrator and hub.
func New(cfg *config.Config, orchestrator *build.Orchestrator, h *hub.Hub, recorder *metrics.Recorder, log logging.Logger) *PreviewServer {
	return &PreviewServer{
		config:       cfg,
		orchestrator: orchestrator,
		hub:          h,
		recorder:     recorder,
		log:          log.WithComponent("server"),
	}
}

// Handler returns the full HTTP handler, exposed for tests.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/build/status", s.handleBuildStatus)
	mux.Handle("/metrics", s.recorder.HTTPHandler())
	mux.HandleFunc("/", s.handleDocs)
	return s.logRequests(mux)
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *PreviewServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	if s.config.Server.Open {
		go s.openBrowser(ctx, fmt.Sprintf("http://%s", addr))
	}

	s.log.Info(ctx, "serving documentation", "addr", addr, "dir", s.config.OutputDir())

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and closes all viewer
// sessions.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.log.Info(ctx, "shutting down server")
		s.hub.Close()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

// handleDocs serves the generated documentation. "/" redirects to the
// configured start page; HTML files get the live-reload client injected.
func (s *PreviewServer) handleDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path == "/" {
		http.Redirect(w, r, s.startPage(), http.StatusMovedPermanently)
		return
	}

	docRoot := http.Dir(s.config.OutputDir())

	// Directories get the canonical trailing-slash redirect, so relative
	// links inside their index resolve.
	if !strings.HasSuffix(r.URL.Path, "/") {
		if full := s.localPath(r.URL.Path); full != "" {
			if info, err := os.Stat(full); err == nil && info.IsDir() {
				http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
				return
			}
		}
	}

	if path := s.htmlPath(r.URL.Path); path != "" {
		s.serveInjectedHTML(w, r, path)
		return
	}

	http.FileServer(docRoot).ServeHTTP(w, r)
}

// localPath maps a request path to a filesystem path under the output
// directory, or returns "" for traversal attempts.
func (s *PreviewServer) localPath(urlPath string) string {
	clean := filepath.Clean(strings.TrimPrefix(urlPath, "/"))
	if strings.HasPrefix(clean, "..") {
		return ""
	}
	return filepath.Join(s.config.OutputDir(), clean)
}

// htmlPath resolves a request path to an HTML file under the output
// directory, or returns "" when the request is not for HTML.
func (s *PreviewServer) htmlPath(urlPath string) string {
	full := s.localPath(urlPath)
	if full == "" {
		return ""
	}

	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(urlPath, "/") {
			// An unslashed directory request gets redirected, never an
			// index served at the wrong URL.
			return ""
		}
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil || info.IsDir() {
		return ""
	}
	if !strings.HasSuffix(full, ".html") && !strings.HasSuffix(full, ".htm") {
		return ""
	}
	return full
}

func (s *PreviewServer) serveInjectedHTML(w http.ResponseWriter, r *http.Request, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	injected, err := InjectReloadScript(content)
	if err != nil {
		// Malformed HTML still gets served, just without live reload.
		s.log.Warn(r.Context(), err, "reload script injection failed", "path", path)
		injected = content
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(injected)
	}
}

// startPage returns the redirect target for "/". When unconfigured it
// falls back to the project directory's name with dashes mapped to
// underscores, which is where rustdoc-style builders put the root index.
func (s *PreviewServer) startPage() string {
	if page := s.config.Server.StartPage; page != "" {
		if !strings.HasPrefix(page, "/") {
			return "/" + page
		}
		return page
	}

	dir, err := filepath.Abs(s.config.Build.Dir)
	if err == nil {
		name := strings.ReplaceAll(filepath.Base(dir), "-", "_")
		candidate := filepath.Join(s.config.OutputDir(), name, "index.html")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return "/" + name + "/index.html"
		}
	}

	return "/index.html"
}

// handleHealth returns the server health status for health checks
func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := s.orchestrator.Snapshot()
	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"generation": snapshot.Generation,
		"build":      snapshot.State.String(),
		"sessions":   s.hub.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.log.Warn(r.Context(), err, "encoding health response")
	}
}

// handleBuildStatus returns the current build state, including captured
// builder output for the most recent failure.
func (s *PreviewServer) handleBuildStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := s.orchestrator.Snapshot()
	response := map[string]interface{}{
		"state":      snapshot.State.String(),
		"generation": snapshot.Generation,
		"timestamp":  time.Now().Unix(),
	}
	if !snapshot.FinishedAt.IsZero() {
		response["finished_at"] = snapshot.FinishedAt.UTC()
		response["duration_ms"] = snapshot.Duration.Milliseconds()
	}
	if snapshot.Failure != nil {
		response["failure_class"] = snapshot.Failure.Class.String()
		response["failure"] = snapshot.Failure.Summary()
		response["output"] = snapshot.Failure.Output
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *PreviewServer) logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		s.log.Debug(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *PreviewServer) openBrowser(ctx context.Context, url string) {
	time.Sleep(100 * time.Millisecond) // Give the listener time to start

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		s.log.Warn(ctx, err, "opening browser", "url", url)
	}
}
