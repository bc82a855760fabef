package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/docserve/internal/build"
	"github.com/conneroisu/docserve/internal/config"
	"github.com/conneroisu/docserve/internal/errors"
	"github.com/conneroisu/docserve/internal/hub"
	"github.com/conneroisu/docserve/internal/logging"
	"github.com/conneroisu/docserve/internal/metrics"
)

// stubRunner always reports the configured outcome immediately.
type stubRunner struct {
	fail bool
}

func (r stubRunner) Run(ctx context.Context) build.Result {
	if r.fail {
		return build.Result{
			ExitCode: 1,
			Output:   "error: missing docs",
			Duration: time.Millisecond,
			Failure:  errors.NewExitFailure("cargo doc", 1, "error: missing docs"),
		}
	}
	return build.Result{Duration: time.Millisecond}
}

type testFixture struct {
	server       *PreviewServer
	hub          *hub.Hub
	orchestrator *build.Orchestrator
	docDir       string
	ts           *httptest.Server
}

func newFixture(t *testing.T, runner build.Runner) *testFixture {
	t.Helper()

	log := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelError,
		Format: "text",
		Output: os.Stderr,
	})

	projectDir := t.TempDir()
	docDir := filepath.Join(projectDir, "target", "doc")
	require.NoError(t, os.MkdirAll(docDir, 0o755))

	cfg := &config.Config{}
	cfg.Build.Dir = projectDir
	cfg.ApplyDefaults()

	recorder := metrics.NewRecorder()
	h := hub.New(recorder, log)
	orchestrator := build.NewOrchestrator(runner, recorder, log)
	orchestrator.OnComplete(func(s build.Snapshot) { h.Broadcast(hub.FromSnapshot(s)) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	orchestrator.Start(ctx)

	srv := New(cfg, orchestrator, h, recorder, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testFixture{
		server:       srv,
		hub:          h,
		orchestrator: orchestrator,
		docDir:       docDir,
		ts:           ts,
	}
}

func (f *testFixture) buildOnce(t *testing.T) {
	t.Helper()
	f.orchestrator.Request()
	require.Eventually(t, func() bool {
		state := f.orchestrator.Snapshot().State
		return state == build.StateSucceeded || state == build.StateFailed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRootRedirectsToStartPage(t *testing.T) {
	f := newFixture(t, stubRunner{})

	client := f.ts.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Get(f.ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/index.html", resp.Header.Get("Location"))
}

func TestRootRedirectUsesConfiguredStartPage(t *testing.T) {
	f := newFixture(t, stubRunner{})
	f.server.config.Server.StartPage = "mycrate/index.html"

	client := f.ts.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Get(f.ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "/mycrate/index.html", resp.Header.Get("Location"))
}

func TestServesStaticAssetsUnmodified(t *testing.T) {
	f := newFixture(t, stubRunner{})
	css := "body { color: #333; }"
	require.NoError(t, os.WriteFile(filepath.Join(f.docDir, "main.css"), []byte(css), 0o644))

	resp, err := f.ts.Client().Get(f.ts.URL + "/main.css")
	require.NoError(t, err)
	defer resp.Body.Close()

	body := readAll(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, css, body)
}

func TestServesHTMLWithReloadClient(t *testing.T) {
	f := newFixture(t, stubRunner{})
	page := `<html><head></head><body><h1>api docs</h1></body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(f.docDir, "docs.html"), []byte(page), 0o644))

	resp, err := f.ts.Client().Get(f.ts.URL + "/docs.html")
	require.NoError(t, err)
	defer resp.Body.Close()

	body := readAll(t, resp)
	assert.Contains(t, body, "api docs")
	assert.Contains(t, body, "new WebSocket")
}

func TestServesDirectoryIndex(t *testing.T) {
	f := newFixture(t, stubRunner{})
	pkgDir := filepath.Join(f.docDir, "mylib")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "index.html"),
		[]byte(`<html><body>mylib</body></html>`), 0o644))

	resp, err := f.ts.Client().Get(f.ts.URL + "/mylib/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body := readAll(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "mylib")
	assert.Contains(t, body, "new WebSocket")
}

func TestDirectoryWithoutSlashRedirects(t *testing.T) {
	f := newFixture(t, stubRunner{})
	pkgDir := filepath.Join(f.docDir, "mylib")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "index.html"),
		[]byte(`<html><body>mylib</body></html>`), 0o644))

	client := f.ts.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Get(f.ts.URL + "/mylib")
	require.NoError(t, err)
	defer resp.Body.Close()

	// The canonical redirect keeps relative links inside the index valid.
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/mylib/", resp.Header.Get("Location"))
}

func TestStaleContentServedAfterFailedBuild(t *testing.T) {
	f := newFixture(t, stubRunner{fail: true})
	require.NoError(t, os.WriteFile(filepath.Join(f.docDir, "old.html"),
		[]byte(`<html><body>old but servable</body></html>`), 0o644))

	f.buildOnce(t)
	require.Equal(t, build.StateFailed, f.orchestrator.Snapshot().State)

	resp, err := f.ts.Client().Get(f.ts.URL + "/old.html")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), "old but servable")
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, stubRunner{})
	f.buildOnce(t)

	resp, err := f.ts.Client().Get(f.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "succeeded", health["build"])
	assert.Equal(t, float64(1), health["generation"])
}

func TestBuildStatusReportsFailure(t *testing.T) {
	f := newFixture(t, stubRunner{fail: true})
	f.buildOnce(t)

	resp, err := f.ts.Client().Get(f.ts.URL + "/api/build/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "failed", status["state"])
	assert.Equal(t, "exit", status["failure_class"])
	assert.Contains(t, status["output"], "missing docs")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, stubRunner{})
	f.buildOnce(t)

	resp, err := f.ts.Client().Get(f.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body := readAll(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "docserve_build_outcomes_total")
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	f := newFixture(t, stubRunner{})

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the server a moment to register the session, then complete a
	// build; the update must arrive over the socket.
	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	f.buildOnce(t)

	_, payload, err := conn.Read(ctx)
	require.NoError(t, err)

	var update hub.Update
	require.NoError(t, json.Unmarshal(payload, &update))
	assert.Equal(t, uint64(1), update.Generation)
	assert.Equal(t, "succeeded", update.State)
}

func TestWebSocketCatchUpOnConnect(t *testing.T) {
	f := newFixture(t, stubRunner{})
	f.buildOnce(t)

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Connecting after the build still yields the current generation.
	_, payload, err := conn.Read(ctx)
	require.NoError(t, err)

	var update hub.Update
	require.NoError(t, json.Unmarshal(payload, &update))
	assert.Equal(t, uint64(1), update.Generation)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
