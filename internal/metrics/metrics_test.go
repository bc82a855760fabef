package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorderBuildFinished(t *testing.T) {
	r := NewRecorder()
	r.BuildFinished("succeeded", 250*time.Millisecond, 7)
	r.BuildFinished("failed", 100*time.Millisecond, 8)

	body := scrape(t, r)
	assert.Contains(t, body, `docserve_build_outcomes_total{outcome="succeeded"} 1`)
	assert.Contains(t, body, `docserve_build_outcomes_total{outcome="failed"} 1`)
	assert.Contains(t, body, `docserve_build_generation 8`)
}

func TestRecorderSessions(t *testing.T) {
	r := NewRecorder()
	r.SessionOpened()
	r.SessionOpened()
	r.SessionClosed()

	assert.Contains(t, scrape(t, r), "docserve_viewer_sessions 1")
}

func TestRecorderCoalesced(t *testing.T) {
	r := NewRecorder()
	r.RebuildCoalesced()
	r.RebuildCoalesced()

	assert.Contains(t, scrape(t, r), "docserve_rebuilds_coalesced_total 2")
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.BuildFinished("succeeded", time.Second, 1)
		r.RebuildCoalesced()
		r.SessionOpened()
		r.SessionClosed()
	})
}
