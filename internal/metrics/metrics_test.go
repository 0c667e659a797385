package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()
	c.Claim(ClaimWon)
	c.Claim(ClaimLost)
	c.Claim(ClaimLost)
	c.JobStarted()
	c.JobStarted()
	c.JobFinished("audio", OutcomeDone, 3*time.Second)
	c.LanguageDisabled("metadata")
	c.PollError()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.claims.WithLabelValues(ClaimWon)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.claims.WithLabelValues(ClaimLost)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobs.WithLabelValues("audio", OutcomeDone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.languagesDisabled.WithLabelValues("metadata")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pollErrors))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Claim(ClaimWon)
		c.JobStarted()
		c.JobFinished("script", OutcomeFailed, time.Second)
		c.LanguageDisabled("audio")
		c.PollError()
	})
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.JobStarted()
	c.JobFinished("video_main", OutcomeDone, time.Minute)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `reelmill_jobs_total{outcome="done",phase="video_main"} 1`), body)
	assert.Contains(t, body, "reelmill_phase_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}
