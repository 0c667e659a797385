// Package metrics exposes daemon counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reelmill"

// Claim results.
const (
	ClaimWon     = "won"
	ClaimLost    = "lost"
	ClaimForeign = "foreign"
	ClaimError   = "error"
)

// Job outcomes.
const (
	OutcomeDone      = "done"
	OutcomeFailed    = "failed"
	OutcomeTransient = "transient"
	OutcomeTimeout   = "timeout"
	// OutcomeSuperseded marks a result dropped because the project moved
	// while the phase ran.
	OutcomeSuperseded = "superseded"
)

// Collector records daemon activity. A nil *Collector is valid and records
// nothing.
type Collector struct {
	registry *prometheus.Registry

	claims            *prometheus.CounterVec
	jobs              *prometheus.CounterVec
	languagesDisabled *prometheus.CounterVec
	pollErrors        prometheus.Counter
	phaseDuration     *prometheus.HistogramVec
	jobsInFlight      prometheus.Gauge
}

// New builds a collector with its own registry, including the Go runtime
// and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Job claim attempts by result.",
		}, []string{"result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Executed jobs by phase and outcome.",
		}, []string{"phase", "outcome"}),
		languagesDisabled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "languages_disabled_total",
			Help:      "Languages disabled after a per-language failure, by stage.",
		}, []string{"stage"}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Poll cycles that failed to reach the control plane.",
		}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of phase executions.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}, []string{"phase"}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently executing.",
		}),
	}
	c.registry.MustRegister(
		c.claims,
		c.jobs,
		c.languagesDisabled,
		c.pollErrors,
		c.phaseDuration,
		c.jobsInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Claim counts a claim attempt.
func (c *Collector) Claim(result string) {
	if c == nil {
		return
	}
	c.claims.WithLabelValues(result).Inc()
}

// JobStarted marks a job in flight.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.jobsInFlight.Inc()
}

// JobFinished records the outcome and duration of a job.
func (c *Collector) JobFinished(phase, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.jobsInFlight.Dec()
	c.jobs.WithLabelValues(phase, outcome).Inc()
	c.phaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// LanguageDisabled counts a disabled language.
func (c *Collector) LanguageDisabled(stage string) {
	if c == nil {
		return
	}
	c.languagesDisabled.WithLabelValues(stage).Inc()
}

// PollError counts a failed poll cycle.
func (c *Collector) PollError() {
	if c == nil {
		return
	}
	c.pollErrors.Inc()
}
