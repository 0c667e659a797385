package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reelmill/internal/config"
	"reelmill/internal/deps"
	"reelmill/internal/logging"
	"reelmill/internal/metrics"
	"reelmill/internal/workflow"
)

// Workflow is the polling engine the daemon drives.
type Workflow interface {
	Start(ctx context.Context) error
	Stop()
	Status() workflow.StatusSummary
}

// Daemon coordinates the background workflow and enforces single-instance
// execution per log directory.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	workflow     Workflow
	metrics      *metrics.Collector
	dependencies []deps.Status
	started      time.Time

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	DaemonID     string                 `json:"daemonId"`
	Uptime       string                 `json:"uptime,omitempty"`
	LockFilePath string                 `json:"lockFilePath"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	Dependencies []DependencyStatus     `json:"dependencies,omitempty"`
}

// DependencyStatus reports one external binary.
type DependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// Option configures optional daemon collaborators.
type Option func(*Daemon)

// WithMetrics serves collector on the status listener.
func WithMetrics(collector *metrics.Collector) Option {
	return func(d *Daemon) {
		d.metrics = collector
	}
}

// WithDependencies records the dependency snapshot taken at startup.
func WithDependencies(statuses []deps.Status) Option {
	return func(d *Daemon) {
		d.dependencies = statuses
	}
}

// New constructs a daemon around wf.
func New(cfg *config.Config, logger *slog.Logger, wf Workflow, opts ...Option) (*Daemon, error) {
	if cfg == nil || wf == nil {
		return nil, errors.New("daemon requires config and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "reelmilld.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg.Metrics.Bind, d, d.logger)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager, and opens
// the status listener when one is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another reelmill daemon holds %s", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.started = time.Now()
	d.running.Store(true)
	d.logger.Info("reelmill daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String(logging.FieldDaemonID, d.cfg.Daemon.ID),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing, waits for in-flight jobs to unwind,
// and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.workflow.Stop()
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
			logging.String(logging.FieldImpact, "the next start may report another instance"))
	}
	d.running.Store(false)
	d.logger.Info("reelmill daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Addr returns the status listener address, or "" when none is open.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DaemonID:     d.cfg.Daemon.ID,
		LockFilePath: d.lockPath,
		Workflow:     d.workflow.Status(),
	}
	if status.Running && !d.started.IsZero() {
		status.Uptime = time.Since(d.started).Round(time.Second).String()
	}
	for _, dep := range d.dependencies {
		status.Dependencies = append(status.Dependencies, DependencyStatus{
			Name:      dep.Name,
			Command:   dep.Command,
			Optional:  dep.Optional,
			Available: dep.Available,
			Detail:    dep.Detail,
		})
	}
	return status
}
