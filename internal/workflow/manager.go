package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"reelmill/internal/config"
	"reelmill/internal/logging"
	"reelmill/internal/metrics"
	"reelmill/internal/notifications"
	"reelmill/internal/ownership"
	"reelmill/internal/phases"
	"reelmill/internal/project"
	"reelmill/internal/workspace"
)

// Plane is the control-plane surface the manager drives.
type Plane interface {
	phases.Plane
	ownership.API
	Health(ctx context.Context) error
	QueuedJobs(ctx context.Context, limit int) ([]project.Job, error)
	CreateJob(ctx context.Context, projectID string, stage project.Stage, payload project.JobPayload) (project.Job, error)
	JobExists(ctx context.Context, projectID string, stage project.Stage) (bool, error)
	UpdateJobStatus(ctx context.Context, jobID string, status project.JobStatus, message string) error
	EligibleProjects(ctx context.Context, limit int) ([]project.Project, error)
	CreationSnapshot(ctx context.Context, projectID string) (project.CreationSnapshot, error)
	UpdateProjectStatus(ctx context.Context, projectID string, from, status project.Status, message string, extra project.Extra) error
}

// Manager coordinates polling, claiming, and phase execution.
type Manager struct {
	cfg        *config.Config
	plane      Plane
	claimer    *ownership.Claimer
	executors  phases.Registry
	workspaces *workspace.Manager
	notifier   notifications.Service
	metrics    *metrics.Collector
	logger     *slog.Logger

	pollInterval   time.Duration
	retryInterval  time.Duration
	jobTimeout     time.Duration
	maxConcurrency int
	eligibleLimit  int

	jobs sync.WaitGroup

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	loopDone  chan struct{}
	active    map[string]activeJob
	lastErr   error
	lastJob   *project.Job
	lastCycle time.Time
	outcomes  map[string]int
}

type activeJob struct {
	job     project.Job
	stage   project.Stage
	started time.Time
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithNotifier overrides the notifier built from the configuration.
func WithNotifier(notifier notifications.Service) Option {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithMetrics records activity on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = collector
	}
}

// WithWorkspaces overrides the workspace manager built from the configuration.
func WithWorkspaces(workspaces *workspace.Manager) Option {
	return func(m *Manager) {
		if workspaces != nil {
			m.workspaces = workspaces
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, plane Plane, executors phases.Registry, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow").With(logging.String(logging.FieldDaemonID, cfg.Daemon.ID))
	m := &Manager{
		cfg:            cfg,
		plane:          plane,
		claimer:        ownership.New(plane, cfg.Daemon.ID, logger),
		executors:      executors,
		workspaces:     workspace.New(cfg.Paths.WorkspaceDir, cfg.Pipeline.KeepWorkspace),
		notifier:       notifications.NewService(cfg),
		logger:         logger,
		pollInterval:   cfg.PollInterval(),
		retryInterval:  cfg.ErrorRetryInterval(),
		jobTimeout:     cfg.JobTimeout(),
		maxConcurrency: max(cfg.Daemon.MaxConcurrency, 1),
		eligibleLimit:  max(cfg.Daemon.EligibleLimit, 1),
		active:         make(map[string]activeJob),
		outcomes:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DaemonID returns the identity the manager claims jobs under.
func (m *Manager) DaemonID() string {
	return m.claimer.DaemonID()
}
