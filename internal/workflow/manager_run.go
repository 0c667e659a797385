package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reelmill/internal/logging"
	"reelmill/internal/preflight"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

// Start begins background polling.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.executors) == 0 {
		m.mu.Unlock()
		return errors.New("workflow executors not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.loopDone = done
	m.running = true
	m.mu.Unlock()

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Duration("poll_interval", m.pollInterval),
		logging.Int("max_concurrency", m.maxConcurrency),
		logging.Duration("job_timeout", m.jobTimeout),
	)
	go m.loop(runCtx, done)
	return nil
}

// Stop cancels polling and in-flight jobs and waits for them to unwind.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.loopDone
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done
	m.jobs.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

// RunOnce executes a single poll cycle and waits for the jobs it dispatched.
func (m *Manager) RunOnce(ctx context.Context) error {
	err := m.cycle(ctx)
	m.jobs.Wait()
	return err
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		wait := m.pollInterval
		if err := m.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleCycleError(err)
			wait = m.retryInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (m *Manager) handleCycleError(err error) {
	m.setLastError(err)
	m.metrics.PollError()
	attrs := []logging.Attr{
		logging.String(logging.FieldErrorHint, "check control plane connectivity and credentials"),
		logging.String(logging.FieldImpact, "no jobs claimed this cycle"),
		logging.Duration("retry_in", m.retryInterval),
		logging.Error(err),
	}
	logging.WarnWithContext(m.logger, "poll cycle failed", "poll_failed", attrs...)
}

// cycle runs one pass of the poll loop. Jobs are dispatched onto
// goroutines; cycle returns once they are started.
func (m *Manager) cycle(ctx context.Context) error {
	m.markCycle()
	if err := m.plane.Health(ctx); err != nil {
		return fmt.Errorf("control plane health: %w", err)
	}
	if err := m.ensureJobs(ctx); err != nil {
		return err
	}
	if !m.diskReady() {
		return nil
	}
	free := m.freeSlots()
	if free == 0 {
		return nil
	}
	jobs, err := m.plane.QueuedJobs(ctx, free)
	if err != nil {
		return fmt.Errorf("fetch queued jobs: %w", err)
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !m.reserve(job) {
			continue
		}
		m.jobs.Add(1)
		go func() {
			defer m.jobs.Done()
			defer m.release(job)
			m.processJob(ctx, job)
		}()
	}
	return nil
}

// ensureJobs queues a job for every visible project whose status needs one.
func (m *Manager) ensureJobs(ctx context.Context) error {
	projects, err := m.plane.EligibleProjects(ctx, m.eligibleLimit)
	if err != nil {
		return fmt.Errorf("list eligible projects: %w", err)
	}
	for _, p := range m.claimer.FilterVisible(projects) {
		stage, ok := project.StageFor(p.Status)
		if !ok || m.isActive(p.ID) {
			continue
		}
		exists, err := m.plane.JobExists(ctx, p.ID, stage)
		if err != nil {
			return fmt.Errorf("check %s job for %s: %w", stage, p.ID, err)
		}
		if exists {
			continue
		}
		job, err := m.plane.CreateJob(ctx, p.ID, stage, project.JobPayload{})
		if err != nil {
			if errors.Is(err, services.ErrConflict) {
				m.logger.Debug("job creation rejected; project owned elsewhere",
					logging.String(logging.FieldProjectID, p.ID),
					logging.String(logging.FieldEventType, "job_create_rejected"),
				)
				continue
			}
			return fmt.Errorf("create %s job for %s: %w", stage, p.ID, err)
		}
		m.logger.Info("job queued",
			logging.String(logging.FieldProjectID, p.ID),
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldStage, string(stage)),
			logging.String("project_status", string(p.Status)),
			logging.String(logging.FieldEventType, "job_created"),
		)
	}
	return nil
}

// diskReady reports whether the workspace has room for new work.
func (m *Manager) diskReady() bool {
	minGiB := m.cfg.Daemon.MinFreeDiskGiB
	if minGiB <= 0 {
		return true
	}
	result := preflight.CheckDiskSpace("Workspace disk", m.workspaces.Root(), minGiB)
	if result.Passed {
		return true
	}
	logging.WarnWithContext(m.logger, "workspace disk below minimum; claiming paused", "disk_preflight_failed",
		logging.String("detail", result.Detail),
		logging.String(logging.FieldErrorHint, "free space under the workspace directory or lower daemon.min_free_disk_gib"),
		logging.String(logging.FieldImpact, "queued jobs wait until space is available"),
	)
	return false
}

func (m *Manager) freeSlots() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return max(m.maxConcurrency-len(m.active), 0)
}

// reserve takes a worker slot for job unless the slots are full or the
// project already has a job running.
func (m *Manager) reserve(job project.Job) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.active) >= m.maxConcurrency {
		return false
	}
	if _, busy := m.active[job.ProjectID]; busy {
		return false
	}
	m.active[job.ProjectID] = activeJob{job: job, stage: job.Type, started: time.Now()}
	return true
}

func (m *Manager) release(job project.Job) {
	m.mu.Lock()
	delete(m.active, job.ProjectID)
	m.mu.Unlock()
}

func (m *Manager) setActiveStage(projectID string, stage project.Stage) {
	m.mu.Lock()
	if entry, ok := m.active[projectID]; ok {
		entry.stage = stage
		m.active[projectID] = entry
	}
	m.mu.Unlock()
}

func (m *Manager) isActive(projectID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[projectID]
	return ok
}
