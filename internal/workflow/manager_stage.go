package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reelmill/internal/logging"
	"reelmill/internal/metrics"
	"reelmill/internal/ownership"
	"reelmill/internal/phases"
	"reelmill/internal/progress"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

// processJob claims job and, when this daemon wins, runs the phase matching
// the project's current status.
func (m *Manager) processJob(ctx context.Context, job project.Job) {
	jobCtx := withJobContext(ctx, job, uuid.NewString())
	logger := logging.WithContext(jobCtx, m.logger)

	p, outcome, err := m.claimer.Claim(jobCtx, job)
	switch {
	case outcome == ownership.Lost && err != nil:
		m.metrics.Claim(metrics.ClaimError)
		m.setLastError(err)
		logging.WarnWithContext(logger, "claim failed", "claim_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check control plane connectivity"),
			logging.String(logging.FieldImpact, "job stays queued for the next cycle"),
		)
		return
	case outcome == ownership.Lost:
		m.metrics.Claim(metrics.ClaimLost)
		return
	case outcome == ownership.Foreign:
		m.metrics.Claim(metrics.ClaimForeign)
		if err != nil {
			// Claimed on paper but owned elsewhere: release the job, leave the project alone.
			m.markJob(jobCtx, logger, job, project.JobFailed, services.Details(err).Message)
		}
		return
	}
	m.metrics.Claim(metrics.ClaimWon)
	if err != nil {
		m.setLastError(err)
		m.markJob(jobCtx, logger, job, project.JobFailed, "claimed project unavailable: "+services.Details(err).Message)
		return
	}
	logger.Info("job claimed",
		logging.String("project_status", string(p.Status)),
		logging.String(logging.FieldEventType, "job_claimed"),
	)
	m.runClaimed(jobCtx, logger, job, p)
}

func (m *Manager) runClaimed(ctx context.Context, logger *slog.Logger, job project.Job, p project.Project) {
	if err := m.plane.UpdateJobStatus(ctx, job.ID, project.JobRunning, ""); err != nil {
		m.setLastError(err)
		m.markJob(ctx, logger, job, project.JobFailed, "could not mark job running: "+services.Details(err).Message)
		return
	}
	if p.Status == project.StatusNew {
		if err := m.plane.UpdateProjectStatus(ctx, p.ID, project.StatusNew, project.StatusProcessScript, "script generation started", nil); err != nil {
			m.setLastError(err)
			m.markJob(ctx, logger, job, project.JobFailed, "could not start project: "+services.Details(err).Message)
			return
		}
		p.Status = project.StatusProcessScript
	}

	executor, ok := m.executors.For(p.Status)
	if !ok {
		logger.Info("job skipped; project has no runnable phase",
			logging.String("project_status", string(p.Status)),
			logging.String(logging.FieldEventType, "job_skipped"),
		)
		m.markJob(ctx, logger, job, project.JobDone, fmt.Sprintf("skipped: project is %s", p.Status))
		return
	}
	stage := executor.Stage()
	if stage != job.Type {
		logger.Debug("job type differs from project status; running status phase",
			logging.String("job_type", string(job.Type)),
			logging.String(logging.FieldStage, string(stage)),
		)
	}
	ctx = services.WithStage(ctx, string(stage))
	m.setActiveStage(p.ID, stage)
	m.setLastJob(job)

	jobLog, closeLog := m.jobLogger(logger, p.ID, stage, job.ID)
	defer closeLog()

	started := time.Now()
	m.metrics.JobStarted()
	jobLog.Info("phase started",
		logging.String("project_status", string(p.Status)),
		logging.String(logging.FieldEventType, "phase_start"),
	)
	run, res, err := m.execute(ctx, jobLog, job, p, executor)
	elapsed := time.Since(started)
	if err != nil {
		m.handleFailure(ctx, jobLog, job, p, stage, run, err, elapsed)
		return
	}
	m.handleSuccess(ctx, jobLog, job, p, stage, res, elapsed)
}

// execute loads the run state and invokes the executor under the job
// timeout. The returned Run may be nil when loading failed.
func (m *Manager) execute(ctx context.Context, logger *slog.Logger, job project.Job, p project.Project, executor phases.Executor) (*phases.Run, phases.Result, error) {
	runCtx := ctx
	if m.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.jobTimeout)
		defer cancel()
	}
	stage := string(executor.Stage())

	snapshot, err := m.plane.CreationSnapshot(runCtx, p.ID)
	if err != nil {
		return nil, phases.Result{}, m.timedOut(ctx, runCtx, stage, fmt.Errorf("load creation snapshot: %w", err))
	}
	if err := snapshot.Validate(); err != nil {
		return nil, phases.Result{}, err
	}
	languages := snapshot.Languages
	if len(languages) == 0 {
		languages = p.Languages
	}
	tracker, err := progress.Load(runCtx, m.plane, p.ID, languages)
	if err != nil {
		return nil, phases.Result{}, m.timedOut(ctx, runCtx, stage, err)
	}
	run := &phases.Run{
		Project:   p,
		Snapshot:  snapshot,
		Tracker:   tracker,
		Job:       job,
		Workspace: m.workspaces.Project(p.ID),
		Logger:    logger,
	}
	res, err := executor.Execute(runCtx, run)
	if err != nil {
		return run, res, m.timedOut(ctx, runCtx, stage, err)
	}
	return run, res, nil
}

// timedOut tags err as a timeout when the job deadline, not shutdown, ended
// the run.
func (m *Manager) timedOut(parent, runCtx context.Context, stage string, err error) error {
	if parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stage, "execute",
			fmt.Sprintf("job exceeded timeout of %s", m.jobTimeout), err)
	}
	return err
}

func (m *Manager) handleSuccess(ctx context.Context, logger *slog.Logger, job project.Job, p project.Project, stage project.Stage, res phases.Result, elapsed time.Duration) {
	current, err := m.plane.Project(ctx, p.ID)
	if err == nil && (current.Status != p.Status || !current.HeldBy(m.claimer.DaemonID())) {
		m.supersede(ctx, logger, job, stage, current, elapsed)
		return
	}
	if err := m.plane.UpdateProjectStatus(ctx, p.ID, p.Status, res.Next, res.Message, res.Extra); err != nil {
		if errors.Is(err, services.ErrConflict) {
			if current, readErr := m.plane.Project(ctx, p.ID); readErr == nil {
				m.supersede(ctx, logger, job, stage, current, elapsed)
				return
			}
		}
		// Progress is already persisted; the re-created job resumes without redoing work.
		m.handleFailure(ctx, logger, job, p, stage, nil, fmt.Errorf("advance project status: %w", err), elapsed)
		return
	}
	m.markJob(ctx, logger, job, project.JobDone, res.Message)
	m.recordOutcome(metrics.OutcomeDone)
	m.metrics.JobFinished(string(stage), metrics.OutcomeDone, elapsed)
	logger.Info("phase completed",
		logging.String("next_status", string(res.Next)),
		logging.String("message", res.Message),
		logging.Duration("stage_duration", elapsed),
		logging.String(logging.FieldEventType, "phase_complete"),
	)
	if res.Next == project.StatusDone {
		m.finishProject(ctx, logger, p.ID, res.Extra)
	}
}

// supersede drops a phase result because the project was rolled back,
// cancelled, or handed to another daemon while the phase ran.
func (m *Manager) supersede(ctx context.Context, logger *slog.Logger, job project.Job, stage project.Stage, current project.Project, elapsed time.Duration) {
	m.recordOutcome(metrics.OutcomeSuperseded)
	m.metrics.JobFinished(string(stage), metrics.OutcomeSuperseded, elapsed)
	logging.WarnWithContext(logger, "phase result discarded; project moved", "phase_superseded",
		logging.String("project_status", string(current.Status)),
		logging.String("owner", current.CurrentDaemonID),
		logging.String(logging.FieldErrorHint, "none; the project's current status drives the next job"),
		logging.String(logging.FieldImpact, "project status left unchanged"),
		logging.Duration("stage_duration", elapsed),
	)
	m.markJob(ctx, logger, job, project.JobFailed, fmt.Sprintf("superseded: project is %s", current.Status))
}

// markJob writes the job's terminal status. A cancelled ctx still gets a
// short detached write so the job does not linger as running.
func (m *Manager) markJob(ctx context.Context, logger *slog.Logger, job project.Job, status project.JobStatus, message string) {
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := m.plane.UpdateJobStatus(writeCtx, job.ID, status, message); err != nil {
		logging.WarnWithContext(logger, "job status update failed", "job_status_failed",
			logging.String("job_status", string(status)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check control plane connectivity"),
			logging.String(logging.FieldImpact, "job may appear running until the control plane expires it"),
		)
	}
}
