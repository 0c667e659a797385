package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reelmill/internal/logging"
	"reelmill/internal/metrics"
	"reelmill/internal/phases"
	"reelmill/internal/project"
	"reelmill/internal/services"
	"reelmill/internal/workspace"
)

const maxReasonLength = 1000

func (m *Manager) handleFailure(ctx context.Context, logger *slog.Logger, job project.Job, p project.Project, stage project.Stage, run *phases.Run, stageErr error, elapsed time.Duration) {
	m.setLastError(stageErr)
	message := classifyFailure(stage, stageErr)

	switch {
	case ctx.Err() != nil:
		m.recordOutcome(metrics.OutcomeTransient)
		m.metrics.JobFinished(string(stage), metrics.OutcomeTransient, elapsed)
		logger.Info("phase interrupted by shutdown",
			logging.String(logging.FieldEventType, "phase_interrupted"),
			logging.Duration("stage_duration", elapsed),
		)
		m.markJob(ctx, logger, job, project.JobFailed, "interrupted by daemon shutdown")
		return
	case isTransient(stageErr):
		m.recordOutcome(metrics.OutcomeTransient)
		m.metrics.JobFinished(string(stage), metrics.OutcomeTransient, elapsed)
		logging.WarnWithContext(logger, "phase failed transiently", "phase_transient_failure",
			logging.Error(stageErr),
			logging.String(logging.FieldErrorHint, "the next poll cycle retries this stage"),
			logging.String(logging.FieldImpact, "project status unchanged"),
			logging.Duration("stage_duration", elapsed),
		)
		m.markJob(ctx, logger, job, project.JobFailed, message)
		return
	}

	outcome := metrics.OutcomeFailed
	if errors.Is(stageErr, services.ErrTimeout) {
		outcome = metrics.OutcomeTimeout
	}
	m.recordOutcome(outcome)
	m.metrics.JobFinished(string(stage), outcome, elapsed)

	extra := project.ErrorExtra{
		Stage:   stage,
		Kind:    services.Details(stageErr).Kind,
		Reason:  message,
		LogPath: workspace.LogPathOf(stageErr),
	}
	if extra.LogPath == "" {
		extra.LogPath = m.workspaces.Project(p.ID).JobLogPath(stage, job.ID)
	}
	if run != nil && run.Tracker != nil {
		extra.FailedLanguages = run.Tracker.FailedLanguages()
	}

	attrs := []logging.Attr{
		logging.Alert("phase_failure"),
		logging.String("error_message", message),
		logging.String("log_path", extra.LogPath),
		logging.Duration("stage_duration", elapsed),
		logging.String(logging.FieldImpact, "project moved to Error"),
	}
	if len(extra.FailedLanguages) > 0 {
		attrs = append(attrs, logging.String("failed_languages", strings.Join(extra.FailedLanguages, ",")))
	}
	attrs = append(attrs, logging.ErrorAttrs(stageErr)...)
	logging.ErrorWithContext(logger, "phase failed", "phase_failure", attrs...)

	if err := m.plane.UpdateProjectStatus(ctx, p.ID, p.Status, project.StatusError, message, extra); err != nil {
		logging.ErrorWithContext(logger, "could not record project error", "project_error_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check control plane connectivity"),
			logging.String(logging.FieldImpact, "project keeps its status; the stage reruns next cycle"),
		)
	}
	m.markJob(ctx, logger, job, project.JobFailed, message)
	m.notifyProjectError(ctx, p.ID, stage, message)
}

// isTransient reports failures retried by the next cycle without touching
// the project. Timeouts and the loss of every language are never retried.
func isTransient(err error) bool {
	if errors.Is(err, services.ErrTimeout) || errors.Is(err, phases.ErrAllLanguagesFailed) {
		return false
	}
	return services.IsTransient(err)
}

func classifyFailure(stage project.Stage, stageErr error) string {
	if stageErr == nil {
		return fmt.Sprintf("%s failed without error detail", stage)
	}
	message := strings.TrimSpace(services.Details(stageErr).Message)
	if message == "" {
		message = fmt.Sprintf("%s failed", stage)
	}
	return services.TruncateReason(message, maxReasonLength)
}
