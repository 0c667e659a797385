package workflow

import (
	"context"
	"log/slog"

	"reelmill/internal/logging"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

// jobLogger tees the job's records into a per-job log file under the
// project's log directory. The returned func closes the file.
func (m *Manager) jobLogger(base *slog.Logger, projectID string, stage project.Stage, jobID string) (*slog.Logger, func()) {
	path := m.workspaces.Project(projectID).JobLogPath(stage, jobID)
	fileLogger, err := logging.TeeToFile(base, path)
	if err != nil {
		base.Warn("job log unavailable", logging.Error(err), logging.String("log_path", path))
		return base.With(logging.String(logging.FieldStage, string(stage))), func() {}
	}
	logger := fileLogger.Logger.With(logging.String(logging.FieldStage, string(stage)))
	return logger, func() {
		if err := fileLogger.Close(); err != nil {
			base.Debug("close job log", logging.Error(err))
		}
	}
}

func withJobContext(ctx context.Context, job project.Job, requestID string) context.Context {
	ctx = services.WithProjectID(ctx, job.ProjectID)
	ctx = services.WithJobID(ctx, job.ID)
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
