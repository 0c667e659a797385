package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"reelmill/internal/logging"
	"reelmill/internal/metrics"
	"reelmill/internal/notifications"
	"reelmill/internal/phases"
	"reelmill/internal/project"
)

// finishProject cleans the workspace and announces a finished project.
func (m *Manager) finishProject(ctx context.Context, logger *slog.Logger, projectID string, extra project.Extra) {
	if err := m.workspaces.Cleanup(projectID); err != nil {
		logging.WarnWithContext(logger, "workspace cleanup failed", "workspace_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the project workspace manually"),
			logging.String(logging.FieldImpact, "intermediate files remain on disk"),
		)
	}
	payload := notifications.Payload{"projectId": projectID}
	if done, ok := doneExtra(extra); ok {
		languages := make([]string, 0, len(done.FinalURLs))
		for lang := range done.FinalURLs {
			languages = append(languages, lang)
		}
		sort.Strings(languages)
		payload["languages"] = languages
		payload["failedLanguages"] = done.FailedLanguages
	}
	m.publish(ctx, logger, notifications.EventProjectDone, payload)
}

func (m *Manager) notifyProjectError(ctx context.Context, projectID string, stage project.Stage, message string) {
	m.publish(ctx, m.logger, notifications.EventProjectError, notifications.Payload{
		"projectId": projectID,
		"stage":     string(stage),
		"error":     message,
	})
}

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send notification")
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func doneExtra(extra project.Extra) (project.DoneExtra, bool) {
	switch v := extra.(type) {
	case project.DoneExtra:
		return v, true
	case *project.DoneExtra:
		if v != nil {
			return *v, true
		}
	}
	return project.DoneExtra{}, false
}

// observer forwards language disables from the executors to metrics and
// notifications.
type observer struct {
	notifier notifications.Service
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewObserver returns the phases.Observer the daemon hands its executors.
func NewObserver(notifier notifications.Service, collector *metrics.Collector, logger *slog.Logger) phases.Observer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &observer{notifier: notifier, metrics: collector, logger: logger}
}

func (o *observer) LanguageDisabled(ctx context.Context, projectID, lang string, stage project.Stage, reason string) {
	o.metrics.LanguageDisabled(string(stage))
	if o.notifier == nil {
		return
	}
	err := o.notifier.Publish(ctx, notifications.EventLanguageDisabled, notifications.Payload{
		"projectId": projectID,
		"language":  lang,
		"stage":     string(stage),
		"reason":    reason,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Debug("language disabled notification failed", logging.Error(err))
	}
}
