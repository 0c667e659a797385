package phases

import (
	"context"
	"log/slog"

	"reelmill/internal/logging"
	"reelmill/internal/project"
)

// metadataPhase writes the publishing title, description, and hashtags.
type metadataPhase struct{ *engine }

func (p *metadataPhase) Stage() project.Stage { return project.StageMetadata }

func (p *metadataPhase) Execute(ctx context.Context, run *Run) (Result, error) {
	err := p.fanOut(ctx, run, project.StageMetadata, run.Tracker.Remaining(project.StageMetadata), func(ctx context.Context, lang string, logger *slog.Logger) error {
		text, err := p.script(ctx, run, lang)
		if err != nil {
			return err
		}
		meta, err := p.deps.Writer.Metadata(ctx, text, lang)
		if err != nil {
			return err
		}
		logger.Info("metadata generated",
			logging.String(logging.FieldEventType, "metadata_done"),
			logging.String("title", meta.Title),
			logging.Int("hashtags", len(meta.Hashtags)))
		return p.update(ctx, run, lang, func(row *project.LanguageProgress) {
			row.Metadata = &meta
			row.MetadataDone = true
		})
	})
	if err != nil {
		return Result{}, err
	}
	return p.finish(run, project.StageMetadata, func(done, failed []string) project.Extra {
		return &project.MetadataExtra{MetadataLanguages: done, FailedLanguages: failed}
	})
}
