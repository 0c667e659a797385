package phases

import (
	"context"
	"fmt"
	"log/slog"

	"reelmill/internal/captions"
	"reelmill/internal/logging"
	"reelmill/internal/media"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

// captionsPhase turns the transcript into a burned-in subtitle track.
type captionsPhase struct{ *engine }

func (p *captionsPhase) Stage() project.Stage { return project.StageCaptions }

func (p *captionsPhase) Execute(ctx context.Context, run *Run) (Result, error) {
	err := p.fanOut(ctx, run, project.StageCaptions, run.Tracker.Remaining(project.StageCaptions), func(ctx context.Context, lang string, logger *slog.Logger) error {
		return p.language(ctx, run, lang, logger)
	})
	if err != nil {
		return Result{}, err
	}
	return p.finish(run, project.StageCaptions, func(done, failed []string) project.Extra {
		return &project.CaptionsExtra{CaptionLanguages: done, FailedLanguages: failed}
	})
}

func (p *captionsPhase) language(ctx context.Context, run *Run, lang string, logger *slog.Logger) error {
	row, _ := run.Tracker.Get(lang)
	if row.Artifacts.TranscriptURL == "" {
		return missing(lang, "transcript")
	}
	local, err := p.fetch(ctx, run, lang, project.StageCaptions, row.Artifacts.TranscriptURL, "transcript.json")
	if err != nil {
		return err
	}
	transcript, err := media.LoadTranscript(local)
	if err != nil {
		return services.Wrap(services.ErrValidation, "captions", "load transcript", "", err)
	}
	cues := captions.Build(transcript.Words(), p.deps.Settings.Captions)
	if len(cues) == 0 {
		return services.Wrap(services.ErrValidation, "captions", "build", "transcript produced no cues", nil)
	}
	path, err := run.Workspace.Path(lang, project.StageCaptions, "captions.ass")
	if err != nil {
		return fmt.Errorf("%w: %w", errContract, err)
	}
	style := captions.Style{Width: p.deps.Settings.Width, Height: p.deps.Settings.Height}
	if err := captions.WriteASSFile(path, cues, style); err != nil {
		return err
	}
	asset, err := p.uploadAsset(ctx, run, lang, project.StageCaptions, project.AssetCaptions, path, false)
	if err != nil {
		return err
	}
	logger.Info("captions written",
		logging.String(logging.FieldEventType, "captions_done"),
		logging.Int("cues", len(cues)))
	return p.update(ctx, run, lang, func(row *project.LanguageProgress) {
		row.Artifacts.CaptionsURL = asset.URL
		row.CaptionsDone = true
	})
}
