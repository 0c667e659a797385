package phases

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"reelmill/internal/logging"
	"reelmill/internal/media"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

// videoPartsPhase renders one moving clip per scene image, timed against
// the transcript so each clip covers its share of the narration.
type videoPartsPhase struct{ *engine }

func (p *videoPartsPhase) Stage() project.Stage { return project.StageVideoParts }

func (p *videoPartsPhase) Execute(ctx context.Context, run *Run) (Result, error) {
	err := p.fanOut(ctx, run, project.StageVideoParts, run.Tracker.Remaining(project.StageVideoParts), func(ctx context.Context, lang string, logger *slog.Logger) error {
		return p.language(ctx, run, lang, logger)
	})
	if err != nil {
		return Result{}, err
	}
	return p.finish(run, project.StageVideoParts, func(done, failed []string) project.Extra {
		return &project.VideoPartsExtra{PartLanguages: done, FailedLanguages: failed}
	})
}

func (p *videoPartsPhase) language(ctx context.Context, run *Run, lang string, logger *slog.Logger) error {
	row, _ := run.Tracker.Get(lang)
	images := row.Artifacts.ImageURLs
	if len(images) == 0 {
		return missing(lang, "scene images")
	}
	if row.Artifacts.TranscriptURL == "" {
		return missing(lang, "transcript")
	}
	text, err := p.script(ctx, run, lang)
	if err != nil {
		return err
	}
	scenes := SplitScenes(text, len(images))
	if len(scenes) != len(images) {
		return fmt.Errorf("%w: %s has %d images for %d scenes", errContract, lang, len(images), len(scenes))
	}
	local, err := p.fetch(ctx, run, lang, project.StageVideoParts, row.Artifacts.TranscriptURL, "transcript.json")
	if err != nil {
		return err
	}
	transcript, err := media.LoadTranscript(local)
	if err != nil {
		return services.Wrap(services.ErrValidation, "video_parts", "load transcript", "", err)
	}
	timed := TimeScenes(scenes, transcript.Words(), transcript.Duration())

	runner, err := p.runner(run, lang, project.StageVideoParts)
	if err != nil {
		return err
	}
	parts := slices.Clone(row.Artifacts.PartURLs)
	if len(parts) > len(timed) {
		parts = parts[:len(timed)]
	}
	for i := len(parts); i < len(timed); i++ {
		image, err := p.fetch(ctx, run, lang, project.StageVideoParts, images[i], indexedName("scene", i, urlExt(images[i], ".png")))
		if err != nil {
			return err
		}
		out, err := run.Workspace.Path(lang, project.StageVideoParts, indexedName("part", i, ".mp4"))
		if err != nil {
			return fmt.Errorf("%w: %w", errContract, err)
		}
		clip, err := p.deps.Renderer.RenderPart(ctx, runner, media.PartRequest{
			Image:    image,
			Duration: timed[i].Duration,
			Width:    p.deps.Settings.Width,
			Height:   p.deps.Settings.Height,
			FPS:      p.deps.Settings.FPS,
			Scene:    i + 1,
			Output:   out,
		})
		if err != nil {
			return err
		}
		asset, err := p.uploadAsset(ctx, run, lang, project.StageVideoParts, project.AssetVideo, clip, false)
		if err != nil {
			return err
		}
		parts = append(parts, asset.URL)
		saved := slices.Clone(parts)
		if err := p.update(ctx, run, lang, func(row *project.LanguageProgress) {
			row.Artifacts.PartURLs = saved
		}); err != nil {
			return err
		}
		logger.Debug("video part rendered",
			logging.Int("scene", i+1),
			logging.Float64("duration_seconds", timed[i].Duration))
	}
	logger.Info("video parts rendered",
		logging.String(logging.FieldEventType, "video_parts_done"),
		logging.Int("parts", len(parts)))
	return p.update(ctx, run, lang, func(row *project.LanguageProgress) {
		row.Artifacts.PartURLs = slices.Clone(parts)
		row.VideoPartsDone = true
	})
}
