package phases

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"reelmill/internal/logging"
	"reelmill/internal/media"
	"reelmill/internal/project"
)

// imagesPhase illustrates each scene of the script. Uploaded images are
// recorded one by one so a resumed run continues at the first missing scene.
type imagesPhase struct{ *engine }

func (p *imagesPhase) Stage() project.Stage { return project.StageImages }

func (p *imagesPhase) Execute(ctx context.Context, run *Run) (Result, error) {
	count := sceneCount(run, p.deps.Settings)
	err := p.fanOut(ctx, run, project.StageImages, run.Tracker.Remaining(project.StageImages), func(ctx context.Context, lang string, logger *slog.Logger) error {
		return p.language(ctx, run, lang, count, logger)
	})
	if err != nil {
		return Result{}, err
	}
	return p.finish(run, project.StageImages, func(done, failed []string) project.Extra {
		return &project.ImagesExtra{ImageLanguages: done, SceneCount: count, FailedLanguages: failed}
	})
}

func (p *imagesPhase) language(ctx context.Context, run *Run, lang string, count int, logger *slog.Logger) error {
	text, err := p.script(ctx, run, lang)
	if err != nil {
		return err
	}
	scenes := SplitScenes(text, count)
	if len(scenes) == 0 {
		return missing(lang, "script scenes")
	}
	runner, err := p.runner(run, lang, project.StageImages)
	if err != nil {
		return err
	}
	row, _ := run.Tracker.Get(lang)
	urls := slices.Clone(row.Artifacts.ImageURLs)
	if len(urls) > len(scenes) {
		urls = urls[:len(scenes)]
	}
	for i := len(urls); i < len(scenes); i++ {
		out, err := run.Workspace.Path(lang, project.StageImages, indexedName("scene", i, ".png"))
		if err != nil {
			return fmt.Errorf("%w: %w", errContract, err)
		}
		image, err := p.deps.Images.Generate(ctx, runner, media.ImageRequest{
			Prompt:   imagePrompt(run.Snapshot, scenes[i].Text),
			Language: lang,
			Scene:    i + 1,
			Width:    p.deps.Settings.Width,
			Height:   p.deps.Settings.Height,
			Output:   out,
		})
		if err != nil {
			return err
		}
		asset, err := p.uploadAsset(ctx, run, lang, project.StageImages, project.AssetImage, image, false)
		if err != nil {
			return err
		}
		urls = append(urls, asset.URL)
		saved := slices.Clone(urls)
		if err := p.update(ctx, run, lang, func(row *project.LanguageProgress) {
			row.Artifacts.ImageURLs = saved
		}); err != nil {
			return err
		}
		logger.Debug("scene illustrated", logging.Int("scene", i+1), logging.String("url", asset.URL))
	}
	logger.Info("scenes illustrated",
		logging.String(logging.FieldEventType, "images_done"),
		logging.Int("scenes", len(scenes)))
	return p.update(ctx, run, lang, func(row *project.LanguageProgress) {
		row.Artifacts.ImageURLs = slices.Clone(urls)
		row.ImagesDone = true
	})
}

func imagePrompt(snap project.CreationSnapshot, scene string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(scene))
	b.WriteString("\nVertical 9:16 illustration, no text or lettering.")
	if snap.UseGuidance && strings.TrimSpace(snap.StylePrompt) != "" {
		b.WriteString("\nVisual style: ")
		b.WriteString(strings.TrimSpace(snap.StylePrompt))
	}
	return b.String()
}
