package phases

import (
	"context"
	"fmt"
	"log/slog"

	"reelmill/internal/logging"
	"reelmill/internal/media"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

// videoMainPhase composes the final video of each language and completes
// the project. The Done extra always lists the failed languages, possibly
// none, with the log directory of the step that disabled each one.
type videoMainPhase struct{ *engine }

func (p *videoMainPhase) Stage() project.Stage { return project.StageVideoMain }

func (p *videoMainPhase) Execute(ctx context.Context, run *Run) (Result, error) {
	err := p.fanOut(ctx, run, project.StageVideoMain, run.Tracker.Remaining(project.StageVideoMain), func(ctx context.Context, lang string, logger *slog.Logger) error {
		return p.language(ctx, run, lang, logger)
	})
	if err != nil {
		return Result{}, err
	}
	return p.finish(run, project.StageVideoMain, func(done, failed []string) project.Extra {
		extra := &project.DoneExtra{
			FailedLanguages: failed,
			FinalURLs:       make(map[string]string, len(done)),
		}
		for _, lang := range done {
			row, _ := run.Tracker.Get(lang)
			extra.FinalURLs[lang] = row.Artifacts.FinalVideoURL
		}
		for _, lang := range failed {
			row, _ := run.Tracker.Get(lang)
			if row.FailedStep == "" {
				continue
			}
			if dir, err := run.Workspace.LogDir(lang, row.FailedStep); err == nil {
				if extra.VideoLogs == nil {
					extra.VideoLogs = make(map[string]string)
				}
				extra.VideoLogs[lang] = dir
			}
		}
		return extra
	})
}

func (p *videoMainPhase) language(ctx context.Context, run *Run, lang string, logger *slog.Logger) error {
	row, _ := run.Tracker.Get(lang)
	art := row.Artifacts
	if len(art.PartURLs) == 0 {
		return missing(lang, "video parts")
	}
	voiceover := art.VoiceoverURL
	if voiceover == "" && len(art.AudioCandidates) > 0 {
		voiceover = art.AudioCandidates[0]
	}
	if voiceover == "" {
		return missing(lang, "voiceover")
	}
	if art.CaptionsURL == "" {
		return missing(lang, "captions")
	}

	parts := make([]string, 0, len(art.PartURLs))
	for i, url := range art.PartURLs {
		local, err := p.fetch(ctx, run, lang, project.StageVideoMain, url, indexedName("part", i, urlExt(url, ".mp4")))
		if err != nil {
			return err
		}
		parts = append(parts, local)
	}
	audio, err := p.fetch(ctx, run, lang, project.StageVideoMain, voiceover, "voiceover"+urlExt(voiceover, ".wav"))
	if err != nil {
		return err
	}
	subs, err := p.fetch(ctx, run, lang, project.StageVideoMain, art.CaptionsURL, "captions.ass")
	if err != nil {
		return err
	}
	workDir, err := run.Workspace.StageDir(lang, project.StageVideoMain)
	if err != nil {
		return fmt.Errorf("%w: %w", errContract, err)
	}
	out, err := run.Workspace.Path(lang, project.StageVideoMain, "final.mp4")
	if err != nil {
		return fmt.Errorf("%w: %w", errContract, err)
	}
	runner, err := p.runner(run, lang, project.StageVideoMain)
	if err != nil {
		return err
	}
	video, err := p.deps.Renderer.RenderMain(ctx, runner, media.MainRequest{
		Parts:     parts,
		Voiceover: audio,
		Captions:  subs,
		WorkDir:   workDir,
		Output:    out,
	})
	if err != nil {
		return err
	}
	if p.deps.Prober != nil {
		seconds, err := p.deps.Prober.Duration(ctx, video)
		if err != nil {
			return err
		}
		if seconds <= 0 {
			return services.Wrap(services.ErrExternalTool, "video_main", "probe", "final video has no duration", nil)
		}
		logger.Debug("final video probed", logging.Float64("duration_seconds", seconds))
	}
	asset, err := p.uploadAsset(ctx, run, lang, project.StageVideoMain, project.AssetVideo, video, true)
	if err != nil {
		return err
	}
	logger.Info("final video published",
		logging.String(logging.FieldEventType, "video_main_done"),
		logging.String("url", asset.URL))
	return p.update(ctx, run, lang, func(row *project.LanguageProgress) {
		row.Artifacts.FinalVideoID = asset.ID
		row.Artifacts.FinalVideoURL = asset.URL
		row.FinalVideoDone = true
	})
}
