package phases

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"reelmill/internal/logging"
	"reelmill/internal/media"
	"reelmill/internal/project"
	"reelmill/internal/voices"
)

// audioPhase renders narration candidates per language. With audio
// auto-approval the first candidate becomes the voiceover; otherwise the
// choice is left to the validation gate.
type audioPhase struct{ *engine }

func (p *audioPhase) Stage() project.Stage { return project.StageAudio }

func (p *audioPhase) Execute(ctx context.Context, run *Run) (Result, error) {
	count := run.Snapshot.AudioCandidates
	if count <= 0 {
		count = max(p.deps.Settings.AudioCandidates, 1)
	}
	err := p.fanOut(ctx, run, project.StageAudio, run.Tracker.Remaining(project.StageAudio), func(ctx context.Context, lang string, logger *slog.Logger) error {
		return p.language(ctx, run, lang, count, logger)
	})
	if err != nil {
		return Result{}, err
	}
	return p.finish(run, project.StageAudio, func(done, failed []string) project.Extra {
		chosen := make(map[string]string, len(done))
		for _, lang := range done {
			if res, err := p.resolve(run, lang); err == nil {
				chosen[lang] = res.Voice.ID
			}
		}
		return &project.AudioExtra{AudioLanguages: done, Candidates: count, Voices: chosen, FailedLanguages: failed}
	})
}

func (p *audioPhase) resolve(run *Run, lang string) (voices.Resolution, error) {
	req := voices.Request{
		Language:       lang,
		VoiceID:        run.Snapshot.VoiceID,
		LanguageVoices: run.Snapshot.LanguageVoices,
		DefaultVoice:   p.deps.Settings.DefaultVoice,
	}
	if run.Snapshot.UseGuidance {
		req.Style = run.Snapshot.StylePrompt
	}
	return p.deps.Voices.Resolve(req)
}

func (p *audioPhase) language(ctx context.Context, run *Run, lang string, count int, logger *slog.Logger) error {
	voice, err := p.resolve(run, lang)
	if err != nil {
		return err
	}
	text, err := p.script(ctx, run, lang)
	if err != nil {
		return err
	}
	runner, err := p.runner(run, lang, project.StageAudio)
	if err != nil {
		return err
	}
	logger.Info("rendering narration",
		logging.String(logging.FieldEventType, "audio_start"),
		logging.String("voice", voice.Voice.ID),
		logging.String("voice_source", string(voice.Source)),
		logging.Int("candidates", count))

	row, _ := run.Tracker.Get(lang)
	candidates := slices.Clone(row.Artifacts.AudioCandidates)
	var firstID string
	for i := len(candidates); i < count; i++ {
		base, err := run.Workspace.Path(lang, project.StageAudio, fmt.Sprintf("candidate-%02d", i+1))
		if err != nil {
			return fmt.Errorf("%w: %w", errContract, err)
		}
		audio, err := p.deps.TTS.Synthesize(ctx, runner, media.SpeechRequest{
			Text:       text,
			Language:   lang,
			Voice:      voice,
			OutputBase: base,
		})
		if err != nil {
			return err
		}
		asset, err := p.uploadAsset(ctx, run, lang, project.StageAudio, project.AssetAudio, audio, false)
		if err != nil {
			return err
		}
		if i == 0 {
			firstID = asset.ID
		}
		candidates = append(candidates, asset.URL)
		urls := slices.Clone(candidates)
		if err := p.update(ctx, run, lang, func(row *project.LanguageProgress) {
			row.Artifacts.AudioCandidates = urls
		}); err != nil {
			return err
		}
		logger.Debug("audio candidate uploaded", logging.Int("candidate", i+1), logging.String("url", asset.URL))
	}

	auto := run.Snapshot.AutoApproveAudio
	if auto && firstID == "" {
		if firstID, err = p.assetID(ctx, run, candidates[0]); err != nil {
			return err
		}
	}
	return p.update(ctx, run, lang, func(row *project.LanguageProgress) {
		if auto {
			row.Artifacts.VoiceoverID = firstID
			row.Artifacts.VoiceoverURL = candidates[0]
		}
		row.AudioDone = true
	})
}

// assetID finds the registered asset with url. An unknown url yields "".
func (e *engine) assetID(ctx context.Context, run *Run, url string) (string, error) {
	assets, err := e.deps.Plane.Assets(ctx, run.Project.ID)
	if err != nil {
		return "", plane(err)
	}
	for _, asset := range assets {
		if asset.URL == url {
			return asset.ID, nil
		}
	}
	return "", nil
}
