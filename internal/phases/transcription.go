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

// transcriptionPhase aligns the approved voiceover into a word-timed
// transcript. When the gate recorded no choice the first candidate is used.
type transcriptionPhase struct{ *engine }

func (p *transcriptionPhase) Stage() project.Stage { return project.StageTranscription }

func (p *transcriptionPhase) Execute(ctx context.Context, run *Run) (Result, error) {
	err := p.fanOut(ctx, run, project.StageTranscription, run.Tracker.Remaining(project.StageTranscription), func(ctx context.Context, lang string, logger *slog.Logger) error {
		return p.language(ctx, run, lang, logger)
	})
	if err != nil {
		return Result{}, err
	}
	return p.finish(run, project.StageTranscription, func(done, failed []string) project.Extra {
		return &project.TranscriptionExtra{TranscriptionLanguages: done, FailedLanguages: failed}
	})
}

func (p *transcriptionPhase) language(ctx context.Context, run *Run, lang string, logger *slog.Logger) error {
	row, _ := run.Tracker.Get(lang)
	url, voiceoverID := row.Artifacts.VoiceoverURL, row.Artifacts.VoiceoverID
	choose := url == ""
	if choose {
		if len(row.Artifacts.AudioCandidates) == 0 {
			return missing(lang, "voiceover")
		}
		url = row.Artifacts.AudioCandidates[0]
		id, err := p.assetID(ctx, run, url)
		if err != nil {
			return err
		}
		voiceoverID = id
	}

	audio, err := p.fetch(ctx, run, lang, project.StageTranscription, url, "voiceover"+urlExt(url, ".wav"))
	if err != nil {
		return err
	}
	runner, err := p.runner(run, lang, project.StageTranscription)
	if err != nil {
		return err
	}
	dir, err := run.Workspace.StageDir(lang, project.StageTranscription)
	if err != nil {
		return fmt.Errorf("%w: %w", errContract, err)
	}
	jsonPath, err := p.deps.Transcriber.Transcribe(ctx, runner, audio, dir, lang)
	if err != nil {
		return err
	}
	transcript, err := media.LoadTranscript(jsonPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "transcription", "parse", "unreadable transcript", err)
	}
	words := transcript.Words()
	if len(words) == 0 {
		return services.Wrap(services.ErrExternalTool, "transcription", "parse", "transcript has no words", nil)
	}
	asset, err := p.uploadAsset(ctx, run, lang, project.StageTranscription, project.AssetTranscript, jsonPath, false)
	if err != nil {
		return err
	}
	logger.Info("voiceover transcribed",
		logging.String(logging.FieldEventType, "transcription_done"),
		logging.Int("words", len(words)),
		logging.Float64("duration_seconds", transcript.Duration()))
	return p.update(ctx, run, lang, func(row *project.LanguageProgress) {
		if choose {
			row.Artifacts.VoiceoverURL = url
			row.Artifacts.VoiceoverID = voiceoverID
		}
		row.Artifacts.TranscriptURL = asset.URL
		row.TranscriptionDone = true
	})
}
