package phases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"reelmill/internal/language"
	"reelmill/internal/llm"
	"reelmill/internal/logging"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

// scriptPhase drafts the primary script and translates it into every other
// language. A failed draft or translation disables only its language; when
// the primary is disabled the remaining languages are drafted directly.
type scriptPhase struct{ *engine }

func (p *scriptPhase) Stage() project.Stage { return project.StageScript }

func (p *scriptPhase) Execute(ctx context.Context, run *Run) (Result, error) {
	targets, refine, err := p.targets(ctx, run)
	if err != nil {
		return Result{}, err
	}
	primary := run.Snapshot.Primary()

	source, sourceText := primary, ""
	if slices.Contains(targets, primary) {
		targets = slices.DeleteFunc(targets, func(lang string) bool { return lang == primary })
		sourceText, err = p.draft(ctx, run, primary, refine)
		if err != nil {
			if fatal(ctx, err) {
				return Result{}, fmt.Errorf("primary script (%s): %w", primary, err)
			}
			logger := run.Logger.With(logging.String(logging.FieldLanguage, primary))
			if err := p.disable(ctx, run, primary, project.StageScript, err, logger); err != nil {
				return Result{}, err
			}
			sourceText = ""
		}
	}

	if len(targets) > 0 && sourceText == "" {
		if source, sourceText, err = p.translationSource(ctx, run); err != nil {
			return Result{}, err
		}
	}

	if len(targets) > 0 {
		err = p.fanOut(ctx, run, project.StageScript, targets, func(ctx context.Context, lang string, logger *slog.Logger) error {
			if sourceText == "" {
				_, err := p.draft(ctx, run, lang, refine)
				return err
			}
			text, err := p.deps.Writer.Translate(ctx, sourceText, source, lang)
			if err != nil {
				return err
			}
			if err := p.deps.Plane.SaveScript(ctx, run.Project.ID, lang, text); err != nil {
				return plane(err)
			}
			logger.Info("script translated",
				logging.String(logging.FieldEventType, "script_translated"),
				logging.String("from", source),
				logging.Int("chars", len(text)))
			return p.markDone(ctx, run, lang, project.StageScript)
		})
		if err != nil {
			return Result{}, err
		}
	}

	return p.finish(run, project.StageScript, func(done, failed []string) project.Extra {
		return &project.ScriptExtra{ScriptLanguages: done, FailedLanguages: failed}
	})
}

// translationSource returns the first enabled language, in project order,
// whose script is already written. An empty text means nothing can be
// translated and each target is drafted on its own.
func (p *scriptPhase) translationSource(ctx context.Context, run *Run) (string, string, error) {
	for _, lang := range run.Snapshot.Languages {
		row, ok := run.Tracker.Get(lang)
		if !ok || row.Disabled || !row.ScriptDone {
			continue
		}
		text, err := p.script(ctx, run, lang)
		if err != nil {
			if errors.Is(err, errContract) {
				continue
			}
			return "", "", err
		}
		return lang, text, nil
	}
	return "", "", nil
}

// targets returns the languages to (re)generate. A job payload naming a
// language or carrying a refinement forces regeneration and clears the
// affected languages' downstream progress.
func (p *scriptPhase) targets(ctx context.Context, run *Run) ([]string, string, error) {
	payload := run.Job.Payload
	refine := strings.TrimSpace(payload.Refinement)
	var forced []string
	switch {
	case strings.TrimSpace(payload.Language) != "":
		lang, err := language.Normalize(payload.Language)
		if err != nil {
			return nil, "", services.Wrap(services.ErrValidation, "script", "payload", "invalid language", err)
		}
		if _, ok := run.Tracker.Get(lang); !ok {
			return nil, "", services.Wrap(services.ErrValidation, "script", "payload",
				fmt.Sprintf("language %s is not configured for the project", lang), nil)
		}
		forced = []string{lang}
	case refine != "":
		forced = run.Tracker.Enabled()
	default:
		return run.Tracker.Remaining(project.StageScript), "", nil
	}
	for _, lang := range forced {
		err := p.update(ctx, run, lang, func(row *project.LanguageProgress) {
			row.Enable()
			row.ClearFrom(project.StageScript)
		})
		if err != nil {
			return nil, "", err
		}
	}
	run.Logger.Info("script regeneration requested",
		logging.String(logging.FieldEventType, "script_regenerate"),
		logging.String("languages", strings.Join(forced, ",")),
		logging.Bool("refinement", refine != ""))
	return forced, refine, nil
}

func (p *scriptPhase) draft(ctx context.Context, run *Run, lang, refine string) (string, error) {
	req := llm.DraftRequest{
		Prompt:     run.Snapshot.Prompt,
		Language:   lang,
		Template:   run.Snapshot.Template,
		SceneCount: sceneCount(run, p.deps.Settings),
		Refinement: refine,
	}
	if run.Snapshot.UseGuidance {
		req.StylePrompt = run.Snapshot.StylePrompt
	}
	if refine != "" {
		previous, err := p.deps.Plane.Script(ctx, run.Project.ID, lang)
		switch {
		case err == nil:
			req.Previous = previous.Text
		case !errors.Is(err, services.ErrNotFound):
			return "", plane(err)
		}
	}
	text, err := p.deps.Writer.Draft(ctx, req)
	if err != nil {
		return "", err
	}
	if err := p.deps.Plane.SaveScript(ctx, run.Project.ID, lang, text); err != nil {
		return "", plane(err)
	}
	run.Logger.Info("script drafted",
		logging.String(logging.FieldEventType, "script_drafted"),
		logging.String(logging.FieldLanguage, lang),
		logging.Int("chars", len(text)))
	if err := p.markDone(ctx, run, lang, project.StageScript); err != nil {
		return "", err
	}
	return text, nil
}

func sceneCount(run *Run, settings Settings) int {
	if run.Snapshot.SceneCount > 0 {
		return run.Snapshot.SceneCount
	}
	if settings.SceneCount > 0 {
		return settings.SceneCount
	}
	return 1
}
