// Package rollback plans admin rollbacks: forcing a project back to an
// earlier status and resetting the per-language progress that status
// invalidates. Planning is pure; the control plane applies the result in one
// transaction and the normal job scheduling does the rest.
package rollback

import (
	"fmt"
	"slices"

	"reelmill/internal/project"
	"reelmill/internal/services"
)

// Result is the post-rollback state to persist.
type Result struct {
	Project  project.Project
	Progress []project.LanguageProgress
	// Reset lists the languages whose progress changed.
	Reset []string
}

// Plan computes the rollback of p to target. An empty languagesToReset
// resets every language, re-enabling only languages that were disabled at
// or after the target stage; an explicit list is re-enabled unconditionally.
// Rows of languages outside the reset set are returned unchanged.
func Plan(p project.Project, rows []project.LanguageProgress, target project.Status, languagesToReset []string) (Result, error) {
	stage, ok := firstInvalidatedStage(target)
	if !ok {
		return Result{}, services.Wrap(services.ErrValidation, "rollback", "plan",
			fmt.Sprintf("cannot roll back to %s", target), nil)
	}
	if p.Status.Index() >= 0 && !target.Before(p.Status) {
		return Result{}, services.Wrap(services.ErrValidation, "rollback", "plan",
			fmt.Sprintf("target %s is not before current status %s", target, p.Status), nil)
	}
	for _, lang := range languagesToReset {
		if !slices.Contains(p.Languages, lang) {
			return Result{}, services.Wrap(services.ErrValidation, "rollback", "plan",
				fmt.Sprintf("language %q is not configured for project %s", lang, p.ID), nil)
		}
	}

	all := len(languagesToReset) == 0
	resetSet := languagesToReset
	if all {
		resetSet = p.Languages
	}

	result := Result{Project: p}
	result.Project.Status = target
	result.Project.StatusMessage = ""
	result.Progress = make([]project.LanguageProgress, 0, len(rows))

	byLang := make(map[string]project.LanguageProgress, len(rows))
	for _, row := range rows {
		byLang[row.Language] = row
	}
	for _, lang := range p.Languages {
		row, ok := byLang[lang]
		if !ok {
			row = project.LanguageProgress{ProjectID: p.ID, Language: lang}
		}
		if slices.Contains(resetSet, lang) {
			row.ClearFrom(stage)
			switch {
			case !all:
				row.Enable()
			case row.Disabled && row.FailedStep.AtOrAfter(stage):
				row.Enable()
			}
			result.Reset = append(result.Reset, lang)
		}
		result.Progress = append(result.Progress, row)
	}

	if all || slices.Contains(resetSet, p.PrimaryLanguage()) {
		clearProjectFinals(&result.Project, target)
	}
	return result, nil
}

// firstInvalidatedStage returns the earliest stage whose results no longer
// hold once the project is back in target. A validation gate keeps the
// output it is validating.
func firstInvalidatedStage(target project.Status) (project.Stage, bool) {
	switch target {
	case project.StatusProcessScriptValidate:
		return project.StageAudio, true
	case project.StatusProcessAudioValidate:
		return project.StageTranscription, true
	default:
		return project.StageFor(target)
	}
}

func clearProjectFinals(p *project.Project, target project.Status) {
	p.FinalVideoID = ""
	p.FinalVideoPath = ""
	p.FinalVideoURL = ""
	if target.Index() <= project.StatusProcessAudioValidate.Index() {
		p.VoiceoverID = ""
		p.VoiceoverURL = ""
	}
	if target.Index() <= project.StatusProcessScript.Index() {
		p.Script = ""
	}
}
