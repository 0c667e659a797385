package planestore

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"reelmill/internal/project"
	"reelmill/internal/rollback"
)

// Rollback forces the project back to target and resets the progress of
// languagesToReset (every language when empty) in one transaction. Queued
// and running jobs are failed and the project ownership is released, so
// writes from the daemon that held it are rejected and any daemon may
// resume it.
func (s *Store) Rollback(ctx context.Context, projectID string, target project.Status, languagesToReset []string) (rollback.Result, error) {
	var result rollback.Result
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.projectTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		rows, err := s.languageProgress(ctx, tx, projectID)
		if err != nil {
			return err
		}
		planned, err := rollback.Plan(p, rows, target, languagesToReset)
		if err != nil {
			return err
		}
		planned.Project.CurrentDaemonID = ""
		if err := s.writeProject(ctx, tx, planned.Project); err != nil {
			return err
		}
		if err := s.writeProgress(ctx, tx, planned.Project, planned.Progress); err != nil {
			return err
		}
		if err := s.failOpenJobs(ctx, tx, projectID, fmt.Sprintf("superseded by rollback to %s", target)); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, tx, projectID, target, fmt.Sprintf("rolled back to %s", target), nil); err != nil {
			return err
		}
		result = planned
		return nil
	})
	if err != nil {
		return rollback.Result{}, err
	}
	result.Project, err = s.Project(ctx, projectID)
	if err != nil {
		return rollback.Result{}, err
	}
	return result, nil
}

// Approve releases a project waiting at a validation gate. At the audio gate
// voiceovers maps a language to the chosen candidate asset id; languages
// without a choice take their first candidate.
func (s *Store) Approve(ctx context.Context, projectID string, voiceovers map[string]string) (project.Project, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.projectTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if !p.Status.IsValidationGate() {
			return conflict("approve", "project %s is not waiting for approval (status %s)", projectID, p.Status)
		}
		next, err := project.Next(p.Status, project.CreationSnapshot{})
		if err != nil {
			return invalid("approve", "%v", err)
		}
		if p.Status == project.StatusProcessAudioValidate {
			if err := s.chooseVoiceovers(ctx, tx, p, voiceovers); err != nil {
				return err
			}
			if p, err = s.projectTx(ctx, tx, projectID); err != nil {
				return err
			}
		}
		p.Status = next
		p.StatusMessage = "approved"
		if err := s.writeProject(ctx, tx, p); err != nil {
			return err
		}
		return s.appendHistory(ctx, tx, projectID, next, "approved", nil)
	})
	if err != nil {
		return project.Project{}, err
	}
	return s.Project(ctx, projectID)
}

func (s *Store) chooseVoiceovers(ctx context.Context, q querier, p project.Project, voiceovers map[string]string) error {
	for lang := range voiceovers {
		if !slices.Contains(p.Languages, lang) {
			return invalid("approve", "language %q is not configured for project %s", lang, p.ID)
		}
	}
	rows, err := s.languageProgress(ctx, q, p.ID)
	if err != nil {
		return err
	}
	assets, err := s.assets(ctx, q, p.ID)
	if err != nil {
		return err
	}
	updated := make([]project.LanguageProgress, 0, len(rows))
	for _, row := range rows {
		if row.Disabled || !row.AudioDone {
			continue
		}
		var chosen project.Asset
		if id, ok := voiceovers[row.Language]; ok {
			if chosen, err = s.asset(ctx, q, id); err != nil {
				return err
			}
			if chosen.ProjectID != p.ID || chosen.Language != row.Language || chosen.Kind != project.AssetAudio {
				return invalid("approve", "asset %s is not a %s audio candidate of project %s", id, row.Language, p.ID)
			}
		} else {
			if len(row.Artifacts.AudioCandidates) == 0 {
				return invalid("approve", "language %s has no audio candidates", row.Language)
			}
			idx := slices.IndexFunc(assets, func(a project.Asset) bool {
				return a.URL == row.Artifacts.AudioCandidates[0]
			})
			if idx < 0 {
				return invalid("approve", "first %s candidate is not a registered asset", row.Language)
			}
			chosen = assets[idx]
		}
		chosen.IsFinal = true
		if err := s.promoteAsset(ctx, q, p, chosen); err != nil {
			return err
		}
		row.Artifacts.VoiceoverID = chosen.ID
		row.Artifacts.VoiceoverURL = chosen.URL
		updated = append(updated, row)
	}
	return s.writeProgress(ctx, q, p, updated)
}
