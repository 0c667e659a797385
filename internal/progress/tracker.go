// Package progress tracks per-language stage completion for one project.
//
// A Tracker is loaded at the start of a job, mutated by the phase executor
// (often from several goroutines, one per language), and persists every
// change to the control plane immediately so a crash never loses finished
// work.
package progress

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"reelmill/internal/project"
)

// Store persists progress rows.
type Store interface {
	LanguageProgress(ctx context.Context, projectID string) ([]project.LanguageProgress, error)
	SaveLanguageProgress(ctx context.Context, projectID string, rows []project.LanguageProgress) error
}

// Tracker holds the progress rows of one project.
type Tracker struct {
	mu        sync.Mutex
	store     Store
	projectID string
	languages []string
	rows      map[string]*project.LanguageProgress
	now       func() time.Time
}

// Load reads the project's rows and lazily creates missing ones for the
// configured languages.
func Load(ctx context.Context, store Store, projectID string, languages []string) (*Tracker, error) {
	if len(languages) == 0 {
		return nil, fmt.Errorf("project %s has no languages", projectID)
	}
	existing, err := store.LanguageProgress(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load language progress: %w", err)
	}
	t := &Tracker{
		store:     store,
		projectID: projectID,
		languages: slices.Clone(languages),
		rows:      make(map[string]*project.LanguageProgress, len(languages)),
		now:       time.Now,
	}
	for i := range existing {
		row := existing[i]
		t.rows[row.Language] = &row
	}
	var created []project.LanguageProgress
	for _, lang := range languages {
		if _, ok := t.rows[lang]; ok {
			continue
		}
		row := &project.LanguageProgress{ProjectID: projectID, Language: lang, UpdatedAt: t.now()}
		t.rows[lang] = row
		created = append(created, *row)
	}
	if len(created) > 0 {
		if err := store.SaveLanguageProgress(ctx, projectID, created); err != nil {
			return nil, fmt.Errorf("create language progress: %w", err)
		}
	}
	return t, nil
}

// ProjectID returns the tracked project.
func (t *Tracker) ProjectID() string {
	return t.projectID
}

// Languages returns the configured languages in order.
func (t *Tracker) Languages() []string {
	return slices.Clone(t.languages)
}

// Get returns a copy of the row for lang.
func (t *Tracker) Get(lang string) (project.LanguageProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[lang]
	if !ok {
		return project.LanguageProgress{}, false
	}
	return *row, true
}

// Rows returns copies of every configured row in language order.
func (t *Tracker) Rows() []project.LanguageProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]project.LanguageProgress, 0, len(t.languages))
	for _, lang := range t.languages {
		out = append(out, *t.rows[lang])
	}
	return out
}

// Enabled returns the configured languages that are not disabled.
func (t *Tracker) Enabled() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, lang := range t.languages {
		if !t.rows[lang].Disabled {
			out = append(out, lang)
		}
	}
	return out
}

// Remaining returns the enabled languages that have not finished stage.
func (t *Tracker) Remaining(stage project.Stage) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, lang := range t.languages {
		row := t.rows[lang]
		if !row.Disabled && !row.StageDone(stage) {
			out = append(out, lang)
		}
	}
	return out
}

// Completed returns the enabled languages that finished stage.
func (t *Tracker) Completed(stage project.Stage) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, lang := range t.languages {
		row := t.rows[lang]
		if !row.Disabled && row.StageDone(stage) {
			out = append(out, lang)
		}
	}
	return out
}

// AllDone reports whether at least one language is enabled and every
// enabled language finished stage.
func (t *Tracker) AllDone(stage project.Stage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	enabled := 0
	for _, lang := range t.languages {
		row := t.rows[lang]
		if row.Disabled {
			continue
		}
		enabled++
		if !row.StageDone(stage) {
			return false
		}
	}
	return enabled > 0
}

// AllDisabled reports whether no language is left to process.
func (t *Tracker) AllDisabled() bool {
	return len(t.Enabled()) == 0
}

// FailedLanguages lists disabled languages in configured order.
func (t *Tracker) FailedLanguages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := []string{}
	for _, lang := range t.languages {
		if t.rows[lang].Disabled {
			out = append(out, lang)
		}
	}
	return out
}

// Update applies mutate to the row for lang and persists it.
func (t *Tracker) Update(ctx context.Context, lang string, mutate func(*project.LanguageProgress)) error {
	t.mu.Lock()
	row, ok := t.rows[lang]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("language %q is not configured for project %s", lang, t.projectID)
	}
	mutate(row)
	row.UpdatedAt = t.now()
	snapshot := *row
	t.mu.Unlock()

	if err := t.store.SaveLanguageProgress(ctx, t.projectID, []project.LanguageProgress{snapshot}); err != nil {
		return fmt.Errorf("save %s progress: %w", lang, err)
	}
	return nil
}

// MarkDone sets the completion flag of stage for lang.
func (t *Tracker) MarkDone(ctx context.Context, lang string, stage project.Stage) error {
	return t.Update(ctx, lang, func(row *project.LanguageProgress) {
		row.SetStageDone(stage, true)
	})
}

// Disable excludes lang from further processing.
func (t *Tracker) Disable(ctx context.Context, lang string, stage project.Stage, reason string) error {
	return t.Update(ctx, lang, func(row *project.LanguageProgress) {
		row.Disabled = true
		row.FailedStep = stage
		row.FailureReason = reason
	})
}
