package planestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"reelmill/internal/project"
)

const projectColumns = `id, user_id, status, languages, current_daemon_id, script,
	final_voiceover_id, final_voiceover_url, final_video_id, final_video_path, final_video_url,
	status_message, updated_at`

// CreateProject inserts a New project together with its creation snapshot.
// The project languages default to the snapshot languages.
func (s *Store) CreateProject(ctx context.Context, p project.Project, snap project.CreationSnapshot) (project.Project, error) {
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}
	if len(p.Languages) == 0 {
		p.Languages = slices.Clone(snap.Languages)
	}
	if len(snap.Languages) == 0 {
		snap.Languages = slices.Clone(p.Languages)
	}
	snap.ProjectID = p.ID
	if err := snap.Validate(); err != nil {
		return project.Project{}, err
	}
	if p.Status == "" {
		p.Status = project.StatusNew
	}
	if _, err := project.ParseStatus(string(p.Status)); err != nil {
		return project.Project{}, invalid("create project", "%v", err)
	}
	languages, err := json.Marshal(p.Languages)
	if err != nil {
		return project.Project{}, fmt.Errorf("encode languages: %w", err)
	}
	snapData, err := json.Marshal(snap)
	if err != nil {
		return project.Project{}, fmt.Errorf("encode snapshot: %w", err)
	}

	now := s.timestamp()
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `INSERT INTO projects (id, user_id, status, languages, current_daemon_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.UserID, string(p.Status), string(languages), nullableString(p.CurrentDaemonID), now, now); err != nil {
			if isUniqueViolation(err) {
				return conflict("create project", "project %s already exists", p.ID)
			}
			return fmt.Errorf("insert project: %w", err)
		}
		if _, err := s.exec(ctx, tx, "INSERT INTO creation_snapshots (project_id, data) VALUES (?, ?)", p.ID, string(snapData)); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		return s.appendHistory(ctx, tx, p.ID, p.Status, "project created", nil)
	})
	if err != nil {
		return project.Project{}, err
	}
	return s.Project(ctx, p.ID)
}

// Project fetches one project.
func (s *Store) Project(ctx context.Context, id string) (project.Project, error) {
	return s.projectTx(ctx, s.db, id)
}

func (s *Store) projectTx(ctx context.Context, q querier, id string) (project.Project, error) {
	row := s.queryRow(ctx, q, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Project{}, notFound("get project", "project %s", id)
	}
	return p, err
}

// Projects lists every project, most recently updated first.
func (s *Store) Projects(ctx context.Context) ([]project.Project, error) {
	rows, err := s.query(ctx, s.db, "SELECT "+projectColumns+" FROM projects ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return collectProjects(rows)
}

// EligibleProjects lists up to limit projects in a status that runs a job and
// visible to daemonID (unowned or owned by it), oldest update first.
func (s *Store) EligibleProjects(ctx context.Context, daemonID string, limit int) ([]project.Project, error) {
	statuses := make([]any, 0, 10)
	for _, st := range []project.Status{
		project.StatusNew,
		project.StatusProcessScript,
		project.StatusProcessAudio,
		project.StatusProcessTranscription,
		project.StatusProcessMetadata,
		project.StatusProcessCaptionsVideo,
		project.StatusProcessImagesGeneration,
		project.StatusProcessVideoPartsGeneration,
		project.StatusProcessVideoMain,
	} {
		statuses = append(statuses, string(st))
	}
	if limit <= 0 {
		limit = 50
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	query := "SELECT " + projectColumns + " FROM projects WHERE status IN (" + placeholders + `)
		AND (current_daemon_id IS NULL OR current_daemon_id = '' OR current_daemon_id = ?)
		ORDER BY updated_at ASC LIMIT ?`
	args := append(statuses, daemonID, limit)
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eligible projects: %w", err)
	}
	return collectProjects(rows)
}

// CreationSnapshot fetches the snapshot captured when the project was created.
func (s *Store) CreationSnapshot(ctx context.Context, projectID string) (project.CreationSnapshot, error) {
	var data string
	err := s.queryRow(ctx, s.db, "SELECT data FROM creation_snapshots WHERE project_id = ?", projectID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return project.CreationSnapshot{}, notFound("creation snapshot", "project %s", projectID)
	}
	if err != nil {
		return project.CreationSnapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap project.CreationSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return project.CreationSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// UpdateProjectStatus applies a status transition on behalf of daemonID.
// The extra must match the target status. Daemon writes are rejected unless
// the daemon holds the project, the project has not finished, and the
// project is still in update.From when that is set. A repeated write of the
// status the project already has is accepted.
func (s *Store) UpdateProjectStatus(ctx context.Context, daemonID, projectID string, update project.StatusUpdate) error {
	status, err := project.ParseStatus(string(update.Status))
	if err != nil {
		return invalid("project status", "%v", err)
	}
	if _, err := project.DecodeExtra(status, update.Extra); err != nil {
		return invalid("project status", "%v", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.projectTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := checkWriter("project status", p, daemonID); err != nil {
			return err
		}
		if update.From != "" && p.Status != update.From {
			if p.Status == status {
				return nil
			}
			return conflict("project status", "project %s moved from %s to %s", projectID, update.From, p.Status)
		}
		res, err := s.exec(ctx, tx, `UPDATE projects SET status = ?, status_message = ?, status_extra = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(status), update.Message, rawOrNull(update.Extra), s.timestamp(), projectID, string(p.Status))
		if err != nil {
			return fmt.Errorf("update project status: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return conflict("project status", "project %s changed status concurrently", projectID)
		}
		return s.appendHistory(ctx, tx, projectID, status, update.Message, update.Extra)
	})
}

// checkWriter rejects a daemon write to a project the daemon does not hold
// or that already finished. An empty daemonID is an operator write.
func checkWriter(operation string, p project.Project, daemonID string) error {
	if daemonID == "" {
		return nil
	}
	switch {
	case p.Status == project.StatusDone || p.Status == project.StatusCancelled:
		return conflict(operation, "project %s is %s", p.ID, p.Status)
	case p.CurrentDaemonID == "":
		return conflict(operation, "project %s is not claimed by daemon %s", p.ID, daemonID)
	case !p.HeldBy(daemonID):
		return conflict(operation, "project %s is owned by daemon %s", p.ID, p.CurrentDaemonID)
	}
	return nil
}

// Script reads the script of lang; an empty lang selects the primary
// language.
func (s *Store) Script(ctx context.Context, projectID, lang string) (project.Script, error) {
	if lang == "" {
		p, err := s.Project(ctx, projectID)
		if err != nil {
			return project.Script{}, err
		}
		lang = p.PrimaryLanguage()
	}
	var text, updated string
	err := s.queryRow(ctx, s.db, "SELECT text, updated_at FROM scripts WHERE project_id = ? AND language = ?", projectID, lang).Scan(&text, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Script{}, notFound("get script", "no %s script for project %s", lang, projectID)
	}
	if err != nil {
		return project.Script{}, fmt.Errorf("read script: %w", err)
	}
	return project.Script{ProjectID: projectID, Language: lang, Text: text, UpdatedAt: parseTime(updated)}, nil
}

// SaveScript upserts the script of lang on behalf of daemonID. The primary
// language script is mirrored onto the project record.
func (s *Store) SaveScript(ctx context.Context, daemonID, projectID, lang, text string) error {
	if strings.TrimSpace(lang) == "" {
		return invalid("save script", "language is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.projectTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := checkWriter("save script", p, daemonID); err != nil {
			return err
		}
		if !slices.Contains(p.Languages, lang) {
			return invalid("save script", "language %q is not configured for project %s", lang, projectID)
		}
		now := s.timestamp()
		if _, err := s.exec(ctx, tx, `INSERT INTO scripts (project_id, language, text, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (project_id, language) DO UPDATE SET text = excluded.text, updated_at = excluded.updated_at`,
			projectID, lang, text, now); err != nil {
			return fmt.Errorf("upsert script: %w", err)
		}
		if lang == p.PrimaryLanguage() {
			if _, err := s.exec(ctx, tx, "UPDATE projects SET script = ?, updated_at = ? WHERE id = ?", text, now, projectID); err != nil {
				return fmt.Errorf("mirror script: %w", err)
			}
		}
		return nil
	})
}

// History lists the status audit trail of the project in insertion order.
func (s *Store) History(ctx context.Context, projectID string) ([]project.HistoryEntry, error) {
	rows, err := s.query(ctx, s.db, `SELECT id, project_id, status, message, extra, created_at
		FROM status_history WHERE project_id = ? ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	var entries []project.HistoryEntry
	for rows.Next() {
		var (
			entry   project.HistoryEntry
			status  string
			extra   sql.NullString
			created string
		)
		if err := rows.Scan(&entry.ID, &entry.ProjectID, &status, &entry.Message, &extra, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.Status = project.Status(status)
		if extra.Valid && extra.String != "" {
			entry.Extra = json.RawMessage(extra.String)
		}
		entry.CreatedAt = parseTime(created)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) appendHistory(ctx context.Context, q querier, projectID string, status project.Status, message string, extra json.RawMessage) error {
	if _, err := s.exec(ctx, q, `INSERT INTO status_history (project_id, status, message, extra, created_at) VALUES (?, ?, ?, ?, ?)`,
		projectID, string(status), message, rawOrNull(extra), s.timestamp()); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// writeProject persists the mutable columns of p.
func (s *Store) writeProject(ctx context.Context, q querier, p project.Project) error {
	_, err := s.exec(ctx, q, `UPDATE projects SET status = ?, current_daemon_id = ?, script = ?,
		final_voiceover_id = ?, final_voiceover_url = ?, final_video_id = ?, final_video_path = ?, final_video_url = ?,
		status_message = ?, updated_at = ? WHERE id = ?`,
		string(p.Status), nullableString(p.CurrentDaemonID), p.Script,
		p.VoiceoverID, p.VoiceoverURL, p.FinalVideoID, p.FinalVideoPath, p.FinalVideoURL,
		p.StatusMessage, s.timestamp(), p.ID)
	if err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (project.Project, error) {
	var (
		p         project.Project
		status    string
		languages string
		owner     sql.NullString
		updated   string
	)
	if err := row.Scan(&p.ID, &p.UserID, &status, &languages, &owner, &p.Script,
		&p.VoiceoverID, &p.VoiceoverURL, &p.FinalVideoID, &p.FinalVideoPath, &p.FinalVideoURL,
		&p.StatusMessage, &updated); err != nil {
		return project.Project{}, err
	}
	p.Status = project.Status(status)
	if owner.Valid {
		p.CurrentDaemonID = owner.String
	}
	if err := json.Unmarshal([]byte(languages), &p.Languages); err != nil {
		return project.Project{}, fmt.Errorf("decode languages of %s: %w", p.ID, err)
	}
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func collectProjects(rows *sql.Rows) ([]project.Project, error) {
	defer rows.Close()
	var out []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func rawOrNull(raw json.RawMessage) sql.NullString {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: trimmed, Valid: true}
}
