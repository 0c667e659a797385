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

// LanguageProgress lists the progress rows of the project.
func (s *Store) LanguageProgress(ctx context.Context, projectID string) ([]project.LanguageProgress, error) {
	return s.languageProgress(ctx, s.db, projectID)
}

func (s *Store) languageProgress(ctx context.Context, q querier, projectID string) ([]project.LanguageProgress, error) {
	rows, err := s.query(ctx, q, "SELECT data, updated_at FROM language_progress WHERE project_id = ? ORDER BY language ASC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list language progress: %w", err)
	}
	defer rows.Close()
	var out []project.LanguageProgress
	for rows.Next() {
		var data, updated string
		if err := rows.Scan(&data, &updated); err != nil {
			return nil, fmt.Errorf("scan language progress: %w", err)
		}
		var row project.LanguageProgress
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("decode language progress: %w", err)
		}
		row.UpdatedAt = parseTime(updated)
		out = append(out, row)
	}
	return out, rows.Err()
}

// SaveLanguageProgress upserts rows on behalf of daemonID. Every row must
// name a language configured for the project.
func (s *Store) SaveLanguageProgress(ctx context.Context, daemonID, projectID string, rows []project.LanguageProgress) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.projectTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := checkWriter("save language progress", p, daemonID); err != nil {
			return err
		}
		return s.writeProgress(ctx, tx, p, rows)
	})
}

func (s *Store) writeProgress(ctx context.Context, q querier, p project.Project, rows []project.LanguageProgress) error {
	now := s.timestamp()
	for _, row := range rows {
		if row.ProjectID != "" && row.ProjectID != p.ID {
			return invalid("save language progress", "row for project %s sent to project %s", row.ProjectID, p.ID)
		}
		if !slices.Contains(p.Languages, row.Language) {
			return invalid("save language progress", "language %q is not configured for project %s", row.Language, p.ID)
		}
		row.ProjectID = p.ID
		row.UpdatedAt = parseTime(now)
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode language progress: %w", err)
		}
		if _, err := s.exec(ctx, q, `INSERT INTO language_progress (project_id, language, data, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (project_id, language) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			p.ID, row.Language, string(data), now); err != nil {
			return fmt.Errorf("upsert language progress: %w", err)
		}
	}
	return nil
}

// RegisterAsset records an uploaded artifact on behalf of daemonID. A final
// asset replaces the previous final of the same language and kind; final
// audio and video of the primary language are mirrored onto the project
// record.
func (s *Store) RegisterAsset(ctx context.Context, daemonID string, asset project.Asset) (project.Asset, error) {
	if strings.TrimSpace(asset.URL) == "" {
		return project.Asset{}, invalid("register asset", "url is required")
	}
	if strings.TrimSpace(string(asset.Kind)) == "" {
		return project.Asset{}, invalid("register asset", "kind is required")
	}
	asset.ID = uuid.NewString()
	now := s.now()
	asset.CreatedAt = parseTime(formatTime(now))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.projectTx(ctx, tx, asset.ProjectID)
		if err != nil {
			return err
		}
		if err := checkWriter("register asset", p, daemonID); err != nil {
			return err
		}
		if asset.Language != "" && !slices.Contains(p.Languages, asset.Language) {
			return invalid("register asset", "language %q is not configured for project %s", asset.Language, p.ID)
		}
		if _, err := s.exec(ctx, tx, `INSERT INTO assets (id, project_id, language, kind, url, path, is_final, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			asset.ID, asset.ProjectID, asset.Language, string(asset.Kind), asset.URL, asset.Path, boolInt(asset.IsFinal), formatTime(now)); err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}
		if asset.IsFinal {
			return s.promoteAsset(ctx, tx, p, asset)
		}
		return nil
	})
	if err != nil {
		return project.Asset{}, err
	}
	return asset, nil
}

// Assets lists the assets of the project, oldest first.
func (s *Store) Assets(ctx context.Context, projectID string) ([]project.Asset, error) {
	return s.assets(ctx, s.db, projectID)
}

func (s *Store) assets(ctx context.Context, q querier, projectID string) ([]project.Asset, error) {
	rows, err := s.query(ctx, q, `SELECT id, project_id, language, kind, url, path, is_final, created_at
		FROM assets WHERE project_id = ? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()
	var out []project.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, asset)
	}
	return out, rows.Err()
}

func (s *Store) asset(ctx context.Context, q querier, id string) (project.Asset, error) {
	row := s.queryRow(ctx, q, `SELECT id, project_id, language, kind, url, path, is_final, created_at FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Asset{}, notFound("get asset", "asset %s", id)
	}
	return asset, err
}

// promoteAsset makes asset the only final of its language and kind and
// mirrors it onto the project when it belongs to the primary language.
func (s *Store) promoteAsset(ctx context.Context, q querier, p project.Project, asset project.Asset) error {
	if _, err := s.exec(ctx, q, `UPDATE assets SET is_final = ? WHERE project_id = ? AND language = ? AND kind = ? AND id <> ?`,
		0, asset.ProjectID, asset.Language, string(asset.Kind), asset.ID); err != nil {
		return fmt.Errorf("demote assets: %w", err)
	}
	if _, err := s.exec(ctx, q, "UPDATE assets SET is_final = ? WHERE id = ?", 1, asset.ID); err != nil {
		return fmt.Errorf("promote asset: %w", err)
	}
	if asset.Language != p.PrimaryLanguage() {
		return nil
	}
	switch asset.Kind {
	case project.AssetAudio:
		p.VoiceoverID = asset.ID
		p.VoiceoverURL = asset.URL
	case project.AssetVideo:
		p.FinalVideoID = asset.ID
		p.FinalVideoPath = asset.Path
		p.FinalVideoURL = asset.URL
	default:
		return nil
	}
	return s.writeProject(ctx, q, p)
}

func scanAsset(row rowScanner) (project.Asset, error) {
	var (
		asset   project.Asset
		kind    string
		final   int
		created string
	)
	if err := row.Scan(&asset.ID, &asset.ProjectID, &asset.Language, &kind, &asset.URL, &asset.Path, &final, &created); err != nil {
		return project.Asset{}, err
	}
	asset.Kind = project.AssetKind(kind)
	asset.IsFinal = final != 0
	asset.CreatedAt = parseTime(created)
	return asset, nil
}
