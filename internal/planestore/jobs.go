package planestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"reelmill/internal/project"
)

const jobColumns = "id, project_id, type, status, daemon_id, payload, message, created_at, updated_at"

// CreateJob queues a job of stage for the project. It is rejected with a
// conflict when another daemon owns the project or a queued or running job
// of the same stage already exists.
func (s *Store) CreateJob(ctx context.Context, daemonID, projectID string, stage project.Stage, payload project.JobPayload) (project.Job, error) {
	if _, err := project.ParseStage(string(stage)); err != nil {
		return project.Job{}, invalid("create job", "%v", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return project.Job{}, fmt.Errorf("encode payload: %w", err)
	}
	id := uuid.NewString()
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.projectTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if daemonID != "" && !p.OwnedBy(daemonID) {
			return conflict("create job", "project %s is owned by daemon %s", projectID, p.CurrentDaemonID)
		}
		exists, err := s.jobExists(ctx, tx, projectID, stage)
		if err != nil {
			return err
		}
		if exists {
			return conflict("create job", "a %s job is already pending for project %s", stage, projectID)
		}
		now := s.timestamp()
		if _, err := s.exec(ctx, tx, `INSERT INTO jobs (id, project_id, type, status, payload, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, projectID, string(stage), string(project.JobQueued), string(data), now, now); err != nil {
			if isUniqueViolation(err) {
				return conflict("create job", "a %s job is already queued for project %s", stage, projectID)
			}
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return project.Job{}, err
	}
	return s.Job(ctx, id)
}

// Job fetches one job.
func (s *Store) Job(ctx context.Context, id string) (project.Job, error) {
	row := s.queryRow(ctx, s.db, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Job{}, notFound("get job", "job %s", id)
	}
	return job, err
}

// Jobs lists every job of the project, oldest first.
func (s *Store) Jobs(ctx context.Context, projectID string) ([]project.Job, error) {
	rows, err := s.query(ctx, s.db, "SELECT "+jobColumns+" FROM jobs WHERE project_id = ? ORDER BY created_at ASC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

// JobExists reports whether a queued or running job of stage exists.
func (s *Store) JobExists(ctx context.Context, projectID string, stage project.Stage) (bool, error) {
	return s.jobExists(ctx, s.db, projectID, stage)
}

func (s *Store) jobExists(ctx context.Context, q querier, projectID string, stage project.Stage) (bool, error) {
	var count int
	err := s.queryRow(ctx, q, "SELECT COUNT(1) FROM jobs WHERE project_id = ? AND type = ? AND status IN (?, ?)",
		projectID, string(stage), string(project.JobQueued), string(project.JobRunning)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count jobs: %w", err)
	}
	return count > 0, nil
}

// QueuedJobs lists up to limit queued jobs whose project is unowned or owned
// by daemonID, oldest first.
func (s *Store) QueuedJobs(ctx context.Context, daemonID string, limit int) ([]project.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.query(ctx, s.db, `SELECT j.id, j.project_id, j.type, j.status, j.daemon_id, j.payload, j.message, j.created_at, j.updated_at
		FROM jobs j JOIN projects p ON p.id = j.project_id
		WHERE j.status = ? AND (p.current_daemon_id IS NULL OR p.current_daemon_id = '' OR p.current_daemon_id = ?)
		ORDER BY j.created_at ASC LIMIT ?`,
		string(project.JobQueued), daemonID, limit)
	if err != nil {
		return nil, fmt.Errorf("queued jobs: %w", err)
	}
	return collectJobs(rows)
}

// ClaimJob atomically moves a queued job to running for daemonID and makes
// daemonID the project owner. It returns false when the job already left the
// queue or the project belongs to another daemon.
func (s *Store) ClaimJob(ctx context.Context, jobID, daemonID string) (bool, error) {
	if daemonID == "" {
		return false, invalid("claim job", "daemon id is required")
	}
	claimed := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		claimed = false
		var projectID string
		err := s.queryRow(ctx, tx, "SELECT project_id FROM jobs WHERE id = ?", jobID).Scan(&projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("claim job", "job %s", jobID)
		}
		if err != nil {
			return fmt.Errorf("read job: %w", err)
		}
		now := s.timestamp()
		res, err := s.exec(ctx, tx, "UPDATE jobs SET status = ?, daemon_id = ?, updated_at = ? WHERE id = ? AND status = ?",
			string(project.JobRunning), daemonID, now, jobID, string(project.JobQueued))
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return nil
		}
		res, err = s.exec(ctx, tx, `UPDATE projects SET current_daemon_id = ?, updated_at = ?
			WHERE id = ? AND (current_daemon_id IS NULL OR current_daemon_id = '' OR current_daemon_id = ?)`,
			daemonID, now, projectID, daemonID)
		if err != nil {
			return fmt.Errorf("claim project: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return errClaimForeign
		}
		claimed = true
		return nil
	})
	if errors.Is(err, errClaimForeign) {
		return false, nil
	}
	return claimed, err
}

// errClaimForeign rolls back a claim whose project is owned elsewhere.
var errClaimForeign = errors.New("project owned by another daemon")

// UpdateJobStatus records a job transition reported by daemonID.
func (s *Store) UpdateJobStatus(ctx context.Context, daemonID, jobID string, status project.JobStatus, message string) error {
	switch status {
	case project.JobQueued, project.JobRunning, project.JobDone, project.JobFailed, project.JobPaused:
	default:
		return invalid("job status", "unknown job status %q", status)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var (
			owner   sql.NullString
			current string
		)
		err := s.queryRow(ctx, tx, "SELECT daemon_id, status FROM jobs WHERE id = ?", jobID).Scan(&owner, &current)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("job status", "job %s", jobID)
		}
		if err != nil {
			return fmt.Errorf("read job: %w", err)
		}
		if daemonID != "" && owner.Valid && owner.String != "" && owner.String != daemonID {
			return conflict("job status", "job %s is held by daemon %s", jobID, owner.String)
		}
		if finished := project.JobStatus(current); finished != status && (finished == project.JobDone || finished == project.JobFailed) {
			return conflict("job status", "job %s already %s", jobID, finished)
		}
		if _, err := s.exec(ctx, tx, "UPDATE jobs SET status = ?, message = ?, updated_at = ? WHERE id = ?",
			string(status), message, s.timestamp(), jobID); err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
		return nil
	})
}

// failOpenJobs marks every queued or running job of the project failed.
func (s *Store) failOpenJobs(ctx context.Context, q querier, projectID, message string) error {
	if _, err := s.exec(ctx, q, "UPDATE jobs SET status = ?, message = ?, updated_at = ? WHERE project_id = ? AND status IN (?, ?)",
		string(project.JobFailed), message, s.timestamp(), projectID, string(project.JobQueued), string(project.JobRunning)); err != nil {
		return fmt.Errorf("fail open jobs: %w", err)
	}
	return nil
}

func scanJob(row rowScanner) (project.Job, error) {
	var (
		job      project.Job
		stage    string
		status   string
		daemonID sql.NullString
		payload  string
		created  string
		updated  string
	)
	if err := row.Scan(&job.ID, &job.ProjectID, &stage, &status, &daemonID, &payload, &job.Message, &created, &updated); err != nil {
		return project.Job{}, err
	}
	job.Type = project.Stage(stage)
	job.Status = project.JobStatus(status)
	if daemonID.Valid {
		job.DaemonID = daemonID.String
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
			return project.Job{}, fmt.Errorf("decode payload of job %s: %w", job.ID, err)
		}
	}
	job.CreatedAt = parseTime(created)
	job.UpdatedAt = parseTime(updated)
	return job, nil
}

func collectJobs(rows *sql.Rows) ([]project.Job, error) {
	defer rows.Close()
	var out []project.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}
