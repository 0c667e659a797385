package controlplane

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"reelmill/internal/project"
)

// Health checks control-plane liveness.
func (c *Client) Health(ctx context.Context) error {
	var resp HealthResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/health", retry: true, operation: "health"}, &resp); err != nil {
		return err
	}
	if status := strings.ToLower(strings.TrimSpace(resp.Status)); status != "" && status != "ok" {
		return fmt.Errorf("control plane unhealthy: %s", resp.Status)
	}
	return nil
}

// QueuedJobs lists up to limit queued jobs visible to this daemon.
func (c *Client) QueuedJobs(ctx context.Context, limit int) ([]project.Job, error) {
	var jobs []project.Job
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	err := c.do(ctx, request{method: http.MethodGet, path: "/jobs/queue", query: query, retry: true, operation: "queued jobs"}, &jobs)
	return jobs, err
}

// CreateJob queues a job. The control plane rejects it with 403 when another
// daemon owns the project.
func (c *Client) CreateJob(ctx context.Context, projectID string, stage project.Stage, payload project.JobPayload) (project.Job, error) {
	var job project.Job
	body := CreateJobRequest{ProjectID: projectID, Type: stage, Payload: payload}
	err := c.do(ctx, request{method: http.MethodPost, path: "/jobs", body: body, operation: "create job"}, &job)
	return job, err
}

// JobExists reports whether a queued or running job of stage exists.
func (c *Client) JobExists(ctx context.Context, projectID string, stage project.Stage) (bool, error) {
	var resp ExistsResponse
	query := url.Values{"projectId": {projectID}, "type": {string(stage)}}
	err := c.do(ctx, request{method: http.MethodGet, path: "/jobs/exists", query: query, retry: true, operation: "job exists"}, &resp)
	return resp.Exists, err
}

// ClaimJob attempts the atomic claim. A lost race returns false, nil.
func (c *Client) ClaimJob(ctx context.Context, jobID string) (bool, error) {
	var resp ClaimResponse
	req := request{
		method:      http.MethodPost,
		path:        jobPath(jobID, "claim"),
		operation:   "claim job",
		allowStatus: []int{http.StatusConflict},
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return false, err
	}
	return resp.Claimed, nil
}

// UpdateJobStatus marks a job running, done, or failed.
func (c *Client) UpdateJobStatus(ctx context.Context, jobID string, status project.JobStatus, message string) error {
	body := JobStatusRequest{Status: status, Message: message}
	return c.do(ctx, request{method: http.MethodPost, path: jobPath(jobID, "status"), body: body, retry: true, operation: "job status"}, nil)
}

// EligibleProjects lists projects whose status needs a job.
func (c *Client) EligibleProjects(ctx context.Context, limit int) ([]project.Project, error) {
	var projects []project.Project
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	err := c.do(ctx, request{method: http.MethodGet, path: "/projects/eligible", query: query, retry: true, operation: "eligible projects"}, &projects)
	return projects, err
}

// Project fetches the current project record.
func (c *Client) Project(ctx context.Context, projectID string) (project.Project, error) {
	var p project.Project
	err := c.do(ctx, request{method: http.MethodGet, path: projectPath(projectID), retry: true, operation: "get project"}, &p)
	return p, err
}

// CreationSnapshot fetches the project's creation snapshot.
func (c *Client) CreationSnapshot(ctx context.Context, projectID string) (project.CreationSnapshot, error) {
	var snap project.CreationSnapshot
	err := c.do(ctx, request{method: http.MethodGet, path: projectPath(projectID, "creation-snapshot"), retry: true, operation: "creation snapshot"}, &snap)
	return snap, err
}

// Script reads the script for lang; an empty lang selects the primary language.
func (c *Client) Script(ctx context.Context, projectID, lang string) (project.Script, error) {
	var script project.Script
	var query url.Values
	if lang != "" {
		query = url.Values{"language": {lang}}
	}
	err := c.do(ctx, request{method: http.MethodGet, path: projectPath(projectID, "script"), query: query, retry: true, operation: "get script"}, &script)
	return script, err
}

// SaveScript writes the script for lang.
func (c *Client) SaveScript(ctx context.Context, projectID, lang, text string) error {
	body := ScriptRequest{Language: lang, Text: text}
	return c.do(ctx, request{method: http.MethodPost, path: projectPath(projectID, "script"), body: body, retry: true, operation: "save script"}, nil)
}

// UpdateProjectStatus moves the project from one status to another with a
// typed extra. The plane rejects the write with ErrConflict when the project
// is no longer in from.
func (c *Client) UpdateProjectStatus(ctx context.Context, projectID string, from, status project.Status, message string, extra project.Extra) error {
	raw, err := project.EncodeExtra(status, extra)
	if err != nil {
		return err
	}
	body := project.StatusUpdate{From: from, Status: status, Message: message, Extra: raw}
	return c.do(ctx, request{method: http.MethodPost, path: projectPath(projectID, "status"), body: body, retry: true, operation: "project status"}, nil)
}

// LanguageProgress reads every progress row of the project.
func (c *Client) LanguageProgress(ctx context.Context, projectID string) ([]project.LanguageProgress, error) {
	var rows []project.LanguageProgress
	err := c.do(ctx, request{method: http.MethodGet, path: projectPath(projectID, "language-progress"), retry: true, operation: "get language progress"}, &rows)
	return rows, err
}

// SaveLanguageProgress upserts progress rows.
func (c *Client) SaveLanguageProgress(ctx context.Context, projectID string, rows []project.LanguageProgress) error {
	body := LanguageProgressRequest{Rows: rows}
	return c.do(ctx, request{method: http.MethodPost, path: projectPath(projectID, "language-progress"), body: body, retry: true, operation: "save language progress"}, nil)
}

// RegisterAsset records an uploaded artifact.
func (c *Client) RegisterAsset(ctx context.Context, asset project.Asset) (project.Asset, error) {
	var created project.Asset
	err := c.do(ctx, request{method: http.MethodPost, path: projectPath(asset.ProjectID, "assets"), body: asset, operation: "register asset"}, &created)
	return created, err
}

// Assets lists registered assets of the project.
func (c *Client) Assets(ctx context.Context, projectID string) ([]project.Asset, error) {
	var assets []project.Asset
	err := c.do(ctx, request{method: http.MethodGet, path: projectPath(projectID, "assets"), retry: true, operation: "list assets"}, &assets)
	return assets, err
}

// History lists the status audit trail of the project.
func (c *Client) History(ctx context.Context, projectID string) ([]project.HistoryEntry, error) {
	var entries []project.HistoryEntry
	err := c.do(ctx, request{method: http.MethodGet, path: projectPath(projectID, "history"), retry: true, operation: "history"}, &entries)
	return entries, err
}

// Upload sends localPath to the storage endpoint under objectPath.
func (c *Client) Upload(ctx context.Context, objectPath, localPath, contentType string) (UploadResponse, error) {
	var resp UploadResponse
	build := func() (io.Reader, string, error) {
		file, err := os.Open(localPath)
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		if err := writer.WriteField("path", objectPath); err != nil {
			return nil, "", err
		}
		if err := writer.WriteField("contentType", contentType); err != nil {
			return nil, "", err
		}
		part, err := writer.CreateFormFile("file", filepath.Base(localPath))
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", err
		}
		if err := writer.Close(); err != nil {
			return nil, "", err
		}
		return &buf, writer.FormDataContentType(), nil
	}
	err := c.do(ctx, request{method: http.MethodPost, path: "/storage/upload", raw: build, retry: true, operation: "upload"}, &resp)
	return resp, err
}

// Rollback asks the control plane to apply an admin rollback. token is an
// operator JWT minted with MintAdminToken.
func (c *Client) Rollback(ctx context.Context, token, projectID string, req RollbackRequest) (RollbackResponse, error) {
	var resp RollbackResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/admin" + projectPath(projectID, "rollback"),
		body:      req,
		bearer:    token,
		operation: "rollback",
	}, &resp)
	return resp, err
}

// Approve releases a project waiting at a validation gate.
func (c *Client) Approve(ctx context.Context, token, projectID string, req ApproveRequest) (project.Project, error) {
	var p project.Project
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/admin" + projectPath(projectID, "approve"),
		body:      req,
		bearer:    token,
		operation: "approve",
	}, &p)
	return p, err
}

// CreateProject registers a new project with its creation snapshot.
func (c *Client) CreateProject(ctx context.Context, token string, req CreateProjectRequest) (project.Project, error) {
	var p project.Project
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/admin/projects",
		body:      req,
		bearer:    token,
		operation: "create project",
	}, &p)
	return p, err
}

// Projects lists every project, most recently updated first.
func (c *Client) Projects(ctx context.Context, token string) ([]project.Project, error) {
	var projects []project.Project
	err := c.do(ctx, request{
		method:    http.MethodGet,
		path:      "/admin/projects",
		bearer:    token,
		retry:     true,
		operation: "list projects",
	}, &projects)
	return projects, err
}
