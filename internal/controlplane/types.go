package controlplane

import (
	"reelmill/internal/project"
)

// Wire shapes shared by the client and the reference server.

// Error codes carried by ErrorResponse.
const (
	// CodeAuth marks a request rejected for its credentials.
	CodeAuth = "auth"
	// CodeOwnership marks a write rejected because the caller does not
	// hold the project or the project moved.
	CodeOwnership = "ownership"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	ProjectID string             `json:"projectId"`
	Type      project.Stage      `json:"type"`
	Payload   project.JobPayload `json:"payload"`
}

// ExistsResponse is returned by GET /jobs/exists.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// ClaimResponse is returned by POST /jobs/{id}/claim.
type ClaimResponse struct {
	Claimed bool `json:"claimed"`
}

// JobStatusRequest is the body of POST /jobs/{id}/status.
type JobStatusRequest struct {
	Status  project.JobStatus `json:"status"`
	Message string            `json:"message,omitempty"`
}

// ScriptRequest is the body of POST /projects/{id}/script.
type ScriptRequest struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

// LanguageProgressRequest is the body of POST /projects/{id}/language-progress.
type LanguageProgressRequest struct {
	Rows []project.LanguageProgress `json:"rows"`
}

// UploadResponse is returned by POST /storage/upload.
type UploadResponse struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// RollbackRequest is the body of POST /admin/projects/{id}/rollback.
type RollbackRequest struct {
	TargetStatus     project.Status `json:"targetStatus"`
	LanguagesToReset []string       `json:"languagesToReset,omitempty"`
}

// RollbackResponse reports the applied rollback.
type RollbackResponse struct {
	Project  project.Project            `json:"project"`
	Progress []project.LanguageProgress `json:"progress"`
	Reset    []string                   `json:"reset"`
}

// ApproveRequest is the body of POST /admin/projects/{id}/approve. Voiceovers
// maps a language to the chosen audio candidate asset id.
type ApproveRequest struct {
	Voiceovers map[string]string `json:"voiceovers,omitempty"`
}

// CreateProjectRequest is the body of POST /admin/projects.
type CreateProjectRequest struct {
	UserID   string                   `json:"userId,omitempty"`
	Snapshot project.CreationSnapshot `json:"snapshot"`
}
