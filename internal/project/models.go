package project

import (
	"encoding/json"
	"strings"
	"time"
)

// Project is one video-generation unit as seen by the daemon.
type Project struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId,omitempty"`
	Status          Status    `json:"status"`
	Languages       []string  `json:"languages"`
	CurrentDaemonID string    `json:"currentDaemonId,omitempty"`
	Script          string    `json:"script,omitempty"`
	VoiceoverID     string    `json:"finalVoiceoverId,omitempty"`
	VoiceoverURL    string    `json:"finalVoiceoverUrl,omitempty"`
	FinalVideoID    string    `json:"finalVideoId,omitempty"`
	FinalVideoPath  string    `json:"finalVideoPath,omitempty"`
	FinalVideoURL   string    `json:"finalVideoUrl,omitempty"`
	StatusMessage   string    `json:"statusMessage,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// PrimaryLanguage returns the first configured language.
func (p Project) PrimaryLanguage() string {
	if len(p.Languages) == 0 {
		return ""
	}
	return p.Languages[0]
}

// OwnedBy reports whether daemonID may claim work on the project: it is
// unowned or already held by daemonID.
func (p Project) OwnedBy(daemonID string) bool {
	return p.CurrentDaemonID == "" || p.CurrentDaemonID == daemonID
}

// HeldBy reports whether daemonID holds the project's claim. An unowned
// project is held by nobody.
func (p Project) HeldBy(daemonID string) bool {
	return daemonID != "" && p.CurrentDaemonID == daemonID
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
	JobPaused  JobStatus = "paused"
)

// JobPayload carries stage-specific instructions.
type JobPayload struct {
	// Refinement is free text appended to the generation prompt.
	Refinement string `json:"refinement,omitempty"`
	// Language limits the job to a single language when set.
	Language string `json:"language,omitempty"`
}

// IsZero reports whether the payload carries no instructions.
func (p JobPayload) IsZero() bool {
	return strings.TrimSpace(p.Refinement) == "" && strings.TrimSpace(p.Language) == ""
}

// Job is a unit of work for one project and one stage.
type Job struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId"`
	Type      Stage      `json:"type"`
	Status    JobStatus  `json:"status"`
	DaemonID  string     `json:"daemonId,omitempty"`
	Payload   JobPayload `json:"payload"`
	Message   string     `json:"message,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// AssetKind classifies uploaded artifacts.
type AssetKind string

const (
	AssetAudio      AssetKind = "audio"
	AssetImage      AssetKind = "image"
	AssetVideo      AssetKind = "video"
	AssetTranscript AssetKind = "transcript"
	AssetCaptions   AssetKind = "captions"
)

// Asset is an uploaded artifact registered with the control plane.
type Asset struct {
	ID        string    `json:"id,omitempty"`
	ProjectID string    `json:"projectId"`
	Language  string    `json:"language"`
	Kind      AssetKind `json:"kind"`
	URL       string    `json:"url"`
	Path      string    `json:"path,omitempty"`
	IsFinal   bool      `json:"isFinal"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Script is the narration text for one language.
type Script struct {
	ProjectID string    `json:"projectId"`
	Language  string    `json:"language"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// StatusUpdate is the body of a project status transition.
type StatusUpdate struct {
	// From, when set, is the status the writer expects the project to be
	// in; the update is rejected once the project has moved elsewhere.
	From    Status          `json:"from,omitempty"`
	Status  Status          `json:"status"`
	Message string          `json:"message,omitempty"`
	Extra   json.RawMessage `json:"extra,omitempty"`
}

// HistoryEntry is one immutable row of the status audit trail.
type HistoryEntry struct {
	ID        int64           `json:"id"`
	ProjectID string          `json:"projectId"`
	Status    Status          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Extra     json.RawMessage `json:"extra,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
