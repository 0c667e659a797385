package project

import "fmt"

// Status is a project's position in the production pipeline.
type Status string

const (
	StatusNew                         Status = "New"
	StatusProcessScript               Status = "ProcessScript"
	StatusProcessScriptValidate       Status = "ProcessScriptValidate"
	StatusProcessAudio                Status = "ProcessAudio"
	StatusProcessAudioValidate        Status = "ProcessAudioValidate"
	StatusProcessTranscription        Status = "ProcessTranscription"
	StatusProcessMetadata             Status = "ProcessMetadata"
	StatusProcessCaptionsVideo        Status = "ProcessCaptionsVideo"
	StatusProcessImagesGeneration     Status = "ProcessImagesGeneration"
	StatusProcessVideoPartsGeneration Status = "ProcessVideoPartsGeneration"
	StatusProcessVideoMain            Status = "ProcessVideoMain"
	StatusDone                        Status = "Done"
	StatusError                       Status = "Error"
	StatusCancelled                   Status = "Cancelled"
)

// pipeline lists the non-terminal statuses in order.
var pipeline = []Status{
	StatusNew,
	StatusProcessScript,
	StatusProcessScriptValidate,
	StatusProcessAudio,
	StatusProcessAudioValidate,
	StatusProcessTranscription,
	StatusProcessMetadata,
	StatusProcessCaptionsVideo,
	StatusProcessImagesGeneration,
	StatusProcessVideoPartsGeneration,
	StatusProcessVideoMain,
	StatusDone,
}

// ParseStatus validates a status string received from the control plane.
func ParseStatus(value string) (Status, error) {
	status := Status(value)
	if status == StatusError || status == StatusCancelled {
		return status, nil
	}
	for _, s := range pipeline {
		if s == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown project status %q", value)
}

// IsTerminal reports whether no further pipeline work happens in this status.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// IsValidationGate reports whether the status waits for a human decision.
func (s Status) IsValidationGate() bool {
	return s == StatusProcessScriptValidate || s == StatusProcessAudioValidate
}

// Index returns the status position in the pipeline, or -1 for Error and
// Cancelled.
func (s Status) Index() int {
	for i, candidate := range pipeline {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Before reports whether s precedes other in the pipeline.
func (s Status) Before(other Status) bool {
	a, b := s.Index(), other.Index()
	return a >= 0 && b >= 0 && a < b
}

// Next returns the status that follows s once its phase completed for every
// enabled language. Validation gates are skipped when the snapshot
// auto-approves the stage that precedes them.
func Next(s Status, snapshot CreationSnapshot) (Status, error) {
	switch s {
	case StatusNew:
		return StatusProcessScript, nil
	case StatusProcessScript:
		if snapshot.AutoApproveScript {
			return StatusProcessAudio, nil
		}
		return StatusProcessScriptValidate, nil
	case StatusProcessScriptValidate:
		return StatusProcessAudio, nil
	case StatusProcessAudio:
		if snapshot.AutoApproveAudio {
			return StatusProcessTranscription, nil
		}
		return StatusProcessAudioValidate, nil
	case StatusProcessAudioValidate:
		return StatusProcessTranscription, nil
	case StatusProcessTranscription:
		return StatusProcessMetadata, nil
	case StatusProcessMetadata:
		return StatusProcessCaptionsVideo, nil
	case StatusProcessCaptionsVideo:
		return StatusProcessImagesGeneration, nil
	case StatusProcessImagesGeneration:
		return StatusProcessVideoPartsGeneration, nil
	case StatusProcessVideoPartsGeneration:
		return StatusProcessVideoMain, nil
	case StatusProcessVideoMain:
		return StatusDone, nil
	default:
		return "", fmt.Errorf("status %s has no successor", s)
	}
}

// StageFor returns the pipeline stage whose job executes in status s.
// Validation gates and terminal statuses have no job.
func StageFor(s Status) (Stage, bool) {
	switch s {
	case StatusNew, StatusProcessScript:
		return StageScript, true
	case StatusProcessAudio:
		return StageAudio, true
	case StatusProcessTranscription:
		return StageTranscription, true
	case StatusProcessMetadata:
		return StageMetadata, true
	case StatusProcessCaptionsVideo:
		return StageCaptions, true
	case StatusProcessImagesGeneration:
		return StageImages, true
	case StatusProcessVideoPartsGeneration:
		return StageVideoParts, true
	case StatusProcessVideoMain:
		return StageVideoMain, true
	default:
		return "", false
	}
}

// OwningStage returns the stage a status belongs to, including validation
// gates (ProcessAudioValidate belongs to audio).
func OwningStage(s Status) (Stage, bool) {
	switch s {
	case StatusProcessScriptValidate:
		return StageScript, true
	case StatusProcessAudioValidate:
		return StageAudio, true
	default:
		return StageFor(s)
	}
}
