package project

import "time"

// Artifacts records the uploaded outputs of a language so later stages (and
// resumed runs on another host) can fetch them.
type Artifacts struct {
	AudioCandidates []string `json:"audioCandidates,omitempty"`
	VoiceoverID     string   `json:"voiceoverId,omitempty"`
	VoiceoverURL    string   `json:"voiceoverUrl,omitempty"`
	TranscriptURL   string   `json:"transcriptUrl,omitempty"`
	CaptionsURL     string   `json:"captionsUrl,omitempty"`
	ImageURLs       []string `json:"imageUrls,omitempty"`
	PartURLs        []string `json:"partUrls,omitempty"`
	FinalVideoID    string   `json:"finalVideoId,omitempty"`
	FinalVideoURL   string   `json:"finalVideoUrl,omitempty"`
}

// VideoMetadata is the publishing copy generated for a language.
type VideoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags,omitempty"`
}

// LanguageProgress is the per (project, language) completion record.
type LanguageProgress struct {
	ProjectID string `json:"projectId"`
	Language  string `json:"language"`

	ScriptDone        bool `json:"scriptDone"`
	AudioDone         bool `json:"audioDone"`
	TranscriptionDone bool `json:"transcriptionDone"`
	MetadataDone      bool `json:"metadataDone"`
	CaptionsDone      bool `json:"captionsDone"`
	ImagesDone        bool `json:"imagesDone"`
	VideoPartsDone    bool `json:"videoPartsDone"`
	FinalVideoDone    bool `json:"finalVideoDone"`

	Disabled      bool   `json:"disabled"`
	FailedStep    Stage  `json:"failedStep,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`

	Artifacts Artifacts      `json:"artifacts"`
	Metadata  *VideoMetadata `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt,omitempty"`
}

// StageDone reports the completion flag for stage.
func (p LanguageProgress) StageDone(stage Stage) bool {
	switch stage {
	case StageScript:
		return p.ScriptDone
	case StageAudio:
		return p.AudioDone
	case StageTranscription:
		return p.TranscriptionDone
	case StageMetadata:
		return p.MetadataDone
	case StageCaptions:
		return p.CaptionsDone
	case StageImages:
		return p.ImagesDone
	case StageVideoParts:
		return p.VideoPartsDone
	case StageVideoMain:
		return p.FinalVideoDone
	default:
		return false
	}
}

// SetStageDone updates the completion flag for stage.
func (p *LanguageProgress) SetStageDone(stage Stage, done bool) {
	switch stage {
	case StageScript:
		p.ScriptDone = done
	case StageAudio:
		p.AudioDone = done
	case StageTranscription:
		p.TranscriptionDone = done
	case StageMetadata:
		p.MetadataDone = done
	case StageCaptions:
		p.CaptionsDone = done
	case StageImages:
		p.ImagesDone = done
	case StageVideoParts:
		p.VideoPartsDone = done
	case StageVideoMain:
		p.FinalVideoDone = done
	}
}

// ClearFrom resets the completion flags and artifacts of stage and every
// downstream stage.
func (p *LanguageProgress) ClearFrom(stage Stage) {
	from := stage.Index()
	if from < 0 {
		return
	}
	for _, s := range Stages[from:] {
		p.SetStageDone(s, false)
		p.clearArtifacts(s)
	}
}

// Enable clears the disabled marker and its failure details.
func (p *LanguageProgress) Enable() {
	p.Disabled = false
	p.FailedStep = ""
	p.FailureReason = ""
}

func (p *LanguageProgress) clearArtifacts(stage Stage) {
	switch stage {
	case StageAudio:
		p.Artifacts.AudioCandidates = nil
		p.Artifacts.VoiceoverID = ""
		p.Artifacts.VoiceoverURL = ""
	case StageTranscription:
		p.Artifacts.TranscriptURL = ""
	case StageMetadata:
		p.Metadata = nil
	case StageCaptions:
		p.Artifacts.CaptionsURL = ""
	case StageImages:
		p.Artifacts.ImageURLs = nil
	case StageVideoParts:
		p.Artifacts.PartURLs = nil
	case StageVideoMain:
		p.Artifacts.FinalVideoID = ""
		p.Artifacts.FinalVideoURL = ""
	}
}
