package project

import "fmt"

// Stage names one unit of pipeline work. It doubles as the job type and as
// the value recorded in LanguageProgress.FailedStep.
type Stage string

const (
	StageScript        Stage = "script"
	StageAudio         Stage = "audio"
	StageTranscription Stage = "transcription"
	StageMetadata      Stage = "metadata"
	StageCaptions      Stage = "captions"
	StageImages        Stage = "images"
	StageVideoParts    Stage = "video_parts"
	StageVideoMain     Stage = "video_main"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageScript,
	StageAudio,
	StageTranscription,
	StageMetadata,
	StageCaptions,
	StageImages,
	StageVideoParts,
	StageVideoMain,
}

// ParseStage validates a stage or job type string.
func ParseStage(value string) (Stage, error) {
	for _, s := range Stages {
		if string(s) == value {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", value)
}

// Index returns the stage position, or -1 when unknown.
func (s Stage) Index() int {
	for i, candidate := range Stages {
		if candidate == s {
			return i
		}
	}
	return -1
}

// AtOrAfter reports whether s runs at or downstream of other.
func (s Stage) AtOrAfter(other Stage) bool {
	a, b := s.Index(), other.Index()
	return a >= 0 && b >= 0 && a >= b
}

// Status returns the processing status in which the stage's job runs.
func (s Stage) Status() Status {
	switch s {
	case StageScript:
		return StatusProcessScript
	case StageAudio:
		return StatusProcessAudio
	case StageTranscription:
		return StatusProcessTranscription
	case StageMetadata:
		return StatusProcessMetadata
	case StageCaptions:
		return StatusProcessCaptionsVideo
	case StageImages:
		return StatusProcessImagesGeneration
	case StageVideoParts:
		return StatusProcessVideoPartsGeneration
	case StageVideoMain:
		return StatusProcessVideoMain
	default:
		return ""
	}
}
