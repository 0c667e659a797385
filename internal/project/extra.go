package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Extra is the structured payload attached to a status transition. Each
// status accepts exactly one concrete Extra type; see ExtraFor.
type Extra interface {
	extra()
}

// ScriptExtra accompanies ProcessScriptValidate and ProcessAudio.
type ScriptExtra struct {
	ScriptLanguages []string `json:"scriptLanguages"`
	FailedLanguages []string `json:"failedLanguages,omitempty"`
}

// AudioExtra accompanies ProcessAudioValidate and ProcessTranscription.
type AudioExtra struct {
	AudioLanguages  []string          `json:"audioLanguages"`
	Candidates      int               `json:"candidates"`
	Voices          map[string]string `json:"voices,omitempty"`
	FailedLanguages []string          `json:"failedLanguages,omitempty"`
}

// TranscriptionExtra accompanies ProcessMetadata.
type TranscriptionExtra struct {
	TranscriptionLanguages []string `json:"transcriptionLanguages"`
	FailedLanguages        []string `json:"failedLanguages,omitempty"`
}

// MetadataExtra accompanies ProcessCaptionsVideo.
type MetadataExtra struct {
	MetadataLanguages []string `json:"metadataLanguages"`
	FailedLanguages   []string `json:"failedLanguages,omitempty"`
}

// CaptionsExtra accompanies ProcessImagesGeneration.
type CaptionsExtra struct {
	CaptionLanguages []string `json:"captionLanguages"`
	FailedLanguages  []string `json:"failedLanguages,omitempty"`
}

// ImagesExtra accompanies ProcessVideoPartsGeneration.
type ImagesExtra struct {
	ImageLanguages  []string `json:"imageLanguages"`
	SceneCount      int      `json:"sceneCount"`
	FailedLanguages []string `json:"failedLanguages,omitempty"`
}

// VideoPartsExtra accompanies ProcessVideoMain.
type VideoPartsExtra struct {
	PartLanguages   []string `json:"partLanguages"`
	FailedLanguages []string `json:"failedLanguages,omitempty"`
}

// DoneExtra accompanies Done. FailedLanguages is always present, possibly
// empty, so the UI can distinguish partial from full success.
type DoneExtra struct {
	FailedLanguages []string          `json:"failedLanguages"`
	FinalURLs       map[string]string `json:"finalUrls"`
	VideoLogs       map[string]string `json:"videoLogs,omitempty"`
}

// ErrorExtra accompanies Error.
type ErrorExtra struct {
	Stage           Stage    `json:"stage,omitempty"`
	Kind            string   `json:"kind,omitempty"`
	Reason          string   `json:"reason"`
	FailedLanguages []string `json:"failedLanguages,omitempty"`
	LogPath         string   `json:"logPath,omitempty"`
}

func (ScriptExtra) extra()        {}
func (AudioExtra) extra()         {}
func (TranscriptionExtra) extra() {}
func (MetadataExtra) extra()      {}
func (CaptionsExtra) extra()      {}
func (ImagesExtra) extra()        {}
func (VideoPartsExtra) extra()    {}
func (DoneExtra) extra()          {}
func (ErrorExtra) extra()         {}

// ExtraFor returns a zero value of the Extra type status accepts, or nil
// when the status carries no extra.
func ExtraFor(status Status) Extra {
	switch status {
	case StatusProcessScriptValidate, StatusProcessAudio:
		return &ScriptExtra{}
	case StatusProcessAudioValidate, StatusProcessTranscription:
		return &AudioExtra{}
	case StatusProcessMetadata:
		return &TranscriptionExtra{}
	case StatusProcessCaptionsVideo:
		return &MetadataExtra{}
	case StatusProcessImagesGeneration:
		return &CaptionsExtra{}
	case StatusProcessVideoPartsGeneration:
		return &ImagesExtra{}
	case StatusProcessVideoMain:
		return &VideoPartsExtra{}
	case StatusDone:
		return &DoneExtra{}
	case StatusError:
		return &ErrorExtra{}
	default:
		return nil
	}
}

// EncodeExtra serializes extra after checking it matches status.
func EncodeExtra(status Status, extra Extra) (json.RawMessage, error) {
	if extra == nil {
		return nil, nil
	}
	want := ExtraFor(status)
	if want == nil {
		return nil, fmt.Errorf("status %s does not accept an extra payload", status)
	}
	if indirectType(want) != indirectType(extra) {
		return nil, fmt.Errorf("status %s expects %s extra, got %s", status, indirectType(want), indirectType(extra))
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("encode %s extra: %w", status, err)
	}
	return data, nil
}

// DecodeExtra parses raw into the Extra type status accepts, rejecting
// unknown fields.
func DecodeExtra(status Status, raw json.RawMessage) (Extra, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	target := ExtraFor(status)
	if target == nil {
		return nil, fmt.Errorf("status %s does not accept an extra payload", status)
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return nil, fmt.Errorf("decode %s extra: %w", status, err)
	}
	return target, nil
}

func indirectType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
