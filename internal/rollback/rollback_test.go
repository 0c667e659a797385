package rollback

import (
	"errors"
	"slices"
	"testing"

	"reelmill/internal/project"
	"reelmill/internal/services"
)

func finishedRow(lang string) project.LanguageProgress {
	row := project.LanguageProgress{ProjectID: "p", Language: lang}
	for _, stage := range project.Stages {
		row.SetStageDone(stage, true)
	}
	row.Artifacts.FinalVideoURL = "https://cdn/" + lang + ".mp4"
	return row
}

func TestPlanScopedToRequestedLanguages(t *testing.T) {
	p := project.Project{
		ID:            "p",
		Status:        project.StatusDone,
		Languages:     []string{"en", "es", "de"},
		FinalVideoURL: "https://cdn/en.mp4",
	}
	es := finishedRow("es")
	es.VideoPartsDone = false
	es.FinalVideoDone = false
	es.Disabled = true
	es.FailedStep = project.StageVideoParts
	es.FailureReason = "ffmpeg exited 1"
	rows := []project.LanguageProgress{finishedRow("en"), es, finishedRow("de")}

	result, err := Plan(p, rows, project.StatusProcessVideoPartsGeneration, []string{"es"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if result.Project.Status != project.StatusProcessVideoPartsGeneration {
		t.Fatalf("unexpected status %s", result.Project.Status)
	}
	if !slices.Equal(result.Reset, []string{"es"}) {
		t.Fatalf("unexpected reset set %v", result.Reset)
	}

	got := result.Progress[1]
	if got.Disabled || got.FailedStep != "" || got.FailureReason != "" || got.VideoPartsDone {
		t.Fatalf("es not reset: %+v", got)
	}
	if !got.ImagesDone {
		t.Fatal("es upstream flags must survive")
	}
	for _, idx := range []int{0, 2} {
		if !sameFlags(result.Progress[idx], rows[idx]) {
			t.Fatalf("row %s changed: %+v", rows[idx].Language, result.Progress[idx])
		}
	}
	if result.Project.FinalVideoURL != "https://cdn/en.mp4" {
		t.Fatal("primary language final video must survive a secondary-only rollback")
	}
}

func sameFlags(a, b project.LanguageProgress) bool {
	for _, stage := range project.Stages {
		if a.StageDone(stage) != b.StageDone(stage) {
			return false
		}
	}
	return a.Disabled == b.Disabled && a.FailedStep == b.FailedStep && a.Artifacts.FinalVideoURL == b.Artifacts.FinalVideoURL
}

func TestPlanAllLanguagesReenablesOnlyDownstreamFailures(t *testing.T) {
	p := project.Project{
		ID:            "p",
		Status:        project.StatusError,
		Languages:     []string{"en", "fr", "de"},
		FinalVideoURL: "https://cdn/en.mp4",
		VoiceoverURL:  "https://cdn/en.mp3",
	}
	fr := project.LanguageProgress{ProjectID: "p", Language: "fr", ScriptDone: true, Disabled: true, FailedStep: project.StageAudio}
	de := finishedRow("de")
	de.CaptionsDone, de.ImagesDone, de.VideoPartsDone, de.FinalVideoDone = false, false, false, false
	de.Disabled, de.FailedStep = true, project.StageCaptions
	rows := []project.LanguageProgress{finishedRow("en"), fr, de}

	result, err := Plan(p, rows, project.StatusProcessCaptionsVideo, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !result.Progress[1].Disabled {
		t.Fatal("fr failed upstream of captions and must stay disabled")
	}
	if result.Progress[2].Disabled {
		t.Fatal("de failed at captions and must be re-enabled")
	}
	en := result.Progress[0]
	if en.CaptionsDone || en.FinalVideoDone || en.Artifacts.FinalVideoURL != "" {
		t.Fatalf("en downstream not cleared: %+v", en)
	}
	if !en.MetadataDone {
		t.Fatal("en metadata must survive")
	}
	if result.Project.FinalVideoURL != "" {
		t.Fatal("expected project final video cleared")
	}
	if result.Project.VoiceoverURL == "" {
		t.Fatal("voiceover must survive a captions rollback")
	}
}

func TestPlanToAudioValidateKeepsCandidates(t *testing.T) {
	p := project.Project{ID: "p", Status: project.StatusProcessMetadata, Languages: []string{"en"}, VoiceoverURL: "v"}
	row := finishedRow("en")
	row.Artifacts.AudioCandidates = []string{"a", "b"}
	result, err := Plan(p, []project.LanguageProgress{row}, project.StatusProcessAudioValidate, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	got := result.Progress[0]
	if !got.AudioDone || len(got.Artifacts.AudioCandidates) != 2 {
		t.Fatalf("audio output must survive, got %+v", got)
	}
	if got.TranscriptionDone {
		t.Fatal("transcription must be cleared")
	}
	if result.Project.VoiceoverURL != "" {
		t.Fatal("voiceover choice must be cleared for re-validation")
	}
}

func TestPlanRejectsInvalidRequests(t *testing.T) {
	p := project.Project{ID: "p", Status: project.StatusProcessImagesGeneration, Languages: []string{"en"}}
	cases := []struct {
		target project.Status
		langs  []string
	}{
		{project.StatusDone, nil},
		{project.StatusProcessVideoMain, nil},
		{project.StatusProcessAudio, []string{"ja"}},
	}
	for _, tc := range cases {
		_, err := Plan(p, nil, tc.target, tc.langs)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Plan(%s, %v) expected validation error, got %v", tc.target, tc.langs, err)
		}
	}
}
