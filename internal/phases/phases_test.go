package phases

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"reelmill/internal/project"
	"reelmill/internal/services"
	"reelmill/internal/storage"
)

func TestPipelineIsolatesFailingLanguage(t *testing.T) {
	h := newHarness(t, "en", "fr")
	h.writer.failMetadata["fr"] = services.Wrap(services.ErrExternalTool, "llm", "metadata", "model refused", nil)

	final, res := h.runUntil(project.StatusProcessScript)
	if final != project.StatusDone {
		t.Fatalf("final status = %s, want Done", final)
	}
	extra, ok := res.Extra.(*project.DoneExtra)
	if !ok {
		t.Fatalf("extra = %T, want *DoneExtra", res.Extra)
	}
	if !slices.Equal(extra.FailedLanguages, []string{"fr"}) {
		t.Fatalf("failed languages = %v, want [fr]", extra.FailedLanguages)
	}
	if _, ok := extra.FinalURLs["en"]; !ok || len(extra.FinalURLs) != 1 {
		t.Fatalf("final urls = %v, want only en", extra.FinalURLs)
	}
	if extra.VideoLogs["fr"] == "" {
		t.Fatalf("expected a log reference for fr, got %v", extra.VideoLogs)
	}
	fr := h.plane.row("fr")
	if !fr.Disabled || fr.FailedStep != project.StageMetadata || fr.FailureReason == "" {
		t.Fatalf("fr row = %+v, want disabled at metadata", fr)
	}
	if !slices.Equal(h.observer.disabled, []string{"fr:metadata"}) {
		t.Fatalf("observer saw %v", h.observer.disabled)
	}
	finals := h.plane.finalAssets()
	if len(finals) != 1 || finals[0].Language != "en" || finals[0].Kind != project.AssetVideo {
		t.Fatalf("final assets = %+v", finals)
	}
	en := h.plane.row("en")
	if !en.FinalVideoDone || en.Artifacts.FinalVideoID != finals[0].ID {
		t.Fatalf("en row = %+v", en)
	}
}

func TestPipelineCompletesEveryLanguage(t *testing.T) {
	h := newHarness(t, "en", "es")
	final, res := h.runUntil(project.StatusProcessScript)
	if final != project.StatusDone {
		t.Fatalf("final status = %s", final)
	}
	extra := res.Extra.(*project.DoneExtra)
	if extra.FailedLanguages == nil || len(extra.FailedLanguages) != 0 {
		t.Fatalf("failed languages = %#v, want empty non-nil", extra.FailedLanguages)
	}
	if len(h.plane.finalAssets()) != 2 {
		t.Fatalf("final assets = %d, want 2", len(h.plane.finalAssets()))
	}
	for _, lang := range []string{"en", "es"} {
		row := h.plane.row(lang)
		if len(row.Artifacts.AudioCandidates) != 2 {
			t.Fatalf("%s candidates = %v", lang, row.Artifacts.AudioCandidates)
		}
		if row.Artifacts.VoiceoverID == "" || row.Artifacts.VoiceoverURL != row.Artifacts.AudioCandidates[0] {
			t.Fatalf("%s voiceover not auto-approved: %+v", lang, row.Artifacts)
		}
		if len(row.Artifacts.ImageURLs) != 3 || len(row.Artifacts.PartURLs) != 3 {
			t.Fatalf("%s images=%d parts=%d, want 3", lang, len(row.Artifacts.ImageURLs), len(row.Artifacts.PartURLs))
		}
		if row.Metadata == nil || row.Metadata.Title == "" {
			t.Fatalf("%s metadata missing", lang)
		}
	}
	if _, ok := h.plane.scripts["es"]; !ok {
		t.Fatal("expected an es script")
	}
	if !slices.Equal(h.writer.translations, []string{"es"}) {
		t.Fatalf("translations = %v", h.writer.translations)
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	h := newHarness(t, "en")
	h.runUntil(project.StatusProcessScript)
	images := h.images.calls.Load()
	tts := h.tts.calls.Load()
	mains := h.renderer.mains

	for _, status := range []project.Status{project.StatusProcessAudio, project.StatusProcessImagesGeneration, project.StatusProcessVideoMain} {
		res, err := h.execute(status, project.JobPayload{})
		if err != nil {
			t.Fatalf("re-run %s: %v", status, err)
		}
		want, _ := project.Next(status, h.snapshot)
		if res.Next != want {
			t.Fatalf("re-run %s next = %s, want %s", status, res.Next, want)
		}
	}
	if h.images.calls.Load() != images || h.tts.calls.Load() != tts || h.renderer.mains != mains {
		t.Fatal("re-running completed stages repeated work")
	}
	if len(h.plane.finalAssets()) != 1 {
		t.Fatalf("final assets = %d, want 1", len(h.plane.finalAssets()))
	}
}

func TestImagesResumeAtFirstMissingScene(t *testing.T) {
	h := newHarness(t, "en")
	h.runUntil(project.StatusProcessScript)

	row := h.plane.row("en")
	row.ImagesDone = false
	row.Artifacts.ImageURLs = row.Artifacts.ImageURLs[:1]
	h.plane.rows["en"] = row
	before := h.images.calls.Load()

	if _, err := h.execute(project.StatusProcessImagesGeneration, project.JobPayload{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := h.images.calls.Load() - before; got != 2 {
		t.Fatalf("generated %d images, want 2", got)
	}
	if n := len(h.plane.row("en").Artifacts.ImageURLs); n != 3 {
		t.Fatalf("image urls = %d, want 3", n)
	}
}

func TestAllLanguagesFailed(t *testing.T) {
	h := newHarness(t, "en", "es")
	if _, err := h.execute(project.StatusProcessScript, project.JobPayload{}); err != nil {
		t.Fatalf("script: %v", err)
	}
	for _, lang := range []string{"en", "es"} {
		h.tts.fail[lang] = services.Wrap(services.ErrExternalTool, "tts", "synthesize", "voice crashed", nil)
	}
	_, err := h.execute(project.StatusProcessAudio, project.JobPayload{})
	if !errors.Is(err, ErrAllLanguagesFailed) {
		t.Fatalf("err = %v, want ErrAllLanguagesFailed", err)
	}
}

func TestTransientErrorDoesNotDisableLanguage(t *testing.T) {
	h := newHarness(t, "en", "es")
	if _, err := h.execute(project.StatusProcessScript, project.JobPayload{}); err != nil {
		t.Fatalf("script: %v", err)
	}
	h.tts.fail["es"] = services.Wrap(services.ErrTransient, "tts", "synthesize", "provider busy", nil)
	_, err := h.execute(project.StatusProcessAudio, project.JobPayload{})
	if !services.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if h.plane.row("es").Disabled {
		t.Fatal("transient failure must not disable the language")
	}
}

func TestTranslationFailureDisablesOnlyThatLanguage(t *testing.T) {
	h := newHarness(t, "en", "de", "es")
	h.writer.failTranslate["de"] = services.Wrap(services.ErrExternalTool, "llm", "translate", "bad output", nil)
	res, err := h.execute(project.StatusProcessScript, project.JobPayload{})
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	extra := res.Extra.(*project.ScriptExtra)
	if !slices.Equal(extra.ScriptLanguages, []string{"en", "es"}) || !slices.Equal(extra.FailedLanguages, []string{"de"}) {
		t.Fatalf("extra = %+v", extra)
	}
	if res.Next != project.StatusProcessAudio {
		t.Fatalf("next = %s, want ProcessAudio", res.Next)
	}
}

func TestPrimaryDraftFailureDisablesOnlyPrimary(t *testing.T) {
	h := newHarness(t, "en", "es", "de")
	h.writer.failDraft["en"] = services.Wrap(services.ErrExternalTool, "llm", "draft", "model refused", nil)
	res, err := h.execute(project.StatusProcessScript, project.JobPayload{})
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	if res.Next != project.StatusProcessAudio {
		t.Fatalf("next = %s, want ProcessAudio", res.Next)
	}
	en := h.plane.row("en")
	if !en.Disabled || en.FailedStep != project.StageScript {
		t.Fatalf("en row = %+v, want disabled at script", en)
	}
	for _, lang := range []string{"es", "de"} {
		if row := h.plane.row(lang); row.Disabled || !row.ScriptDone {
			t.Fatalf("%s row = %+v, want script done", lang, row)
		}
	}
	extra := res.Extra.(*project.ScriptExtra)
	if !slices.Equal(extra.FailedLanguages, []string{"en"}) {
		t.Fatalf("extra = %+v", extra)
	}
}

func TestEveryDraftFailing(t *testing.T) {
	h := newHarness(t, "en", "es", "de")
	for _, lang := range []string{"en", "es", "de"} {
		h.writer.failDraft[lang] = services.Wrap(services.ErrExternalTool, "llm", "draft", "model refused", nil)
	}
	_, err := h.execute(project.StatusProcessScript, project.JobPayload{})
	if !errors.Is(err, ErrAllLanguagesFailed) {
		t.Fatalf("err = %v, want ErrAllLanguagesFailed", err)
	}
	for _, lang := range []string{"en", "es", "de"} {
		if row := h.plane.row(lang); !row.Disabled || row.FailedStep != project.StageScript {
			t.Fatalf("%s row = %+v, want disabled at script", lang, row)
		}
	}
}

func TestRollbackRendersRegeneratedImages(t *testing.T) {
	h := newHarness(t, "en", "es")
	h.storage = storage.New(&memBackend{objects: map[string][]byte{}})
	h.rebuild()
	if status, _ := h.runUntil(project.StatusProcessScript); status != project.StatusDone {
		t.Fatalf("first run ended at %s", status)
	}

	h.rollback("es", project.StageImages)
	h.snapshot.UseGuidance = true
	h.snapshot.StylePrompt = "charcoal sketch"
	h.renderer.images = nil
	if status, _ := h.runUntil(project.StatusProcessImagesGeneration); status != project.StatusDone {
		t.Fatalf("rerun ended at %s", status)
	}

	if len(h.renderer.images) == 0 {
		t.Fatal("no parts rendered after rollback")
	}
	for i, image := range h.renderer.images {
		if !strings.Contains(image, "charcoal sketch") {
			t.Fatalf("part %d rendered from stale image %q", i+1, image)
		}
	}
}

func TestScriptPayloadRegeneratesOneLanguage(t *testing.T) {
	h := newHarness(t, "en", "es")
	h.runUntil(project.StatusProcessScript)
	drafts := len(h.writer.drafts)

	if _, err := h.execute(project.StatusProcessScript, project.JobPayload{Language: "es"}); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if len(h.writer.drafts) != drafts {
		t.Fatal("regenerating a secondary language must not redraft the primary")
	}
	es := h.plane.row("es")
	if !es.ScriptDone || es.AudioDone || es.FinalVideoDone {
		t.Fatalf("es row = %+v, want script done and downstream cleared", es)
	}
	if !h.plane.row("en").FinalVideoDone {
		t.Fatal("en progress must be untouched")
	}
}

func TestScriptRefinementPassesPreviousDraft(t *testing.T) {
	h := newHarness(t, "en")
	if _, err := h.execute(project.StatusProcessScript, project.JobPayload{}); err != nil {
		t.Fatalf("script: %v", err)
	}
	if _, err := h.execute(project.StatusProcessScript, project.JobPayload{Refinement: "mention the mill"}); err != nil {
		t.Fatalf("refine: %v", err)
	}
	last := h.writer.drafts[len(h.writer.drafts)-1]
	if last.Previous != testScript || last.Refinement != "mention the mill" {
		t.Fatalf("draft request = %+v", last)
	}
}

func TestAudioGateLeavesVoiceoverForApproval(t *testing.T) {
	h := newHarness(t, "en")
	h.snapshot.AutoApproveAudio = false
	if _, err := h.execute(project.StatusProcessScript, project.JobPayload{}); err != nil {
		t.Fatalf("script: %v", err)
	}
	res, err := h.execute(project.StatusProcessAudio, project.JobPayload{})
	if err != nil {
		t.Fatalf("audio: %v", err)
	}
	if res.Next != project.StatusProcessAudioValidate {
		t.Fatalf("next = %s, want ProcessAudioValidate", res.Next)
	}
	if h.plane.row("en").Artifacts.VoiceoverURL != "" {
		t.Fatal("voiceover must wait for approval")
	}
	if _, err := h.execute(project.StatusProcessTranscription, project.JobPayload{}); err != nil {
		t.Fatalf("transcription: %v", err)
	}
	row := h.plane.row("en")
	if row.Artifacts.VoiceoverURL != row.Artifacts.AudioCandidates[0] || row.Artifacts.VoiceoverID == "" {
		t.Fatalf("voiceover = %+v, want first candidate", row.Artifacts)
	}
}

func TestMissingUpstreamArtifactAbortsJob(t *testing.T) {
	h := newHarness(t, "en")
	_, err := h.execute(project.StatusProcessCaptionsVideo, project.JobPayload{})
	if err == nil {
		t.Fatal("expected an error without a transcript")
	}
	if h.plane.row("en").Disabled {
		t.Fatal("missing upstream artifacts must not disable the language")
	}
}

func TestCancelledContextAborts(t *testing.T) {
	h := newHarness(t, "en", "es")
	if _, err := h.execute(project.StatusProcessScript, project.JobPayload{}); err != nil {
		t.Fatalf("script: %v", err)
	}
	h.tts.fail["en"] = context.Canceled
	h.tts.fail["es"] = context.Canceled
	_, err := h.execute(project.StatusProcessAudio, project.JobPayload{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(h.plane.row("en").FailedStep) != 0 {
		t.Fatal("cancellation must not disable languages")
	}
}
