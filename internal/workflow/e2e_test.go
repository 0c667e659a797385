package workflow_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelmill/internal/controlplane"
	"reelmill/internal/llm"
	"reelmill/internal/logging"
	"reelmill/internal/media"
	"reelmill/internal/phases"
	"reelmill/internal/project"
	"reelmill/internal/storage"
	"reelmill/internal/testsupport"
	"reelmill/internal/voices"
	"reelmill/internal/workflow"
)

const narration = "Lanterns flicker over the harbour. Fishermen mend their nets. Gulls circle the last boat home. The tide turns in the dark."

type writer struct{}

func (writer) Draft(context.Context, llm.DraftRequest) (string, error) { return narration, nil }

func (writer) Translate(_ context.Context, script, _, to string) (string, error) {
	return "[" + to + "] " + script, nil
}

func (writer) Metadata(_ context.Context, _, lang string) (project.VideoMetadata, error) {
	return project.VideoMetadata{Title: "Harbour " + lang, Description: "Night at the harbour.", Hashtags: []string{"#harbour"}}, nil
}

type narrators struct{}

func (narrators) Resolve(req voices.Request) (voices.Resolution, error) {
	return voices.Resolution{
		Voice:    voices.Voice{ID: "voice-" + req.Language, Provider: "stub"},
		Provider: voices.Provider{Name: "stub", Command: "stub-tts", Extension: "wav"},
		Source:   voices.SourceLanguage,
	}, nil
}

type speech struct{}

func (speech) Synthesize(_ context.Context, _ media.Runner, req media.SpeechRequest) (string, error) {
	out := req.OutputBase + ".wav"
	return out, os.WriteFile(out, []byte("RIFF"+req.Text), 0o644)
}

type transcriber struct{}

func (transcriber) Transcribe(_ context.Context, _ media.Runner, audio, outputDir, _ string) (string, error) {
	var words []media.Word
	for i, w := range strings.Fields(narration) {
		start := float64(i) * 0.5
		words = append(words, media.Word{Word: w, Start: start, End: start + 0.4})
	}
	data, err := json.Marshal(media.Transcript{Segments: []media.Segment{{
		Text:  narration,
		End:   words[len(words)-1].End,
		Words: words,
	}}})
	if err != nil {
		return "", err
	}
	out := filepath.Join(outputDir, strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))+".json")
	return out, os.WriteFile(out, data, 0o644)
}

type painter struct{}

func (painter) Generate(_ context.Context, _ media.Runner, req media.ImageRequest) (string, error) {
	return req.Output, os.WriteFile(req.Output, []byte(req.Prompt), 0o644)
}

type renderer struct{}

func (renderer) RenderPart(_ context.Context, _ media.Runner, req media.PartRequest) (string, error) {
	return req.Output, os.WriteFile(req.Output, []byte("part"), 0o644)
}

func (renderer) RenderMain(_ context.Context, _ media.Runner, req media.MainRequest) (string, error) {
	for _, p := range append(append([]string{}, req.Parts...), req.Voiceover, req.Captions) {
		if _, err := os.Stat(p); err != nil {
			return "", err
		}
	}
	return req.Output, os.WriteFile(req.Output, []byte("final"), 0o644)
}

type pipeline struct {
	plane   *testsupport.Plane
	client  *controlplane.Client
	manager *workflow.Manager
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	plane := testsupport.NewPlane(t)
	cfg := testsupport.NewConfig(t, testsupport.WithControlPlane(plane.URL()))
	client := plane.Client(cfg.Daemon.ID)

	registry := phases.NewRegistry(phases.Deps{
		Plane:       client,
		Storage:     storage.New(storage.NewPlaneBackend(client, plane.Server.Client())),
		Writer:      writer{},
		Voices:      narrators{},
		TTS:         speech{},
		Transcriber: transcriber{},
		Images:      painter{},
		Renderer:    renderer{},
		Observer:    workflow.NewObserver(nil, nil, logging.NewNop()),
		Settings: phases.Settings{
			LanguageConcurrency: 2,
			AudioCandidates:     2,
			SceneCount:          2,
			Width:               1080,
			Height:              1920,
			FPS:                 30,
		},
	})
	return &pipeline{
		plane:   plane,
		client:  client,
		manager: workflow.NewManager(cfg, client, registry, logging.NewNop()),
	}
}

// drive runs poll cycles until the project reaches a status without work.
func (p *pipeline) drive(t *testing.T, projectID string) project.Project {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for range 20 {
		require.NoError(t, p.manager.RunOnce(ctx))
		current, err := p.client.Project(ctx, projectID)
		require.NoError(t, err)
		if _, runnable := project.StageFor(current.Status); !runnable {
			return current
		}
	}
	t.Fatalf("project %s did not settle", projectID)
	return project.Project{}
}

func TestPipelineRunsToDoneAgainstControlPlane(t *testing.T) {
	p := newPipeline(t)
	created := p.plane.CreateProject(t, project.CreationSnapshot{
		Prompt:            "a harbour at night",
		Languages:         []string{"en", "es"},
		AutoApproveScript: true,
		AutoApproveAudio:  true,
		SceneCount:        2,
	})

	final := p.drive(t, created.ID)
	require.Equal(t, project.StatusDone, final.Status, final.StatusMessage)
	assert.Equal(t, "test-daemon", final.CurrentDaemonID)
	assert.NotEmpty(t, final.FinalVideoURL)

	ctx := context.Background()
	assets, err := p.client.Assets(ctx, created.ID)
	require.NoError(t, err)
	finals := map[string]string{}
	for _, a := range assets {
		if a.Kind == project.AssetVideo && a.IsFinal {
			finals[a.Language] = a.URL
		}
	}
	assert.Len(t, finals, 2)
	assert.Equal(t, finals["en"], final.FinalVideoURL)

	rows, err := p.client.LanguageProgress(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.FinalVideoDone, row.Language)
		assert.NotEmpty(t, row.Artifacts.VoiceoverID, row.Language)
	}

	script, err := p.client.Script(ctx, created.ID, "es")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(script.Text, "[es] "))

	history, err := p.client.History(ctx, created.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, project.StatusDone, history[len(history)-1].Status)

	queued, err := p.client.QueuedJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestPipelineWaitsAtGatesUntilApproved(t *testing.T) {
	p := newPipeline(t)
	created := p.plane.CreateProject(t, project.CreationSnapshot{
		Prompt:     "a harbour at night",
		Languages:  []string{"en"},
		SceneCount: 2,
	})

	held := p.drive(t, created.ID)
	require.Equal(t, project.StatusProcessScriptValidate, held.Status)

	ctx := context.Background()
	token := p.plane.AdminToken(t)
	_, err := p.client.Approve(ctx, token, created.ID, controlplane.ApproveRequest{})
	require.NoError(t, err)

	held = p.drive(t, created.ID)
	require.Equal(t, project.StatusProcessAudioValidate, held.Status)

	rows, err := p.client.LanguageProgress(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Artifacts.AudioCandidates, 2)
	assert.Empty(t, rows[0].Artifacts.VoiceoverID)

	approved, err := p.client.Approve(ctx, token, created.ID, controlplane.ApproveRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, approved.VoiceoverURL)
	assert.Equal(t, rows[0].Artifacts.AudioCandidates[0], approved.VoiceoverURL)

	final := p.drive(t, created.ID)
	require.Equal(t, project.StatusDone, final.Status, final.StatusMessage)
	assert.NotEmpty(t, final.FinalVideoURL)
}
