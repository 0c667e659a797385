package phases

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"reelmill/internal/llm"
	"reelmill/internal/logging"
	"reelmill/internal/media"
	"reelmill/internal/progress"
	"reelmill/internal/project"
	"reelmill/internal/services"
	"reelmill/internal/storage"
	"reelmill/internal/voices"
	"reelmill/internal/workspace"
)

const testScript = "The river wakes before dawn. Herons fish the shallows. Boats drift past the old mill. Night returns to the water."

type fakePlane struct {
	mu      sync.Mutex
	rows    map[string]project.LanguageProgress
	scripts map[string]string
	assets  []project.Asset
	saves   int
}

func newFakePlane() *fakePlane {
	return &fakePlane{rows: map[string]project.LanguageProgress{}, scripts: map[string]string{}}
}

func (f *fakePlane) LanguageProgress(_ context.Context, _ string) ([]project.LanguageProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []project.LanguageProgress
	for _, row := range f.rows {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakePlane) SaveLanguageProgress(_ context.Context, _ string, rows []project.LanguageProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	for _, row := range rows {
		f.rows[row.Language] = row
	}
	return nil
}

func (f *fakePlane) Script(_ context.Context, projectID, lang string) (project.Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.scripts[lang]
	if !ok {
		return project.Script{}, services.Wrap(services.ErrNotFound, "control_plane", "get script", "", nil)
	}
	return project.Script{ProjectID: projectID, Language: lang, Text: text}, nil
}

func (f *fakePlane) SaveScript(_ context.Context, _ string, lang, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[lang] = text
	return nil
}

func (f *fakePlane) RegisterAsset(_ context.Context, asset project.Asset) (project.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	asset.ID = fmt.Sprintf("asset-%d", len(f.assets)+1)
	f.assets = append(f.assets, asset)
	return asset, nil
}

func (f *fakePlane) Assets(_ context.Context, _ string) ([]project.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.assets), nil
}

func (f *fakePlane) row(lang string) project.LanguageProgress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[lang]
}

func (f *fakePlane) finalAssets() []project.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []project.Asset
	for _, a := range f.assets {
		if a.IsFinal {
			out = append(out, a)
		}
	}
	return out
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (s *fakeStorage) Upload(_ context.Context, projectID, lang string, stage project.Stage, localPath string) (storage.Object, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return storage.Object{}, services.Wrap(services.ErrValidation, "storage", "upload", "artifact missing", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	objectPath := storage.ObjectPath(projectID, lang, stage, fmt.Sprintf("v%d", s.uploads), filepath.Base(localPath))
	url := "mem://" + objectPath
	s.objects[url] = data
	return storage.Object{Path: objectPath, URL: url}, nil
}

func (s *fakeStorage) Ensure(_ context.Context, obj storage.Object, dest string) error {
	s.mu.Lock()
	data, ok := s.objects[obj.URL]
	s.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "storage", "get", obj.URL, nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// memBackend is an object store for the real storage.Store.
type memBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memBackend) Put(_ context.Context, objectPath, localPath, _ string) (storage.Object, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return storage.Object{}, err
	}
	url := "mem://" + objectPath
	m.mu.Lock()
	m.objects[url] = data
	m.mu.Unlock()
	return storage.Object{Path: objectPath, URL: url}, nil
}

func (m *memBackend) Get(_ context.Context, obj storage.Object, dest string) error {
	m.mu.Lock()
	data, ok := m.objects[obj.URL]
	m.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "storage", "get", obj.URL, nil)
	}
	return os.WriteFile(dest, data, 0o644)
}

type fakeWriter struct {
	mu            sync.Mutex
	drafts        []llm.DraftRequest
	translations  []string
	failDraft     map[string]error
	failMetadata  map[string]error
	failTranslate map[string]error
}

func (w *fakeWriter) Draft(_ context.Context, req llm.DraftRequest) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.drafts = append(w.drafts, req)
	if err := w.failDraft[req.Language]; err != nil {
		return "", err
	}
	if req.Refinement != "" {
		return testScript + " " + req.Refinement + ".", nil
	}
	return testScript, nil
}

func (w *fakeWriter) Translate(_ context.Context, script, _, to string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.failTranslate[to]; err != nil {
		return "", err
	}
	w.translations = append(w.translations, to)
	return script, nil
}

func (w *fakeWriter) Metadata(_ context.Context, _, lang string) (project.VideoMetadata, error) {
	if err := w.failMetadata[lang]; err != nil {
		return project.VideoMetadata{}, err
	}
	return project.VideoMetadata{Title: "River " + lang, Description: "A day on the river.", Hashtags: []string{"#river"}}, nil
}

type fakeVoices struct{}

func (fakeVoices) Resolve(req voices.Request) (voices.Resolution, error) {
	id := req.VoiceID
	if id == "" {
		id = "voice-" + req.Language
	}
	return voices.Resolution{
		Voice:    voices.Voice{ID: id, Provider: "fake"},
		Provider: voices.Provider{Name: "fake", Command: "fake-tts", Extension: "wav"},
		Source:   voices.SourceRequested,
	}, nil
}

type fakeTTS struct {
	calls atomic.Int32
	fail  map[string]error
}

func (f *fakeTTS) Synthesize(_ context.Context, _ media.Runner, req media.SpeechRequest) (string, error) {
	f.calls.Add(1)
	if err := f.fail[req.Language]; err != nil {
		return "", err
	}
	out := req.OutputBase + ".wav"
	return out, os.WriteFile(out, []byte("RIFF"+req.Text), 0o644)
}

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(_ context.Context, _ media.Runner, audio, outputDir, _ string) (string, error) {
	var words []media.Word
	for i, w := range strings.Fields(testScript) {
		start := float64(i) * 0.4
		words = append(words, media.Word{Word: w, Start: start, End: start + 0.35})
	}
	doc := media.Transcript{Segments: []media.Segment{{
		Text:  testScript,
		Start: 0,
		End:   words[len(words)-1].End,
		Words: words,
	}}}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))
	out := filepath.Join(outputDir, base+".json")
	return out, os.WriteFile(out, data, 0o644)
}

type fakeImages struct {
	calls atomic.Int32
}

func (f *fakeImages) Generate(_ context.Context, _ media.Runner, req media.ImageRequest) (string, error) {
	f.calls.Add(1)
	return req.Output, os.WriteFile(req.Output, []byte(req.Prompt), 0o644)
}

type fakeRenderer struct {
	mu        sync.Mutex
	durations []float64
	images    []string
	mains     int
}

func (f *fakeRenderer) RenderPart(_ context.Context, _ media.Runner, req media.PartRequest) (string, error) {
	image, err := os.ReadFile(req.Image)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.durations = append(f.durations, req.Duration)
	f.images = append(f.images, string(image))
	f.mu.Unlock()
	return req.Output, os.WriteFile(req.Output, []byte("part"), 0o644)
}

func (f *fakeRenderer) RenderMain(_ context.Context, _ media.Runner, req media.MainRequest) (string, error) {
	f.mu.Lock()
	f.mains++
	f.mu.Unlock()
	for _, p := range append(slices.Clone(req.Parts), req.Voiceover, req.Captions) {
		if _, err := os.Stat(p); err != nil {
			return "", err
		}
	}
	return req.Output, os.WriteFile(req.Output, []byte("final"), 0o644)
}

type recordingObserver struct {
	mu       sync.Mutex
	disabled []string
}

func (o *recordingObserver) LanguageDisabled(_ context.Context, _ string, lang string, stage project.Stage, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disabled = append(o.disabled, lang+":"+string(stage))
}

type harness struct {
	t        *testing.T
	plane    *fakePlane
	store    *fakeStorage
	storage  Storage
	writer   *fakeWriter
	tts      *fakeTTS
	images   *fakeImages
	renderer *fakeRenderer
	observer *recordingObserver
	registry Registry
	ws       *workspace.Project
	project  project.Project
	snapshot project.CreationSnapshot
}

func newHarness(t *testing.T, languages ...string) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		plane:    newFakePlane(),
		store:    newFakeStorage(),
		writer:   &fakeWriter{failDraft: map[string]error{}, failMetadata: map[string]error{}, failTranslate: map[string]error{}},
		tts:      &fakeTTS{fail: map[string]error{}},
		images:   &fakeImages{},
		renderer: &fakeRenderer{},
		observer: &recordingObserver{},
		project:  project.Project{ID: "proj-1", Languages: languages},
		snapshot: project.CreationSnapshot{
			ProjectID:         "proj-1",
			Prompt:            "a quiet river at dawn",
			Languages:         languages,
			AutoApproveScript: true,
			AutoApproveAudio:  true,
			SceneCount:        3,
		},
	}
	h.storage = h.store
	h.ws = workspace.New(t.TempDir(), false).Project("proj-1")
	h.rebuild()
	return h
}

func (h *harness) rebuild() {
	h.registry = NewRegistry(Deps{
		Plane:       h.plane,
		Storage:     h.storage,
		Writer:      h.writer,
		Voices:      fakeVoices{},
		TTS:         h.tts,
		Transcriber: fakeTranscriber{},
		Images:      h.images,
		Renderer:    h.renderer,
		Observer:    h.observer,
		Settings: Settings{
			LanguageConcurrency: 2,
			AudioCandidates:     2,
			SceneCount:          3,
			Width:               1080,
			Height:              1920,
			FPS:                 30,
		},
	})
}

// rollback clears lang's progress from stage on, as a rollback would.
func (h *harness) rollback(lang string, stage project.Stage) {
	h.plane.mu.Lock()
	defer h.plane.mu.Unlock()
	row := h.plane.rows[lang]
	row.ClearFrom(stage)
	h.plane.rows[lang] = row
}

// execute loads a fresh tracker, the way a new job would, and runs the
// executor for status.
func (h *harness) execute(status project.Status, payload project.JobPayload) (Result, error) {
	h.t.Helper()
	ctx := context.Background()
	tracker, err := progress.Load(ctx, h.plane, h.project.ID, h.snapshot.Languages)
	if err != nil {
		h.t.Fatalf("progress.Load: %v", err)
	}
	exec, ok := h.registry.For(status)
	if !ok {
		h.t.Fatalf("no executor for %s", status)
	}
	h.project.Status = status
	return exec.Execute(ctx, &Run{
		Project:   h.project,
		Snapshot:  h.snapshot,
		Tracker:   tracker,
		Job:       project.Job{ID: "job-" + string(status), ProjectID: h.project.ID, Type: exec.Stage(), Payload: payload},
		Workspace: h.ws,
		Logger:    logging.NewNop(),
	})
}

// runUntil drives the pipeline from status until a status without an
// executor is reached, passing validation gates as an approver would.
func (h *harness) runUntil(status project.Status) (project.Status, Result) {
	h.t.Helper()
	var last Result
	for {
		if status.IsValidationGate() {
			next, err := project.Next(status, h.snapshot)
			if err != nil {
				h.t.Fatalf("Next(%s): %v", status, err)
			}
			status = next
			continue
		}
		if _, ok := h.registry.For(status); !ok {
			return status, last
		}
		res, err := h.execute(status, project.JobPayload{})
		if err != nil {
			h.t.Fatalf("execute %s: %v", status, err)
		}
		last = res
		status = res.Next
	}
}
