package phases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"reelmill/internal/captions"
	"reelmill/internal/config"
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

// ErrAllLanguagesFailed reports that no enabled language is left.
var ErrAllLanguagesFailed = errors.New("all languages failed")

// errControlPlane marks failures talking to the control plane from inside
// per-language work; they never disable a language.
var errControlPlane = errors.New("control plane")

// errContract marks missing upstream artifacts.
var errContract = errors.New("contract violation")

// Plane is the slice of the control-plane API the executors use.
type Plane interface {
	progress.Store
	Script(ctx context.Context, projectID, lang string) (project.Script, error)
	SaveScript(ctx context.Context, projectID, lang, text string) error
	RegisterAsset(ctx context.Context, asset project.Asset) (project.Asset, error)
	Assets(ctx context.Context, projectID string) ([]project.Asset, error)
}

// Storage uploads and fetches artifacts.
type Storage interface {
	Upload(ctx context.Context, projectID, lang string, stage project.Stage, localPath string) (storage.Object, error)
	Ensure(ctx context.Context, obj storage.Object, dest string) error
}

// ScriptWriter produces text artifacts.
type ScriptWriter interface {
	Draft(ctx context.Context, req llm.DraftRequest) (string, error)
	Translate(ctx context.Context, script, from, to string) (string, error)
	Metadata(ctx context.Context, script, lang string) (project.VideoMetadata, error)
}

// VoiceResolver picks the narrator of a language.
type VoiceResolver interface {
	Resolve(req voices.Request) (voices.Resolution, error)
}

// Synthesizer renders narration.
type Synthesizer interface {
	Synthesize(ctx context.Context, run media.Runner, req media.SpeechRequest) (string, error)
}

// Transcriber produces word-timed transcripts.
type Transcriber interface {
	Transcribe(ctx context.Context, run media.Runner, audio, outputDir, lang string) (string, error)
}

// ImageGenerator renders scene illustrations.
type ImageGenerator interface {
	Generate(ctx context.Context, run media.Runner, req media.ImageRequest) (string, error)
}

// Renderer renders clips and the final video.
type Renderer interface {
	RenderPart(ctx context.Context, run media.Runner, req media.PartRequest) (string, error)
	RenderMain(ctx context.Context, run media.Runner, req media.MainRequest) (string, error)
}

// Prober inspects rendered media.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Observer is told about languages that were disabled.
type Observer interface {
	LanguageDisabled(ctx context.Context, projectID, lang string, stage project.Stage, reason string)
}

// Settings are the pipeline defaults applied when the snapshot is silent.
type Settings struct {
	LanguageConcurrency int
	DefaultVoice        string
	AudioCandidates     int
	SceneCount          int
	Width               int
	Height              int
	FPS                 int
	Captions            captions.Options
}

// SettingsFrom extracts executor settings from the daemon configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		LanguageConcurrency: cfg.Daemon.LanguageConcurrency,
		DefaultVoice:        cfg.Pipeline.DefaultVoice,
		AudioCandidates:     cfg.Pipeline.AudioCandidates,
		SceneCount:          cfg.Pipeline.SceneCount,
		Width:               cfg.Pipeline.Width,
		Height:              cfg.Pipeline.Height,
		FPS:                 cfg.Pipeline.FPS,
		Captions: captions.Options{
			MaxChars:   cfg.Pipeline.CaptionMaxChars,
			MaxSeconds: cfg.Pipeline.CaptionMaxSeconds,
		},
	}
}

// Deps wires the executors to their collaborators.
type Deps struct {
	Plane       Plane
	Storage     Storage
	Writer      ScriptWriter
	Voices      VoiceResolver
	TTS         Synthesizer
	Transcriber Transcriber
	Images      ImageGenerator
	Renderer    Renderer
	// Prober is optional; when set the final video duration is checked.
	Prober   Prober
	Observer Observer
	Settings Settings
}

// Run is the state an executor works on.
type Run struct {
	Project   project.Project
	Snapshot  project.CreationSnapshot
	Tracker   *progress.Tracker
	Job       project.Job
	Workspace *workspace.Project
	Logger    *slog.Logger
}

// Result is the outcome of a successful execution.
type Result struct {
	Next    project.Status
	Message string
	Extra   project.Extra
}

// Executor runs one stage.
type Executor interface {
	Stage() project.Stage
	Execute(ctx context.Context, run *Run) (Result, error)
}

// Registry maps stages to executors.
type Registry map[project.Stage]Executor

// NewRegistry builds every executor over deps.
func NewRegistry(deps Deps) Registry {
	if deps.Settings.LanguageConcurrency <= 0 {
		deps.Settings.LanguageConcurrency = 1
	}
	base := &engine{deps: deps}
	executors := []Executor{
		&scriptPhase{base},
		&audioPhase{base},
		&transcriptionPhase{base},
		&metadataPhase{base},
		&captionsPhase{base},
		&imagesPhase{base},
		&videoPartsPhase{base},
		&videoMainPhase{base},
	}
	reg := make(Registry, len(executors))
	for _, e := range executors {
		reg[e.Stage()] = e
	}
	return reg
}

// For returns the executor that runs in status.
func (r Registry) For(status project.Status) (Executor, bool) {
	stage, ok := project.StageFor(status)
	if !ok {
		return nil, false
	}
	e, ok := r[stage]
	return e, ok
}

// engine holds what every executor shares.
type engine struct {
	deps Deps
}

// languageWork is the per-language body of a phase.
type languageWork func(ctx context.Context, lang string, logger *slog.Logger) error

// fanOut runs work for langs with bounded concurrency. Per-language
// failures disable the language; fatal failures abort the fan-out.
func (e *engine) fanOut(ctx context.Context, run *Run, stage project.Stage, langs []string, work languageWork) error {
	if len(langs) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.deps.Settings.LanguageConcurrency)
	for _, lang := range langs {
		g.Go(func() error {
			langCtx := services.WithLanguage(gctx, lang)
			logger := run.Logger.With(logging.String(logging.FieldLanguage, lang))
			started := time.Now()
			err := work(langCtx, lang, logger)
			if err == nil {
				logger.Debug("language finished stage",
					logging.String(logging.FieldEventType, "language_stage_done"),
					logging.Duration("elapsed", time.Since(started)))
				return nil
			}
			if fatal(gctx, err) {
				return err
			}
			return e.disable(ctx, run, lang, stage, err, logger)
		})
	}
	return g.Wait()
}

func (e *engine) disable(ctx context.Context, run *Run, lang string, stage project.Stage, cause error, logger *slog.Logger) error {
	reason := failureReason(cause)
	if err := run.Tracker.Disable(ctx, lang, stage, reason); err != nil {
		return fmt.Errorf("%w: disable %s: %w", errControlPlane, lang, err)
	}
	logging.WarnWithContext(logger, "language disabled", "language_disabled",
		logging.String(logging.FieldErrorHint, "other languages continue; reset with an admin rollback"),
		logging.String(logging.FieldImpact, "language excluded from the final output"),
		logging.String("reason", reason),
		logging.String("log_path", workspace.LogPathOf(cause)),
	)
	if e.deps.Observer != nil {
		e.deps.Observer.LanguageDisabled(ctx, run.Project.ID, lang, stage, reason)
	}
	return nil
}

// fatal reports whether err must abort the job instead of disabling a
// single language.
func fatal(ctx context.Context, err error) bool {
	switch {
	case ctx.Err() != nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, errControlPlane),
		errors.Is(err, errContract),
		errors.Is(err, services.ErrConfiguration),
		errors.Is(err, services.ErrConflict),
		services.IsTransient(err):
		return true
	}
	return false
}

func failureReason(err error) string {
	details := services.Details(err)
	reason := details.Message
	if reason == "" {
		reason = err.Error()
	}
	reason = services.TruncateReason(reason, 500)
	if logPath := workspace.LogPathOf(err); logPath != "" {
		reason += " (log: " + logPath + ")"
	}
	return reason
}

// finish turns the tracker state after a fan-out into a Result.
func (e *engine) finish(run *Run, stage project.Stage, extra func(done, failed []string) project.Extra) (Result, error) {
	if run.Tracker.AllDisabled() {
		return Result{}, fmt.Errorf("%s: %w (failed: %s)", stage, ErrAllLanguagesFailed,
			strings.Join(run.Tracker.FailedLanguages(), ", "))
	}
	if remaining := run.Tracker.Remaining(stage); len(remaining) > 0 {
		return Result{}, fmt.Errorf("%s incomplete for %s", stage, strings.Join(remaining, ", "))
	}
	from := stage.Status()
	next, err := project.Next(from, run.Snapshot)
	if err != nil {
		return Result{}, err
	}
	done := run.Tracker.Completed(stage)
	failed := run.Tracker.FailedLanguages()
	msg := fmt.Sprintf("%s complete for %s", stage, strings.Join(done, ", "))
	if len(failed) > 0 {
		msg += fmt.Sprintf("; disabled: %s", strings.Join(failed, ", "))
	}
	return Result{Next: next, Message: msg, Extra: extra(done, failed)}, nil
}

// plane wraps control-plane errors so they never disable a language.
func plane(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errControlPlane, err)
}

// missing reports an absent upstream artifact.
func missing(lang, what string) error {
	return fmt.Errorf("%w: %s has no %s", errContract, lang, what)
}

func (e *engine) runner(run *Run, lang string, stage project.Stage) (*workspace.Runner, error) {
	r, err := run.Workspace.Runner(lang, stage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errContract, err)
	}
	return r, nil
}

func (e *engine) script(ctx context.Context, run *Run, lang string) (string, error) {
	script, err := e.deps.Plane.Script(ctx, run.Project.ID, lang)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return "", missing(lang, "script")
		}
		return "", plane(err)
	}
	text := strings.TrimSpace(script.Text)
	if text == "" {
		return "", missing(lang, "script")
	}
	return text, nil
}

// uploadAsset uploads local and registers it as an asset of kind.
func (e *engine) uploadAsset(ctx context.Context, run *Run, lang string, stage project.Stage, kind project.AssetKind, local string, final bool) (project.Asset, error) {
	obj, err := e.deps.Storage.Upload(ctx, run.Project.ID, lang, stage, local)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return project.Asset{}, err
		}
		return project.Asset{}, plane(err)
	}
	asset, err := e.deps.Plane.RegisterAsset(ctx, project.Asset{
		ProjectID: run.Project.ID,
		Language:  lang,
		Kind:      kind,
		URL:       obj.URL,
		Path:      obj.Path,
		IsFinal:   final,
	})
	if err != nil {
		return project.Asset{}, plane(err)
	}
	return asset, nil
}

// fetch makes a previously uploaded artifact available locally.
func (e *engine) fetch(ctx context.Context, run *Run, lang string, stage project.Stage, url, name string) (string, error) {
	dest, err := run.Workspace.Path(lang, stage, name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errContract, err)
	}
	if err := e.deps.Storage.Ensure(ctx, storage.Object{URL: url}, dest); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return "", fmt.Errorf("%w: %s artifact %s is gone: %w", errContract, lang, url, err)
		}
		return "", plane(err)
	}
	return dest, nil
}

func (e *engine) update(ctx context.Context, run *Run, lang string, mutate func(*project.LanguageProgress)) error {
	return plane(run.Tracker.Update(ctx, lang, mutate))
}

func (e *engine) markDone(ctx context.Context, run *Run, lang string, stage project.Stage) error {
	return plane(run.Tracker.MarkDone(ctx, lang, stage))
}

// urlExt returns the extension of a URL path, defaulting to fallback.
func urlExt(url, fallback string) string {
	if idx := strings.IndexAny(url, "?#"); idx >= 0 {
		url = url[:idx]
	}
	if ext := path.Ext(url); ext != "" && len(ext) <= 5 {
		return ext
	}
	return fallback
}

func indexedName(prefix string, i int, ext string) string {
	return filepath.Base(fmt.Sprintf("%s-%02d%s", prefix, i+1, ext))
}
