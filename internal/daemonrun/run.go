package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"reelmill/internal/config"
	"reelmill/internal/controlplane"
	"reelmill/internal/daemon"
	"reelmill/internal/deps"
	"reelmill/internal/llm"
	"reelmill/internal/logging"
	"reelmill/internal/media"
	"reelmill/internal/metrics"
	"reelmill/internal/notifications"
	"reelmill/internal/phases"
	"reelmill/internal/preflight"
	"reelmill/internal/storage"
	"reelmill/internal/voices"
	"reelmill/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the reelmill daemon and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reelmill-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update reelmill.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "reelmill-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.LogDir, "reelmill.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Build(cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon assembly failed", "daemon_build_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the voice catalog, storage backend, and control plane settings"))
		return err
	}
	runPreflight(signalCtx, logger, cfg, rt.Plane)

	d, err := daemon.New(cfg, logger, rt.Workflow,
		daemon.WithMetrics(rt.Metrics),
		daemon.WithDependencies(rt.Dependencies),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other instance or check the lock file"))
		return err
	}

	<-signalCtx.Done()
	logger.Info("reelmill daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// Runtime is the assembled object graph of a daemon.
type Runtime struct {
	Plane        *controlplane.Client
	Catalog      *voices.Catalog
	Metrics      *metrics.Collector
	Workflow     *workflow.Manager
	Dependencies []deps.Status
}

// Build wires the control plane client, storage, generators, executors,
// and workflow manager described by cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	plane := controlplane.New(controlplane.ConfigFrom(cfg))

	catalog, err := voices.Load(cfg.Paths.VoiceCatalog)
	if err != nil {
		return nil, err
	}
	store, err := storage.FromConfig(cfg, plane)
	if err != nil {
		return nil, err
	}

	collector := metrics.New()
	notifier := notifications.NewService(cfg)

	registry := phases.NewRegistry(phases.Deps{
		Plane:   plane,
		Storage: store,
		Writer:  llm.NewWriter(llm.NewClient(llm.ConfigFrom(cfg))),
		Voices:  catalog,
		TTS:     media.NewTTS(time.Duration(cfg.Tools.TTSTimeout) * time.Second),
		Transcriber: media.NewWhisperX(media.WhisperXConfig{
			Launcher: cfg.Tools.WhisperX,
			Model:    cfg.Tools.WhisperXModel,
			CUDA:     cfg.Tools.WhisperXCUDA,
		}),
		Images:   media.NewImageTool(cfg.Tools.ImageCommand, cfg.Tools.ImageArgs),
		Renderer: media.NewFFmpeg(cfg.Tools.FFmpeg),
		Prober:   media.NewFFprobe(ffprobeBinary(cfg)),
		Observer: workflow.NewObserver(notifier, collector, logger),
		Settings: phases.SettingsFrom(cfg),
	})

	manager := workflow.NewManager(cfg, plane, registry, logger,
		workflow.WithNotifier(notifier),
		workflow.WithMetrics(collector),
	)

	dependencies := preflight.CheckSystemDeps(cfg, providerCommands(catalog))
	logDependencySnapshot(logger, cfg, dependencies)

	return &Runtime{
		Plane:        plane,
		Catalog:      catalog,
		Metrics:      collector,
		Workflow:     manager,
		Dependencies: dependencies,
	}, nil
}

// runPreflight logs failing checks. Failures never abort startup: the poll
// loop retries the control plane and pauses claiming on low disk.
func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, plane preflight.Pinger) {
	results := append(preflight.RunAll(ctx, cfg), preflight.CheckControlPlane(ctx, plane))
	for _, result := range results {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run 'reelmill health' for details"),
			logging.String(logging.FieldImpact, "jobs may fail until the check passes"))
	}
}

func providerCommands(catalog *voices.Catalog) []string {
	if catalog == nil {
		return nil
	}
	out := make([]string, 0, len(catalog.Providers))
	for _, p := range catalog.Providers {
		out = append(out, p.Command)
	}
	return out
}

func ffprobeBinary(cfg *config.Config) string {
	if cfg.Tools.FFprobe == "" || cfg.Tools.FFprobe == "ffprobe" {
		return deps.ResolveSibling(cfg.Tools.FFmpeg, "ffprobe")
	}
	return cfg.Tools.FFprobe
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "reelmill.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, statuses []deps.Status) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String(logging.FieldDaemonID, cfg.Daemon.ID),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	for _, status := range statuses {
		attrs = append(attrs, logging.Group(status.Name,
			logging.String("command", status.Command),
			logging.Bool("available", status.Available)))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
