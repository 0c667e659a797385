package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"reelmill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Disk preflight and notifications are disabled; the poll cadence is one
// second so loop tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Daemon.ID = "test-daemon"
	cfgVal.Daemon.PollInterval = 1
	cfgVal.Daemon.ErrorRetryInterval = 1
	cfgVal.Daemon.MinFreeDiskGiB = 0
	cfgVal.ControlPlane.Password = "test-password"
	cfgVal.ControlPlane.AdminSecret = "test-admin-secret"
	cfgVal.ControlPlane.RetryAttempts = 1
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "projects")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.VoiceCatalog = filepath.Join(base, "voices.yaml")
	cfgVal.Notifications.NtfyTopic = ""
	cfgVal.Metrics.Bind = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithDaemonID overrides the daemon identity.
func WithDaemonID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.ID = id
	}
}

// WithControlPlane points the config at baseURL.
func WithControlPlane(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ControlPlane.BaseURL = baseURL
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "uvx"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkspaceDir)
}
