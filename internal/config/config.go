package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Daemon contains the worker identity and scheduling knobs.
type Daemon struct {
	ID                  string `toml:"id"`
	PollInterval        int    `toml:"poll_interval"`
	ErrorRetryInterval  int    `toml:"error_retry_interval"`
	MaxConcurrency      int    `toml:"max_concurrency"`
	JobTimeout          int    `toml:"job_timeout"`
	LanguageConcurrency int    `toml:"language_concurrency"`
	EligibleLimit       int    `toml:"eligible_limit"`
	MinFreeDiskGiB      int    `toml:"min_free_disk_gib"`
}

// ControlPlane contains connection settings for the remote API.
type ControlPlane struct {
	BaseURL        string `toml:"base_url"`
	Password       string `toml:"password"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
	AdminSecret    string `toml:"admin_secret"`
}

// Paths contains filesystem roots.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	LogDir       string `toml:"log_dir"`
	VoiceCatalog string `toml:"voice_catalog"`
}

// Storage selects where produced artifacts are uploaded.
type Storage struct {
	Backend     string `toml:"backend"`
	SupabaseURL string `toml:"supabase_url"`
	SupabaseKey string `toml:"supabase_key"`
	Bucket      string `toml:"bucket"`
}

// LLM contains chat-completion connection settings used for scripts and metadata.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Tools contains external media tool commands.
type Tools struct {
	FFmpeg        string   `toml:"ffmpeg"`
	FFprobe       string   `toml:"ffprobe"`
	WhisperX      string   `toml:"whisperx"`
	WhisperXModel string   `toml:"whisperx_model"`
	WhisperXCUDA  bool     `toml:"whisperx_cuda"`
	ImageCommand  string   `toml:"image_command"`
	ImageArgs     []string `toml:"image_args"`
	TTSTimeout    int      `toml:"tts_timeout"`
}

// Pipeline contains rendering and generation defaults applied to every project.
type Pipeline struct {
	DefaultVoice      string  `toml:"default_voice"`
	AudioCandidates   int     `toml:"audio_candidates"`
	SceneCount        int     `toml:"scene_count"`
	Width             int     `toml:"width"`
	Height            int     `toml:"height"`
	FPS               int     `toml:"fps"`
	CaptionMaxChars   int     `toml:"caption_max_chars"`
	CaptionMaxSeconds float64 `toml:"caption_max_seconds"`
	KeepWorkspace     bool    `toml:"keep_workspace"`
}

// Metrics configures the Prometheus listener.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for reelmill.
//
// Configuration sections by subsystem:
//   - Daemon: identity, polling cadence, concurrency, timeouts
//   - ControlPlane: remote API endpoint and shared secret
//   - Paths: workspace, logs, voice catalog
//   - Storage: artifact upload backend
//   - LLM: script, translation, and metadata generation
//   - Tools: ffmpeg, whisperx, and image generator commands
//   - Pipeline: per-project rendering defaults
//   - Metrics, Notifications, Logging: ambient services
type Config struct {
	Daemon        Daemon        `toml:"daemon"`
	ControlPlane  ControlPlane  `toml:"control_plane"`
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	LLM           LLM           `toml:"llm"`
	Tools         Tools         `toml:"tools"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelmill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the queue polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Daemon.PollInterval) * time.Second
}

// ErrorRetryInterval returns the back-off applied after a failed poll.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Daemon.ErrorRetryInterval) * time.Second
}

// JobTimeout returns the hard ceiling for a single job execution.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Daemon.JobTimeout) * time.Second
}

// ControlPlaneTimeout returns the per-request HTTP timeout.
func (c *Config) ControlPlaneTimeout() time.Duration {
	return time.Duration(c.ControlPlane.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
