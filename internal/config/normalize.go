package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

func (c *Config) normalize() error {
	c.normalizeDaemon()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeControlPlane()
	c.normalizeStorage()
	c.normalizeLLM()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeDaemon() {
	c.Daemon.ID = strings.TrimSpace(c.Daemon.ID)
	if c.Daemon.ID == "" {
		if value, ok := os.LookupEnv("REELMILL_DAEMON_ID"); ok {
			c.Daemon.ID = strings.TrimSpace(value)
		}
	}
	if c.Daemon.ID == "" {
		c.Daemon.ID = generatedDaemonID()
	}
	if c.Daemon.EligibleLimit <= 0 {
		c.Daemon.EligibleLimit = defaultEligibleLimit
	}
	if c.Daemon.LanguageConcurrency <= 0 {
		c.Daemon.LanguageConcurrency = defaultLanguageConcurrency
	}
}

// generatedDaemonID derives a host-scoped identity. It changes on every
// start, so operators running long-lived daemons should pin daemon.id.
func generatedDaemonID() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "reelmill"
	}
	return fmt.Sprintf("%s-%s", strings.ToLower(strings.TrimSpace(host)), uuid.NewString()[:8])
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.VoiceCatalog) == "" {
		c.Paths.VoiceCatalog = defaultVoiceCatalog
	}
	if c.Paths.VoiceCatalog, err = expandPath(c.Paths.VoiceCatalog); err != nil {
		return fmt.Errorf("paths.voice_catalog: %w", err)
	}
	return nil
}

func (c *Config) normalizeControlPlane() {
	c.ControlPlane.BaseURL = strings.TrimRight(strings.TrimSpace(c.ControlPlane.BaseURL), "/")
	if c.ControlPlane.BaseURL == "" {
		c.ControlPlane.BaseURL = defaultBaseURL
	}
	if c.ControlPlane.Password == "" {
		if value, ok := os.LookupEnv("REELMILL_PLANE_PASSWORD"); ok {
			c.ControlPlane.Password = strings.TrimSpace(value)
		}
	}
	if c.ControlPlane.AdminSecret == "" {
		if value, ok := os.LookupEnv("REELMILL_ADMIN_SECRET"); ok {
			c.ControlPlane.AdminSecret = strings.TrimSpace(value)
		}
	}
	if c.ControlPlane.RetryAttempts <= 0 {
		c.ControlPlane.RetryAttempts = 1
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	c.Storage.SupabaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.SupabaseURL), "/")
	if c.Storage.SupabaseKey == "" {
		if value, ok := os.LookupEnv("SUPABASE_SERVICE_ROLE_KEY"); ok {
			c.Storage.SupabaseKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		c.Storage.Bucket = defaultBucket
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("REELMILL_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = "ffmpeg"
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = "ffprobe"
	}
	c.Tools.WhisperX = strings.TrimSpace(c.Tools.WhisperX)
	if c.Tools.WhisperX == "" {
		c.Tools.WhisperX = "uvx"
	}
	c.Tools.WhisperXModel = strings.TrimSpace(c.Tools.WhisperXModel)
	if c.Tools.WhisperXModel == "" {
		c.Tools.WhisperXModel = defaultWhisperXModel
	}
	c.Tools.ImageCommand = strings.TrimSpace(c.Tools.ImageCommand)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
