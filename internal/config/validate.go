package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateControlPlane(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDaemon() error {
	if err := ensurePositiveMap(map[string]int{
		"daemon.poll_interval":        c.Daemon.PollInterval,
		"daemon.error_retry_interval": c.Daemon.ErrorRetryInterval,
		"daemon.max_concurrency":      c.Daemon.MaxConcurrency,
		"daemon.job_timeout":          c.Daemon.JobTimeout,
	}); err != nil {
		return err
	}
	if strings.ContainsAny(c.Daemon.ID, " \t/\\") {
		return fmt.Errorf("daemon.id %q must not contain whitespace or path separators", c.Daemon.ID)
	}
	if c.Daemon.MinFreeDiskGiB < 0 {
		return errors.New("daemon.min_free_disk_gib must be >= 0")
	}
	return nil
}

func (c *Config) validateControlPlane() error {
	if !strings.HasPrefix(c.ControlPlane.BaseURL, "http://") && !strings.HasPrefix(c.ControlPlane.BaseURL, "https://") {
		return fmt.Errorf("control_plane.base_url must be an http(s) URL, got %q", c.ControlPlane.BaseURL)
	}
	if strings.TrimSpace(c.ControlPlane.Password) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("control_plane.password is required. Set REELMILL_PLANE_PASSWORD env var or edit %s (create with 'reelmill config init')", defaultPath)
	}
	if c.ControlPlane.TimeoutSeconds <= 0 {
		return errors.New("control_plane.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageControlPlane:
		return nil
	case StorageSupabase:
		if c.Storage.SupabaseURL == "" {
			return errors.New("storage.supabase_url must be set when storage.backend is supabase")
		}
		if strings.TrimSpace(c.Storage.SupabaseKey) == "" {
			return errors.New("storage.supabase_key must be set when storage.backend is supabase (or set SUPABASE_SERVICE_ROLE_KEY)")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend: unsupported value %q", c.Storage.Backend)
	}
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.audio_candidates":  c.Pipeline.AudioCandidates,
		"pipeline.scene_count":       c.Pipeline.SceneCount,
		"pipeline.width":             c.Pipeline.Width,
		"pipeline.height":            c.Pipeline.Height,
		"pipeline.fps":               c.Pipeline.FPS,
		"pipeline.caption_max_chars": c.Pipeline.CaptionMaxChars,
	}); err != nil {
		return err
	}
	if c.Pipeline.CaptionMaxSeconds <= 0 {
		return errors.New("pipeline.caption_max_seconds must be positive")
	}
	if c.Pipeline.Width%2 != 0 || c.Pipeline.Height%2 != 0 {
		return errors.New("pipeline.width and pipeline.height must be even")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
