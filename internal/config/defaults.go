package config

const (
	defaultConfigPath          = "~/.config/reelmill/config.toml"
	defaultWorkspaceDir        = "~/.local/share/reelmill/projects"
	defaultLogDir              = "~/.local/share/reelmill/logs"
	defaultVoiceCatalog        = "~/.config/reelmill/voices.yaml"
	defaultBaseURL             = "http://127.0.0.1:7590"
	defaultPollInterval        = 5
	defaultErrorRetryInterval  = 15
	defaultMaxConcurrency      = 2
	defaultJobTimeout          = 3600
	defaultLanguageConcurrency = 3
	defaultEligibleLimit       = 20
	defaultMinFreeDiskGiB      = 5
	defaultCPTimeoutSeconds    = 30
	defaultCPRetryAttempts     = 3
	defaultStorageBackend      = StorageControlPlane
	defaultBucket              = "reelmill"
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "google/gemini-3-flash-preview"
	defaultLLMReferer          = "https://github.com/reelmill/reelmill"
	defaultLLMTitle            = "reelmill"
	defaultLLMTimeoutSeconds   = 120
	defaultWhisperXModel       = "large-v3-turbo"
	defaultTTSTimeout          = 300
	defaultAudioCandidates     = 1
	defaultSceneCount          = 6
	defaultWidth               = 1080
	defaultHeight              = 1920
	defaultFPS                 = 30
	defaultCaptionMaxChars     = 32
	defaultCaptionMaxSeconds   = 2.5
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

// Storage backends.
const (
	StorageControlPlane = "control_plane"
	StorageSupabase     = "supabase"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Daemon: Daemon{
			PollInterval:        defaultPollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			MaxConcurrency:      defaultMaxConcurrency,
			JobTimeout:          defaultJobTimeout,
			LanguageConcurrency: defaultLanguageConcurrency,
			EligibleLimit:       defaultEligibleLimit,
			MinFreeDiskGiB:      defaultMinFreeDiskGiB,
		},
		ControlPlane: ControlPlane{
			BaseURL:        defaultBaseURL,
			TimeoutSeconds: defaultCPTimeoutSeconds,
			RetryAttempts:  defaultCPRetryAttempts,
		},
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
			VoiceCatalog: defaultVoiceCatalog,
		},
		Storage: Storage{
			Backend: defaultStorageBackend,
			Bucket:  defaultBucket,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Tools: Tools{
			FFmpeg:        "ffmpeg",
			FFprobe:       "ffprobe",
			WhisperX:      "uvx",
			WhisperXModel: defaultWhisperXModel,
			TTSTimeout:    defaultTTSTimeout,
		},
		Pipeline: Pipeline{
			AudioCandidates:   defaultAudioCandidates,
			SceneCount:        defaultSceneCount,
			Width:             defaultWidth,
			Height:            defaultHeight,
			FPS:               defaultFPS,
			CaptionMaxChars:   defaultCaptionMaxChars,
			CaptionMaxSeconds: defaultCaptionMaxSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
