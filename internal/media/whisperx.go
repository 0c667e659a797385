package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reelmill/internal/language"
	"reelmill/internal/services"
	"reelmill/internal/workspace"
)

// WhisperX invocation constants.
const (
	DefaultWhisperXModel = "large-v3"
	cudaIndexURL         = "https://download.pytorch.org/whl/cu128"
	pypiIndexURL         = "https://pypi.org/simple"
	whisperXBatchSize    = "4"
	whisperXChunkSize    = "15"
	whisperXVADMethod    = "silero"
)

// WhisperXConfig captures runtime settings for transcription.
type WhisperXConfig struct {
	// Launcher is the uvx binary used to run whisperx.
	Launcher string
	Model    string
	CUDA     bool
}

// WhisperX produces word-timed transcripts of voiceovers.
type WhisperX struct {
	cfg WhisperXConfig
}

// NewWhisperX returns a transcriber.
func NewWhisperX(cfg WhisperXConfig) *WhisperX {
	if strings.TrimSpace(cfg.Launcher) == "" {
		cfg.Launcher = "uvx"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultWhisperXModel
	}
	return &WhisperX{cfg: cfg}
}

// Model returns the configured model name for logging.
func (w *WhisperX) Model() string {
	return w.cfg.Model
}

// Transcribe runs WhisperX over audio and returns the path of the JSON
// transcript written into outputDir.
func (w *WhisperX) Transcribe(ctx context.Context, run Runner, audio, outputDir, lang string) (string, error) {
	if audio == "" {
		return "", services.Wrap(services.ErrValidation, "whisperx", "transcribe", "audio path required", nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("whisperx: ensure output dir: %w", err)
	}
	cmd := workspace.Command{
		Name: w.cfg.Launcher,
		Args: w.buildArgs(audio, outputDir, lang),
		// Torch 2.6 defaults torch.load to weights_only, which breaks the
		// pyannote checkpoints WhisperX loads.
		Env: []string{"TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1"},
	}
	if _, err := run.Run(ctx, "whisperx", cmd); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))
	jsonPath := filepath.Join(outputDir, base+".json")
	if err := requireOutput("whisperx", jsonPath); err != nil {
		return "", err
	}
	return jsonPath, nil
}

func (w *WhisperX) buildArgs(audio, outputDir, lang string) []string {
	args := make([]string, 0, 28)
	if w.cfg.CUDA {
		args = append(args, "--index-url", cudaIndexURL, "--extra-index-url", pypiIndexURL)
	} else {
		args = append(args, "--index-url", pypiIndexURL)
	}
	args = append(args,
		"whisperx",
		audio,
		"--model", w.cfg.Model,
		"--batch_size", whisperXBatchSize,
		"--chunk_size", whisperXChunkSize,
		"--vad_method", whisperXVADMethod,
		"--output_dir", outputDir,
		"--output_format", "json",
	)
	if base := language.Base(lang); base != "" {
		args = append(args, "--language", base)
	}
	if w.cfg.CUDA {
		args = append(args, "--device", "cuda")
	} else {
		args = append(args, "--device", "cpu", "--compute_type", "float32")
	}
	return args
}
