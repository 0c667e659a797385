package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"reelmill/internal/services"
	"reelmill/internal/voices"
	"reelmill/internal/workspace"
)

// SpeechRequest is one narration take.
type SpeechRequest struct {
	Text     string
	Language string
	Voice    voices.Resolution
	// OutputBase is the output path without extension; the provider's
	// extension is appended.
	OutputBase string
}

// TTS runs catalog providers.
type TTS struct {
	timeout time.Duration
}

// NewTTS returns a synthesizer that abandons a take after timeout.
func NewTTS(timeout time.Duration) *TTS {
	return &TTS{timeout: timeout}
}

// Synthesize renders req and returns the audio path.
func (t *TTS) Synthesize(ctx context.Context, run Runner, req SpeechRequest) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", services.Wrap(services.ErrValidation, "tts", "synthesize", "script text is empty", nil)
	}
	provider := req.Voice.Provider
	if provider.Command == "" {
		return "", services.Wrap(services.ErrConfiguration, "tts", "synthesize",
			fmt.Sprintf("voice %q has no provider command", req.Voice.Voice.ID), nil)
	}
	ext := strings.TrimPrefix(provider.Extension, ".")
	if ext == "" {
		ext = "wav"
	}
	output := req.OutputBase + "." + ext
	input := req.OutputBase + ".txt"
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", fmt.Errorf("tts: ensure output dir: %w", err)
	}
	if err := os.WriteFile(input, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("tts: write input: %w", err)
	}
	_ = os.Remove(output)

	voiceParam := req.Voice.Voice.Model
	if voiceParam == "" {
		voiceParam = req.Voice.Voice.ID
	}
	values := map[string]string{
		"input":    input,
		"output":   output,
		"voice":    voiceParam,
		"language": req.Language,
		"style":    req.Voice.Style,
	}
	cmd := workspace.Command{Name: provider.Command, Args: expandArgs(provider.Args, values)}
	if !slices.ContainsFunc(provider.Args, func(a string) bool { return strings.Contains(a, "{input}") }) {
		cmd.Stdin = strings.NewReader(text)
	}

	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if _, err := run.Run(runCtx, "tts-"+provider.Name, cmd); err != nil {
		if ctx.Err() == nil && runCtx.Err() != nil {
			return "", services.Wrap(services.ErrExternalTool, "tts", "synthesize",
				fmt.Sprintf("provider %s timed out after %s", provider.Name, t.timeout), err)
		}
		return "", err
	}
	if err := requireOutput("tts", output); err != nil {
		return "", err
	}
	return output, nil
}
