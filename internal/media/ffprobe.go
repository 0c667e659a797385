package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"reelmill/internal/services"
)

// OutputFunc runs a command and returns its stdout.
type OutputFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFprobe inspects rendered media.
type FFprobe struct {
	binary string
	output OutputFunc
}

// NewFFprobe returns a prober invoking binary.
func NewFFprobe(binary string) *FFprobe {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &FFprobe{binary: binary, output: commandOutput}
}

// WithOutput replaces process execution (for tests).
func (p *FFprobe) WithOutput(fn OutputFunc) *FFprobe {
	p.output = fn
	return p
}

// Duration returns the container duration of path in seconds.
func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.output(ctx, p.binary, "-v", "error", "-show_entries", "format=duration", "-of", "json", path)
	if err != nil {
		return 0, err
	}
	var payload struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "ffprobe", "duration", "unparseable output", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(payload.Format.Duration), 64)
	if err != nil || seconds <= 0 {
		return 0, services.Wrap(services.ErrExternalTool, "ffprobe", "duration",
			fmt.Sprintf("%s has no usable duration (%q)", path, payload.Format.Duration), err)
	}
	return seconds, nil
}

func commandOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		}
		return nil, services.Wrap(services.ErrExternalTool, name, "probe", stderr, err)
	}
	return out, nil
}
