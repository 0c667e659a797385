package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"reelmill/internal/services"
	"reelmill/internal/workspace"
)

// ImageRequest is one scene illustration.
type ImageRequest struct {
	Prompt   string
	Language string
	Scene    int
	Width    int
	Height   int
	Output   string
}

// ImageTool runs the configured image generator.
type ImageTool struct {
	command string
	args    []string
}

// NewImageTool returns a generator invoking command with args templates.
func NewImageTool(command string, args []string) *ImageTool {
	return &ImageTool{command: strings.TrimSpace(command), args: args}
}

// Configured reports whether an image command is set.
func (t *ImageTool) Configured() bool {
	return t.command != ""
}

// Generate renders req.Output.
func (t *ImageTool) Generate(ctx context.Context, run Runner, req ImageRequest) (string, error) {
	if !t.Configured() {
		return "", services.Wrap(services.ErrConfiguration, "images", "generate", "tools.image_command is not set", nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "images", "generate", "scene prompt is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return "", fmt.Errorf("images: ensure output dir: %w", err)
	}
	_ = os.Remove(req.Output)
	values := map[string]string{
		"prompt":   req.Prompt,
		"output":   req.Output,
		"width":    strconv.Itoa(req.Width),
		"height":   strconv.Itoa(req.Height),
		"language": req.Language,
		"scene":    strconv.Itoa(req.Scene),
	}
	cmd := workspace.Command{Name: t.command, Args: expandArgs(t.args, values)}
	if _, err := run.Run(ctx, fmt.Sprintf("image-%02d", req.Scene), cmd); err != nil {
		return "", err
	}
	if err := requireOutput("images", req.Output); err != nil {
		return "", err
	}
	return req.Output, nil
}
