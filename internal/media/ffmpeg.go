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

const maxZoom = 1.15

// FFmpeg renders scene clips and the final composite.
type FFmpeg struct {
	binary string
}

// NewFFmpeg returns a renderer invoking binary.
func NewFFmpeg(binary string) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary}
}

// PartRequest renders one still image into a moving clip.
type PartRequest struct {
	Image    string
	Duration float64
	Width    int
	Height   int
	FPS      int
	Scene    int
	Output   string
}

// RenderPart renders a slow push-in over req.Image lasting req.Duration.
func (f *FFmpeg) RenderPart(ctx context.Context, run Runner, req PartRequest) (string, error) {
	if req.Duration <= 0 {
		return "", services.Wrap(services.ErrValidation, "ffmpeg", "part", fmt.Sprintf("scene %d has no duration", req.Scene), nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return "", fmt.Errorf("ffmpeg: ensure output dir: %w", err)
	}
	frames := int(req.Duration*float64(req.FPS) + 0.5)
	if frames < 1 {
		frames = 1
	}
	step := (maxZoom - 1) / float64(frames)
	size := fmt.Sprintf("%dx%d", req.Width, req.Height)
	filter := strings.Join([]string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", req.Width*2, req.Height*2),
		fmt.Sprintf("crop=%d:%d", req.Width*2, req.Height*2),
		fmt.Sprintf("zoompan=z='min(zoom+%.6f,%.2f)':d=%d:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%s:fps=%d",
			step, maxZoom, frames, size, req.FPS),
		"format=yuv420p",
	}, ",")
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-loop", "1",
		"-i", req.Image,
		"-t", formatSeconds(req.Duration),
		"-vf", filter,
		"-r", strconv.Itoa(req.FPS),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-an",
		req.Output,
	}
	if _, err := run.Run(ctx, fmt.Sprintf("part-%02d", req.Scene), workspace.Command{Name: f.binary, Args: args}); err != nil {
		return "", err
	}
	if err := requireOutput("ffmpeg", req.Output); err != nil {
		return "", err
	}
	return req.Output, nil
}

// MainRequest composes the final video.
type MainRequest struct {
	Parts     []string
	Voiceover string
	// Captions is an optional ASS file burned into the picture.
	Captions string
	WorkDir  string
	Output   string
}

// RenderMain concatenates the parts, muxes the voiceover, and burns the
// captions.
func (f *FFmpeg) RenderMain(ctx context.Context, run Runner, req MainRequest) (string, error) {
	if len(req.Parts) == 0 {
		return "", services.Wrap(services.ErrValidation, "ffmpeg", "main", "no video parts", nil)
	}
	if req.Voiceover == "" {
		return "", services.Wrap(services.ErrValidation, "ffmpeg", "main", "voiceover missing", nil)
	}
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("ffmpeg: ensure work dir: %w", err)
	}
	listPath := filepath.Join(req.WorkDir, "parts.txt")
	if err := os.WriteFile(listPath, []byte(concatList(req.Parts)), 0o644); err != nil {
		return "", fmt.Errorf("ffmpeg: write concat list: %w", err)
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-i", req.Voiceover,
	}
	if req.Captions != "" {
		args = append(args, "-vf", "ass="+escapeFilterPath(req.Captions))
	}
	args = append(args,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		req.Output,
	)
	if _, err := run.Run(ctx, "compose", workspace.Command{Name: f.binary, Args: args}); err != nil {
		return "", err
	}
	if err := requireOutput("ffmpeg", req.Output); err != nil {
		return "", err
	}
	return req.Output, nil
}

func concatList(parts []string) string {
	var b strings.Builder
	for _, part := range parts {
		abs, err := filepath.Abs(part)
		if err != nil {
			abs = part
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return b.String()
}

func escapeFilterPath(path string) string {
	r := strings.NewReplacer(`\`, `/`, `:`, `\:`, `'`, `\'`, `,`, `\,`)
	return r.Replace(path)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
