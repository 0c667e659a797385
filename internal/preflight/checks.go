package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reelmill/internal/config"
	"reelmill/internal/deps"
	"reelmill/internal/llm"
)

const gib = 1 << 30

// Pinger is anything with a liveness probe, such as the control-plane client.
type Pinger interface {
	Health(ctx context.Context) error
}

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg *config.Config) Result {
	settings := llm.ConfigFrom(cfg)
	if settings.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(settings, llm.WithRetryMaxAttempts(1))
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable (" + client.Model() + ")"}
}

// CheckControlPlane verifies the control plane answers its health probe.
func CheckControlPlane(ctx context.Context, plane Pinger) Result {
	const name = "Control plane"
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := plane.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// FreeBytes reports the bytes available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// CheckDiskSpace fails when the filesystem holding path has less than
// minGiB free. A non-positive minimum disables the check.
func CheckDiskSpace(name, path string, minGiB int) Result {
	if minGiB <= 0 {
		return Result{Name: name, Passed: true, Detail: "check disabled"}
	}
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	freeGiB := float64(free) / gib
	detail := fmt.Sprintf("%s (%.1f GiB free, minimum %d GiB)", path, freeGiB, minGiB)
	if free < uint64(minGiB)*gib {
		return Result{Name: name, Detail: detail}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external binaries the pipeline runs.
// providerCommands are the TTS provider commands from the voice catalog.
func CheckSystemDeps(cfg *config.Config, providerCommands []string) []deps.Status {
	ffprobe := cfg.Tools.FFprobe
	if ffprobe == "" || ffprobe == "ffprobe" {
		ffprobe = deps.ResolveSibling(cfg.Tools.FFmpeg, "ffprobe")
	}
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Tools.FFmpeg,
			Description: "Required for rendering video parts and the final video",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobe,
			Description: "Required for final video inspection",
		},
		{
			Name:        "uvx",
			Command:     cfg.Tools.WhisperX,
			Description: "Required for WhisperX-driven transcription",
		},
		{
			Name:        "Image generator",
			Command:     cfg.Tools.ImageCommand,
			Description: "Required for scene illustrations",
		},
	}
	seen := map[string]bool{}
	for _, cmd := range providerCommands {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" || seen[cmd] {
			continue
		}
		seen[cmd] = true
		requirements = append(requirements, deps.Requirement{
			Name:        "TTS provider " + cmd,
			Command:     cmd,
			Description: "Used by catalog voices; only languages resolving to it need it",
			Optional:    true,
		})
	}
	return deps.CheckBinaries(requirements)
}

// summarizeError produces a human-readable summary for health check failures.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
