package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"reelmill/internal/services"
)

const outputTailBytes = 2048

// Command describes one external process invocation.
type Command struct {
	Name  string
	Args  []string
	Env   []string
	Dir   string
	Stdin io.Reader
}

func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	return strings.Join(parts, " ")
}

// ExecFunc runs cmd, streaming combined output into out.
type ExecFunc func(ctx context.Context, cmd Command, out io.Writer) error

// CommandError reports a failed invocation together with its transcript.
type CommandError struct {
	Name    string
	LogPath string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Name, e.Err, e.Output)
}

func (e *CommandError) Unwrap() []error {
	return []error{services.ErrExternalTool, e.Err}
}

// LogPathOf returns the transcript path carried by err, if any.
func LogPathOf(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.LogPath
	}
	return ""
}

// Runner executes commands and keeps a transcript of each one.
type Runner struct {
	logDir string
	exec   ExecFunc
	now    func() time.Time
}

// RunnerOption customizes a runner.
type RunnerOption func(*Runner)

// WithExec replaces process execution (used by tests).
func WithExec(fn ExecFunc) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.exec = fn
		}
	}
}

// NewRunner returns a runner writing transcripts to logDir.
func NewRunner(logDir string, opts ...RunnerOption) *Runner {
	r := &Runner{logDir: logDir, exec: execProcess, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LogDir returns the transcript directory.
func (r *Runner) LogDir() string {
	return r.logDir
}

// Run executes cmd. label names the transcript file. On failure the
// returned *CommandError carries the transcript path and the output tail.
func (r *Runner) Run(ctx context.Context, label string, cmd Command) (string, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return "", services.Wrap(services.ErrConfiguration, "workspace", "run", "command name is empty", nil)
	}
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	if label == "" {
		label = filepath.Base(cmd.Name)
	}
	pattern := fmt.Sprintf("%s-%s-*.log", r.now().UTC().Format("20060102T150405"), safeSegment(label))
	logFile, err := os.CreateTemp(r.logDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create transcript: %w", err)
	}
	defer logFile.Close()
	logPath := logFile.Name()

	fmt.Fprintf(logFile, "$ %s\n", cmd.String())
	tail := &tailBuffer{limit: outputTailBytes}
	started := r.now()
	runErr := r.exec(ctx, cmd, io.MultiWriter(logFile, tail))
	elapsed := r.now().Sub(started).Round(time.Millisecond)
	if runErr != nil {
		fmt.Fprintf(logFile, "\n# failed after %s: %v\n", elapsed, runErr)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return logPath, fmt.Errorf("%s: %w", cmd.Name, ctxErr)
		}
		return logPath, &CommandError{
			Name:    filepath.Base(cmd.Name),
			LogPath: logPath,
			Output:  strings.TrimSpace(tail.String()),
			Err:     runErr,
		}
	}
	fmt.Fprintf(logFile, "\n# ok after %s\n", elapsed)
	return logPath, nil
}

func execProcess(ctx context.Context, c Command, out io.Writer) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Stdin = c.Stdin
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	return cmd.Run()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
