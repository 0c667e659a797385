package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"reelmill/internal/deps"
	"reelmill/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 22
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// checkLines renders preflight results and reports whether any failed.
func checkLines(results []preflight.Result, colorize bool) ([]string, bool) {
	lines := make([]string, 0, len(results))
	failed := false
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
			failed = true
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines, failed
}

// dependencyLines renders a summary line followed by one line per binary.
// Missing optional binaries are warnings; missing required ones are errors.
func dependencyLines(statuses []deps.Status, colorize bool) ([]string, bool) {
	missingRequired := 0
	missingOptional := 0
	for _, s := range statuses {
		if s.Available {
			continue
		}
		if s.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	summaryKind := statusOK
	summary := fmt.Sprintf("%d of %d available", len(statuses)-missingRequired-missingOptional, len(statuses))
	switch {
	case missingRequired > 0:
		summaryKind = statusError
	case missingOptional > 0:
		summaryKind = statusWarn
	}
	lines := []string{renderStatusLine("Summary", summaryKind, summary, colorize)}

	for _, s := range statuses {
		kind := statusOK
		message := s.Command
		if !s.Available {
			kind = statusError
			if s.Optional {
				kind = statusWarn
			}
			message = s.Detail
		}
		lines = append(lines, renderStatusLine(s.Name, kind, message, colorize))
	}
	return lines, missingRequired > 0
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
