package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrConflict      = errors.New("ownership conflict")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether err should be retried on the next poll cycle
// without touching the project status.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransient)
}

// ErrorDetails summarizes an error for logs and status messages.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
}

// Details classifies err against the sentinel markers.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error())}
	switch {
	case errors.Is(err, ErrConflict):
		details.Kind = "conflict"
		details.Hint = "another daemon owns this project"
	case errors.Is(err, ErrTimeout):
		details.Kind = "timeout"
		details.Hint = "raise daemon.job_timeout or check the external tool for hangs"
	case errors.Is(err, ErrTransient):
		details.Kind = "transient"
		details.Hint = "will retry on the next poll cycle"
	case errors.Is(err, ErrValidation):
		details.Kind = "validation"
		details.Hint = "inspect the creation snapshot and produced artifacts"
	case errors.Is(err, ErrConfiguration):
		details.Kind = "configuration"
		details.Hint = "check the daemon config and voice catalog"
	case errors.Is(err, ErrNotFound):
		details.Kind = "not_found"
		details.Hint = "a required record or artifact is missing"
	case errors.Is(err, ErrExternalTool):
		details.Kind = "external_tool"
		details.Hint = "see the command transcript in the project log directory"
	default:
		details.Kind = "unknown"
		details.Hint = "check daemon logs for details"
	}
	return details
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// TruncateReason shortens reason to at most limit bytes without splitting a
// multi-byte character, appending an ellipsis when anything was cut.
func TruncateReason(reason string, limit int) string {
	if len(reason) <= limit {
		return reason
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut] + "..."
}
