// Package language normalizes the language codes that flow between the
// control plane, the voice catalog, and the LLM prompts.
package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Normalize returns the canonical BCP 47 form of code ("EN_us" -> "en-US").
func Normalize(code string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(code, "_", "-"))
	if trimmed == "" {
		return "", fmt.Errorf("empty language code")
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse language %q: %w", code, err)
	}
	return tag.String(), nil
}

// Base returns the primary subtag of code ("pt-BR" -> "pt"). Unparseable
// codes are returned lower-cased.
func Base(code string) string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(code, "_", "-"))
	tag, err := language.Parse(trimmed)
	if err != nil {
		return strings.ToLower(trimmed)
	}
	base, _ := tag.Base()
	return base.String()
}

// Matches reports whether a voice advertising supported can speak target.
// Region subtags are ignored: an "es-MX" voice speaks "es".
func Matches(supported []string, target string) bool {
	want := Base(target)
	for _, code := range supported {
		if code == "*" || Base(code) == want {
			return true
		}
	}
	return false
}

// DisplayName returns the English name of code for prompts and tables,
// falling back to the code itself.
func DisplayName(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
