package llm

import (
	"context"
	"fmt"
	"strings"

	"reelmill/internal/language"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

const (
	draftTemperature     = 0.7
	translateTemperature = 0.3
	metadataTemperature  = 0.4
	maxHashtags          = 8
)

// Completer issues JSON chat completions.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// Writer produces the text artifacts of a project.
type Writer struct {
	completer Completer
}

// NewWriter returns a writer backed by completer.
func NewWriter(completer Completer) *Writer {
	return &Writer{completer: completer}
}

// DraftRequest describes a script to draft.
type DraftRequest struct {
	Prompt      string
	Language    string
	Template    string
	StylePrompt string
	SceneCount  int
	// Refinement and Previous are set when regenerating an existing script.
	Refinement string
	Previous   string
}

// Draft writes the narration script for req.Language.
func (w *Writer) Draft(ctx context.Context, req DraftRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "draft", "prompt is empty", nil)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", language.DisplayName(req.Language))
	fmt.Fprintf(&b, "Topic: %s\n", strings.TrimSpace(req.Prompt))
	if t := strings.TrimSpace(req.Template); t != "" {
		fmt.Fprintf(&b, "Format template: %s\n", t)
	}
	if s := strings.TrimSpace(req.StylePrompt); s != "" {
		fmt.Fprintf(&b, "Style: %s\n", s)
	}
	if req.SceneCount > 0 {
		fmt.Fprintf(&b, "Write %d short paragraphs, one per visual scene.\n", req.SceneCount)
	}
	if prev := strings.TrimSpace(req.Previous); prev != "" {
		fmt.Fprintf(&b, "\nPrevious draft:\n%s\n", prev)
	}
	if r := strings.TrimSpace(req.Refinement); r != "" {
		fmt.Fprintf(&b, "\nRevise the previous draft as follows: %s\n", r)
	}
	return w.script(ctx, "draft", ScriptPrompt, b.String(), draftTemperature)
}

// Translate adapts script from one language to another.
func (w *Writer) Translate(ctx context.Context, script, from, to string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "translate", "source script is empty", nil)
	}
	user := fmt.Sprintf("Source language: %s\nTarget language: %s\n\nScript:\n%s",
		language.DisplayName(from), language.DisplayName(to), strings.TrimSpace(script))
	return w.script(ctx, "translate", TranslatePrompt, user, translateTemperature)
}

// Metadata writes the upload metadata of a script in lang.
func (w *Writer) Metadata(ctx context.Context, script, lang string) (project.VideoMetadata, error) {
	if strings.TrimSpace(script) == "" {
		return project.VideoMetadata{}, services.Wrap(services.ErrValidation, "llm", "metadata", "script is empty", nil)
	}
	user := fmt.Sprintf("Language: %s\n\nScript:\n%s", language.DisplayName(lang), strings.TrimSpace(script))
	content, err := w.completer.CompleteJSON(ctx, MetadataPrompt, user, metadataTemperature)
	if err != nil {
		return project.VideoMetadata{}, err
	}
	var parsed project.VideoMetadata
	if err := DecodeJSON(content, &parsed); err != nil {
		return project.VideoMetadata{}, services.Wrap(services.ErrExternalTool, "llm", "metadata", "unparseable response", err)
	}
	parsed.Title = strings.TrimSpace(parsed.Title)
	parsed.Description = strings.TrimSpace(parsed.Description)
	parsed.Hashtags = normalizeHashtags(parsed.Hashtags)
	if parsed.Title == "" {
		return project.VideoMetadata{}, services.Wrap(services.ErrExternalTool, "llm", "metadata", "response has no title", nil)
	}
	return parsed, nil
}

func (w *Writer) script(ctx context.Context, op, system, user string, temperature float64) (string, error) {
	content, err := w.completer.CompleteJSON(ctx, system, user, temperature)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Script string `json:"script"`
	}
	if err := DecodeJSON(content, &parsed); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "llm", op, "unparseable response", err)
	}
	text := strings.TrimSpace(parsed.Script)
	if text == "" {
		return "", services.Wrap(services.ErrExternalTool, "llm", op, "model returned an empty script", nil)
	}
	return text, nil
}

func normalizeHashtags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.Join(strings.Fields(tag), "")
		tag = strings.TrimLeft(tag, "#")
		if tag == "" {
			continue
		}
		tag = "#" + tag
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
		if len(out) == maxHashtags {
			break
		}
	}
	return out
}
