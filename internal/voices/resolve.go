package voices

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"reelmill/internal/language"
	"reelmill/internal/services"
)

// Source records which rule picked a voice.
type Source string

const (
	SourceRequested Source = "requested"
	SourceLanguage  Source = "language"
	SourceDefault   Source = "default"
)

// Request describes the voice wanted for one language.
type Request struct {
	Language string
	// VoiceID is the voice chosen at project creation.
	VoiceID string
	// LanguageVoices maps languages to preferred voices.
	LanguageVoices map[string]string
	// Style is the optional delivery guidance.
	Style string
	// DefaultVoice overrides the catalog default when set.
	DefaultVoice string
}

// Resolution is the voice selected for a language.
type Resolution struct {
	Voice    Voice
	Provider Provider
	Source   Source
	// Style is empty when the provider cannot honor style guidance.
	Style string
}

// Supports reports whether v can narrate lang.
func (v Voice) Supports(lang string) bool {
	return language.Matches(v.Languages, lang)
}

// Resolve selects a voice for req.Language: the requested voice when it
// supports the language, else the voice mapped to that language, else the
// global default.
func (c *Catalog) Resolve(req Request) (Resolution, error) {
	lang, err := language.Normalize(req.Language)
	if err != nil {
		return Resolution{}, services.Wrap(services.ErrValidation, "voices", "resolve", "invalid language", err)
	}

	if voice, ok := c.Voice(req.VoiceID); ok && voice.Supports(lang) {
		return c.resolution(voice, SourceRequested, req.Style), nil
	}
	if mapped := mappedVoice(req.LanguageVoices, lang); mapped != "" {
		if voice, ok := c.Voice(mapped); ok && voice.Supports(lang) {
			return c.resolution(voice, SourceLanguage, req.Style), nil
		}
	}
	for _, voice := range c.Voices {
		if voice.Supports(lang) && languageSpecific(voice) {
			return c.resolution(voice, SourceLanguage, req.Style), nil
		}
	}

	fallback := strings.TrimSpace(req.DefaultVoice)
	if fallback == "" {
		fallback = c.DefaultVoice
	}
	voice, ok := c.Voice(fallback)
	if !ok {
		return Resolution{}, services.Wrap(services.ErrConfiguration, "voices", "resolve",
			fmt.Sprintf("no voice for language %q and default voice %q is not in the catalog", lang, fallback), nil)
	}
	return c.resolution(voice, SourceDefault, req.Style), nil
}

func (c *Catalog) resolution(voice Voice, source Source, style string) Resolution {
	provider := c.providers[voice.Provider]
	res := Resolution{Voice: voice, Provider: provider, Source: source}
	if provider.SupportsStyle {
		res.Style = strings.TrimSpace(style)
	}
	return res
}

func mappedVoice(mapping map[string]string, lang string) string {
	if id, ok := mapping[lang]; ok {
		return id
	}
	base := language.Base(lang)
	for _, key := range slices.Sorted(maps.Keys(mapping)) {
		if language.Base(key) == base {
			return mapping[key]
		}
	}
	return ""
}

// languageSpecific reports whether v is bound to explicit languages.
func languageSpecific(v Voice) bool {
	for _, l := range v.Languages {
		if l == "*" {
			return false
		}
	}
	return true
}
