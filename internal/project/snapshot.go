package project

import (
	"fmt"
	"strings"

	"reelmill/internal/language"
	"reelmill/internal/services"
)

// CreationSnapshot is the configuration captured when the project run
// started. Phases read it and never write it.
type CreationSnapshot struct {
	ProjectID         string            `json:"projectId"`
	Prompt            string            `json:"prompt"`
	Languages         []string          `json:"languages"`
	VoiceID           string            `json:"voiceId,omitempty"`
	LanguageVoices    map[string]string `json:"languageVoices,omitempty"`
	Template          string            `json:"template,omitempty"`
	StylePrompt       string            `json:"stylePrompt,omitempty"`
	UseGuidance       bool              `json:"useGuidance"`
	AutoApproveScript bool              `json:"autoApproveScript"`
	AutoApproveAudio  bool              `json:"autoApproveAudio"`
	AudioCandidates   int               `json:"audioCandidates,omitempty"`
	SceneCount        int               `json:"sceneCount,omitempty"`
}

// Primary returns the primary language.
func (s CreationSnapshot) Primary() string {
	if len(s.Languages) == 0 {
		return ""
	}
	return s.Languages[0]
}

// IsPrimary reports whether lang is the primary language.
func (s CreationSnapshot) IsPrimary(lang string) bool {
	return lang != "" && lang == s.Primary()
}

// VoiceFor returns the voice mapped for lang, if any.
func (s CreationSnapshot) VoiceFor(lang string) string {
	if v, ok := s.LanguageVoices[lang]; ok {
		return strings.TrimSpace(v)
	}
	base := language.Base(lang)
	for code, v := range s.LanguageVoices {
		if language.Base(code) == base {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Validate rejects snapshots no phase can work with.
func (s CreationSnapshot) Validate() error {
	if strings.TrimSpace(s.Prompt) == "" {
		return services.Wrap(services.ErrValidation, "snapshot", "validate", "prompt is empty", nil)
	}
	if len(s.Languages) == 0 {
		return services.Wrap(services.ErrValidation, "snapshot", "validate", "languages list is empty", nil)
	}
	seen := make(map[string]struct{}, len(s.Languages))
	for _, lang := range s.Languages {
		normalized, err := language.Normalize(lang)
		if err != nil {
			return services.Wrap(services.ErrValidation, "snapshot", "validate", fmt.Sprintf("language %q", lang), err)
		}
		if _, dup := seen[normalized]; dup {
			return services.Wrap(services.ErrValidation, "snapshot", "validate", fmt.Sprintf("duplicate language %q", lang), nil)
		}
		seen[normalized] = struct{}{}
	}
	if s.AudioCandidates < 0 || s.SceneCount < 0 {
		return services.Wrap(services.ErrValidation, "snapshot", "validate", "negative candidate or scene count", nil)
	}
	return nil
}
