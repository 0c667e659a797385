package media

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Word is a single word with timing from a WhisperX transcript.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a transcribed span.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words"`
}

// Transcript is the WhisperX JSON document.
type Transcript struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
}

// LoadTranscript reads a WhisperX JSON file.
func LoadTranscript(path string) (Transcript, error) {
	var t Transcript
	data, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse whisperx json: %w", err)
	}
	return t, nil
}

// Words flattens the transcript into timed words. Words WhisperX could not
// align (zero or inverted timing) inherit the bounds of their neighbours.
func (t Transcript) Words() []Word {
	var words []Word
	for _, seg := range t.Segments {
		if len(seg.Words) == 0 {
			if text := strings.TrimSpace(seg.Text); text != "" {
				words = append(words, Word{Word: text, Start: seg.Start, End: seg.End})
			}
			continue
		}
		for _, w := range seg.Words {
			w.Word = strings.TrimSpace(w.Word)
			if w.Word == "" {
				continue
			}
			words = append(words, w)
		}
	}
	for i := range words {
		if words[i].End > words[i].Start {
			continue
		}
		if i > 0 && words[i].Start < words[i-1].End {
			words[i].Start = words[i-1].End
		}
		if words[i].End <= words[i].Start {
			words[i].End = words[i].Start + 0.2
		}
	}
	return words
}

// Duration returns the end time of the last segment.
func (t Transcript) Duration() float64 {
	var end float64
	for _, seg := range t.Segments {
		if seg.End > end {
			end = seg.End
		}
		for _, w := range seg.Words {
			if w.End > end {
				end = w.End
			}
		}
	}
	return end
}

// Text joins the segment texts.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
