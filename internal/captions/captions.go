// Package captions groups transcript words into short on-screen cues and
// renders them as an ASS subtitle file for burning into vertical video.
package captions

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"reelmill/internal/media"
)

// Cue is one caption shown from Start to End seconds.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// Options bounds cue size.
type Options struct {
	MaxChars   int
	MaxSeconds float64
}

// Build groups words into cues. A cue closes when adding the next word
// would exceed MaxChars or MaxSeconds, or after a word ending a sentence.
func Build(words []media.Word, opts Options) []Cue {
	if opts.MaxChars <= 0 {
		opts.MaxChars = 32
	}
	if opts.MaxSeconds <= 0 {
		opts.MaxSeconds = 2.5
	}
	var cues []Cue
	var current *Cue
	flush := func() {
		if current != nil && current.Text != "" {
			cues = append(cues, *current)
		}
		current = nil
	}
	for _, w := range words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		if current != nil {
			joined := current.Text + " " + text
			if utf8.RuneCountInString(joined) > opts.MaxChars || w.End-current.Start > opts.MaxSeconds {
				flush()
			}
		}
		if current == nil {
			current = &Cue{Start: w.Start, End: w.End, Text: text}
		} else {
			current.Text += " " + text
			current.End = w.End
		}
		if endsSentence(text) {
			flush()
		}
	}
	flush()
	// Close gaps shorter than a frame so captions do not flicker.
	for i := 0; i+1 < len(cues); i++ {
		if gap := cues[i+1].Start - cues[i].End; gap > 0 && gap < 0.1 {
			cues[i].End = cues[i+1].Start
		}
	}
	return cues
}

func endsSentence(word string) bool {
	last, _ := utf8.DecodeLastRuneInString(word)
	switch last {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// Style controls the rendered look.
type Style struct {
	Width    int
	Height   int
	FontName string
}

// WriteASS renders cues as an ASS document.
func WriteASS(w io.Writer, cues []Cue, style Style) error {
	if style.Width <= 0 || style.Height <= 0 {
		return fmt.Errorf("captions: invalid canvas %dx%d", style.Width, style.Height)
	}
	font := style.FontName
	if font == "" {
		font = "DejaVu Sans"
	}
	fontSize := style.Height / 22
	marginV := style.Height / 4
	marginH := style.Width / 12
	outline := max(2, fontSize/12)

	var b strings.Builder
	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&b, "PlayResX: %d\nPlayResY: %d\n", style.Width, style.Height)
	b.WriteString("WrapStyle: 0\nScaledBorderAndShadow: yes\n\n")
	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Default,%s,%d,&H00FFFFFF,&H00FFFFFF,&H00000000,&H64000000,-1,0,0,0,100,100,0,0,1,%d,0,2,%d,%d,%d,1\n\n",
		font, fontSize, outline, marginH, marginH, marginV)
	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, cue := range cues {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n", assTime(cue.Start), assTime(cue.End), escapeText(cue.Text))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteASSFile renders cues into path.
func WriteASSFile(path string, cues []Cue, style Style) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("captions: create %s: %w", path, err)
	}
	if err := WriteASS(f, cues, style); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// assTime formats seconds as h:mm:ss.cc.
func assTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	cs := int(math.Round(seconds * 100))
	h := cs / 360000
	m := (cs / 6000) % 60
	s := (cs / 100) % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}

func escapeText(text string) string {
	r := strings.NewReplacer("{", "(", "}", ")", "\\", "/", "\r\n", `\N`, "\n", `\N`)
	return r.Replace(text)
}
