package phases

import (
	"strings"
	"unicode"

	"reelmill/internal/media"
)

// Scene is one illustrated segment of the narration.
type Scene struct {
	Index    int
	Text     string
	Start    float64
	Duration float64
}

const (
	minSceneSeconds = 0.5
	tailSeconds     = 0.5
)

// SplitScenes divides script into at most count scenes of roughly equal
// word count, cutting on sentence boundaries when possible.
func SplitScenes(script string, count int) []Scene {
	sentences := splitSentences(script)
	if len(sentences) == 0 {
		return nil
	}
	if count <= 0 {
		count = 1
	}
	if count > len(sentences) {
		count = len(sentences)
	}
	total := 0
	for _, s := range sentences {
		total += len(strings.Fields(s))
	}
	target := float64(total) / float64(count)

	scenes := make([]Scene, 0, count)
	var current []string
	words := 0
	for i, sentence := range sentences {
		current = append(current, sentence)
		words += len(strings.Fields(sentence))
		left := len(sentences) - i - 1
		slots := count - len(scenes) - 1
		if slots > 0 && (float64(words) >= target*float64(len(scenes)+1) || left == slots) {
			scenes = append(scenes, Scene{Index: len(scenes), Text: strings.Join(current, " ")})
			current = nil
		}
	}
	if len(current) > 0 {
		scenes = append(scenes, Scene{Index: len(scenes), Text: strings.Join(current, " ")})
	}
	return scenes
}

// TimeScenes assigns start and duration to scenes by mapping each scene's
// share of script words onto the transcript's word timings.
func TimeScenes(scenes []Scene, words []media.Word, total float64) []Scene {
	if len(scenes) == 0 {
		return nil
	}
	if len(words) > 0 && words[len(words)-1].End > total {
		total = words[len(words)-1].End
	}
	end := total + tailSeconds

	scriptWords := 0
	counts := make([]int, len(scenes))
	for i, scene := range scenes {
		counts[i] = len(strings.Fields(scene.Text))
		scriptWords += counts[i]
	}
	starts := make([]float64, len(scenes))
	seen := 0
	for i := range scenes {
		switch {
		case i == 0:
		case len(words) == 0 || scriptWords == 0:
			starts[i] = end * float64(seen) / float64(max(scriptWords, 1))
		default:
			idx := min(seen*len(words)/scriptWords, len(words)-1)
			starts[i] = words[idx].Start
		}
		seen += counts[i]
	}

	out := make([]Scene, len(scenes))
	for i, scene := range scenes {
		scene.Start = starts[i]
		next := end
		if i+1 < len(scenes) {
			next = starts[i+1]
		}
		scene.Duration = next - scene.Start
		if scene.Duration < minSceneSeconds {
			scene.Duration = minSceneSeconds
		}
		out[i] = scene
	}
	return out
}

func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		if r == '\n' {
			r = ' '
		}
		if unicode.IsSpace(r) && b.Len() == 0 {
			continue
		}
		b.WriteRune(r)
		if !strings.ContainsRune(".!?。！？", r) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := collapse(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}
	if s := collapse(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
