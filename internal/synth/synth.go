// Package synth fabricates the presentation data a real generation
// pipeline would produce: track titles, waveforms, durations and covers.
package synth

import (
	"math/rand/v2"
	"strings"
	"unicode"
)

const (
	// WaveformLength is the number of samples rendered by the player UI.
	WaveformLength = 50

	// MinDuration and MaxDuration bound synthesized track length, seconds.
	MinDuration = 180
	MaxDuration = 300

	titleWordMin  = 4
	titleMaxWords = 3
	titleFallback = 30
)

// Covers is the gradient palette assigned to new generations.
var Covers = []string{
	"linear-gradient(135deg, #667eea 0%, #764ba2 100%)",
	"linear-gradient(135deg, #f093fb 0%, #f5576c 100%)",
	"linear-gradient(135deg, #4facfe 0%, #00f2fe 100%)",
	"linear-gradient(135deg, #43e97b 0%, #38f9d7 100%)",
	"linear-gradient(135deg, #fa709a 0%, #fee140 100%)",
}

// Placeholders rotate through the prompt input when it is empty.
var Placeholders = []string{
	"A dreamy synthwave track for late night drives",
	"Upbeat funk with slap bass and horns",
	"Melancholic piano ballad about distant summers",
	"Heavy metal anthem with soaring guitar solos",
	"Lo-fi hip hop beats with vinyl crackle",
}

// RandomPlaceholder picks a suggestion for the prompt input.
func RandomPlaceholder() string {
	return Placeholders[rand.IntN(len(Placeholders))]
}

// Title derives a display title from a free-text prompt: the first few
// sufficiently long words, title-cased. Prompts without at least two such
// words fall back to a truncated copy of the prompt itself.
func Title(prompt string) string {
	var words []string
	for _, w := range strings.Fields(prompt) {
		if len(w) >= titleWordMin {
			words = append(words, w)
		}
		if len(words) == titleMaxWords {
			break
		}
	}
	if len(words) < 2 {
		// Truncate on runes, not bytes; prompts are free text.
		runes := []rune(prompt)
		if len(runes) > titleFallback {
			return string(runes[:titleFallback])
		}
		return prompt
	}
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// Waveform returns WaveformLength samples in (0.2, 1.0) for visualization.
func Waveform() []float64 {
	samples := make([]float64, WaveformLength)
	for i := range samples {
		samples[i] = rand.Float64()*0.8 + 0.2
	}
	return samples
}

// Duration returns a synthetic track length in [MinDuration, MaxDuration].
func Duration() int {
	return MinDuration + rand.IntN(MaxDuration-MinDuration+1)
}

// RandomCover picks a cover from the palette.
func RandomCover() string {
	return Covers[rand.IntN(len(Covers))]
}
