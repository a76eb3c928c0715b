package embedding

import (
	"math"
	"strings"
	"unicode/utf8"
)

// splitText cuts text into pieces of at most maxRunes runes, breaking on whitespace.
// A single word longer than maxRunes is split mid-word. maxRunes <= 0 disables splitting.
func splitText(text string, maxRunes int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		for len(runes) > maxRunes {
			flush()
			chunks = append(chunks, string(runes[:maxRunes]))
			runes = runes[maxRunes:]
		}
		n := len(runes)
		if n == 0 {
			continue
		}
		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+n > maxRunes {
			flush()
			sep = 0
		}
		if sep == 1 {
			cur.WriteByte(' ')
		}
		cur.WriteString(string(runes))
		curLen += sep + n
	}
	flush()
	return chunks
}

// combine averages vectors weighted by weights and scales the result to unit length.
// It returns nil when the vectors disagree on dimension or the mean is the zero vector.
func combine(vectors [][]float32, weights []int) []float32 {
	if len(vectors) == 0 || len(vectors) != len(weights) {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil
		}
		w := float64(weights[i])
		for j, x := range v {
			sum[j] += w * float64(x)
		}
	}

	var norm float64
	for _, x := range sum {
		norm += x * x
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dim)
	for j, x := range sum {
		out[j] = float32(x / norm)
	}
	return out
}
