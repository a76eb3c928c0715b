package embedding

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"fits", "short text", 100, []string{"short text"}},
		{"empty", "   ", 10, nil},
		{"breaks on whitespace", "alpha beta gamma delta", 11, []string{"alpha beta", "gamma delta"}},
		{"long word split", "abcdefghij xy", 4, []string{"abcd", "efgh", "ij", "xy"}},
		{"disabled", "a b c", 0, []string{"a b c"}},
		{"runes not bytes", "ααα βββ", 3, []string{"ααα", "βββ"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := splitText(tc.text, tc.max)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
				t.Errorf("splitText(%q, %d) = %q, want %q", tc.text, tc.max, got, tc.want)
			}
		})
	}
}

func TestSplitText_RespectsLimit(t *testing.T) {
	text := strings.Repeat("pembrolizumab nivolumab ", 200)
	for _, c := range splitText(text, 50) {
		if n := utf8.RuneCountInString(c); n > 50 || n == 0 {
			t.Fatalf("chunk of %d runes: %q", n, c)
		}
	}
}

func TestCombine_WeightedAndNormalized(t *testing.T) {
	got := combine([][]float32{{1, 0}, {0, 1}}, []int{3, 1})
	if got == nil {
		t.Fatal("combine returned nil")
	}
	norm := math.Hypot(float64(got[0]), float64(got[1]))
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("norm = %v, want 1", norm)
	}
	if math.Abs(float64(got[0])/float64(got[1])-3) > 1e-5 {
		t.Errorf("weights not applied: %v", got)
	}
}

func TestCombine_Degenerate(t *testing.T) {
	if combine(nil, nil) != nil {
		t.Error("expected nil for no vectors")
	}
	if combine([][]float32{{1, 0}, {1}}, []int{1, 1}) != nil {
		t.Error("expected nil for mismatched dimensions")
	}
	if combine([][]float32{{1, 0}, {-1, 0}}, []int{1, 1}) != nil {
		t.Error("expected nil for zero mean")
	}
}
