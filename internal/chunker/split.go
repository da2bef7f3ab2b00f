package chunker

import (
	"strings"

	"github.com/rivo/uniseg"
)

// breakPoints are tried in order, coarsest first, when a fragment has to
// be cut.
var breakPoints = []string{"\n\n", "\n", ". ", "? ", "! ", ", ", "; ", " "}

// splitOversized cuts text into fragments of at most budget words. Cuts
// happen only between grapheme clusters, preferring the coarsest
// boundary found in the back half of the fragment.
func splitOversized(text string, budget int) []string {
	budget = max(budget, 1)

	var out []string
	var cur strings.Builder
	words := 0
	inWord := false

	cut := func() {
		s := cur.String()
		at := breakIndex(s)
		if frag := strings.TrimSpace(s[:at]); frag != "" {
			out = append(out, frag)
		}
		rest := s[at:]
		cur.Reset()
		cur.WriteString(rest)
		words = CountWords(rest)
	}

	g := uniseg.NewGraphemes(text)
	for g.Next() {
		cluster := g.Str()
		if isSpaceCluster(g.Runes()) {
			inWord = false
			cur.WriteString(cluster)
			continue
		}
		if !inWord {
			for words+1 > budget {
				cut()
			}
			words++
			inWord = true
		}
		cur.WriteString(cluster)
	}
	if frag := strings.TrimSpace(cur.String()); frag != "" {
		out = append(out, frag)
	}
	return out
}

// breakIndex returns where to cut s. It looks for break points in the back
// half only and falls back to cutting all of s.
func breakIndex(s string) int {
	window := len(s) / 2
	for _, bp := range breakPoints {
		if i := strings.LastIndex(s[window:], bp); i >= 0 {
			return window + i + len(bp)
		}
	}
	return len(s)
}
