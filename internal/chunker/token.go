package chunker

import (
	"unicode"

	"github.com/rivo/uniseg"
)

// tokensPerWord is 1.45 expressed in hundredths so estimates stay in
// integer arithmetic.
const tokensPerWord = 145

// CountWords counts whitespace-separated words, walking the text by
// grapheme cluster so combining sequences and multi-byte emoji are never
// split.
func CountWords(text string) int {
	words := 0
	inWord := false
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		if isSpaceCluster(g.Runes()) {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	return words
}

// EstimateTokens approximates the embedding model's token count as
// ceil(words * 1.45). It never calls a remote tokenizer.
func EstimateTokens(text string) int {
	return tokensForWords(CountWords(text))
}

func tokensForWords(words int) int {
	return (words*tokensPerWord + 99) / 100
}

// WordsForTokens returns the largest word count whose estimate stays
// within tokens.
func WordsForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * 100 / tokensPerWord
}

func isSpaceCluster(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return len(runes) > 0
}
