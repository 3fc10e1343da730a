package preprocess

import (
	_ "embed"
	"strings"
)

//go:embed stopwords.txt
var stopWordList string

func stopWords() map[string]bool {
	words := strings.Fields(stopWordList)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// IsStopWord reports whether the lowercase word is in the English stop list.
func IsStopWord(word string) bool {
	return stopSet[strings.ToLower(word)]
}

var stopSet = stopWords()
