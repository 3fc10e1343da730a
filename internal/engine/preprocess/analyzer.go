package preprocess

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/jdkato/prose/v2"

	"github.com/crimson-sun/clinote/internal/model"
)

// Token is one analyzed token of a document.
type Token struct {
	Text    string
	Lemma   string
	IsStop  bool
	IsPunct bool
	IsSpace bool
}

// Doc is the result of analyzing a text.
type Doc struct {
	Tokens   []Token
	Entities []model.Entity
}

// Analyzer tokenizes, lemmatizes and extracts named entities from text.
type Analyzer interface {
	Analyze(text string) (Doc, error)
}

// ProseAnalyzer uses prose for tokenization and entity extraction and
// golem's English dictionary for lemmas.
type ProseAnalyzer struct {
	lemmatizer *golem.Lemmatizer
	stop       map[string]bool
}

// NewProseAnalyzer loads the English lemma dictionary.
func NewProseAnalyzer() (*ProseAnalyzer, error) {
	lem, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("preprocess: load lemmatizer: %w", err)
	}
	return &ProseAnalyzer{lemmatizer: lem, stop: stopSet}, nil
}

// Analyze implements Analyzer.
func (a *ProseAnalyzer) Analyze(text string) (Doc, error) {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return Doc{}, fmt.Errorf("preprocess: %w", err)
	}

	var out Doc
	for _, tok := range doc.Tokens() {
		lower := strings.ToLower(tok.Text)
		lemma := a.lemma(lower)
		out.Tokens = append(out.Tokens, Token{
			Text:    tok.Text,
			Lemma:   lemma,
			IsStop:  a.stop[lower] || a.stop[strings.ToLower(lemma)],
			IsPunct: isPunct(tok.Text),
			IsSpace: strings.TrimSpace(tok.Text) == "",
		})
	}
	for _, ent := range doc.Entities() {
		words := strings.Fields(strings.ToLower(ent.Text))
		for i, w := range words {
			words[i] = a.lemma(w)
		}
		out.Entities = append(out.Entities, model.Entity{
			Lemma: strings.Join(words, " "),
			Label: ent.Label,
		})
	}
	return out, nil
}

func (a *ProseAnalyzer) lemma(word string) string {
	if word == "" {
		return ""
	}
	return a.lemmatizer.Lemma(word)
}

// isPunct reports whether every rune of s is punctuation or a symbol.
func isPunct(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}
