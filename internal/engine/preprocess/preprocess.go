// Package preprocess normalizes clinical notes into lemmatized,
// stop-word-free text and extracts their named entities.
package preprocess

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/crimson-sun/clinote/internal/model"
)

// Result holds the outputs of preprocessing one note.
type Result struct {
	EntitiesRaw        []model.Entity `json:"entities_raw"`
	Normalized         string         `json:"normalized"`
	EntitiesNormalized []model.Entity `json:"entities_normalized"`
}

// Preprocessor applies the normalization rules over an Analyzer.
type Preprocessor struct {
	analyzer Analyzer
}

// New creates a Preprocessor.
func New(a Analyzer) *Preprocessor {
	return &Preprocessor{analyzer: a}
}

// Preprocess extracts entities from text, expands "y/o" to "year old",
// and rebuilds the text from the lemmas of the tokens that are not stop
// words, punctuation or whitespace. Entities are then extracted again
// from the normalized text.
func (p *Preprocessor) Preprocess(text string) (Result, error) {
	raw, err := p.analyzer.Analyze(text)
	if err != nil {
		return Result{}, err
	}

	expanded := strings.ReplaceAll(text, "y/o", " year old ")
	doc, err := p.analyzer.Analyze(expanded)
	if err != nil {
		return Result{}, err
	}

	words := make([]string, 0, len(doc.Tokens))
	for _, tok := range doc.Tokens {
		if tok.IsStop || tok.IsPunct || tok.IsSpace {
			continue
		}
		lemma := strings.ReplaceAll(strings.TrimSpace(strings.ToLower(tok.Lemma)), ",", "")
		if lemma == "" {
			continue
		}
		words = append(words, lemma)
	}
	normalized := strings.Join(words, " ")

	var ents []model.Entity
	if normalized != "" {
		nd, err := p.analyzer.Analyze(normalized)
		if err != nil {
			return Result{}, err
		}
		ents = nd.Entities
	}

	return Result{
		EntitiesRaw:        raw.Entities,
		Normalized:         normalized,
		EntitiesNormalized: ents,
	}, nil
}

// Notes assigns each note its integer label and fills its preprocessed
// fields in place. Per-category counts are logged first.
func (p *Preprocessor) Notes(notes []model.Note, labels *model.LabelDictionary) error {
	counts := make(map[string]int)
	for _, n := range notes {
		counts[n.Category]++
	}
	for _, name := range labels.Names() {
		slog.Info("category count", "category", name, "notes", counts[name])
	}

	for i := range notes {
		id, err := labels.Encode(notes[i].Category)
		if err != nil {
			return fmt.Errorf("preprocess: note %d: %w", i, err)
		}
		res, err := p.Preprocess(notes[i].Text)
		if err != nil {
			return fmt.Errorf("preprocess: note %d: %w", i, err)
		}
		notes[i].CategoryLabel = id
		notes[i].EntitiesRaw = res.EntitiesRaw
		notes[i].Preprocessed = res.Normalized
		notes[i].EntitiesPreprocessed = res.EntitiesNormalized
	}
	return nil
}
