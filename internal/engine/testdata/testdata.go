// Package testdata holds a small labeled corpus of clinical notes and a
// term-matching table for end-to-end tests.
package testdata

import (
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/crimson-sun/clinote/internal/dataset"
	"github.com/crimson-sun/clinote/internal/model"
)

//go:embed notes.csv
var notesCSV []byte

//go:embed terms.csv
var termsCSV []byte

// Notes parses the embedded notes corpus: 20 notes over 3 categories.
func Notes() ([]model.Note, error) {
	notes, err := dataset.ReadNotes(bytes.NewReader(notesCSV))
	if err != nil {
		return nil, fmt.Errorf("parse notes.csv: %w", err)
	}
	return notes, nil
}

// Terms parses the embedded term-matching table.
func Terms() ([]model.TermPair, error) {
	pairs, err := dataset.ReadTerms(bytes.NewReader(termsCSV))
	if err != nil {
		return nil, fmt.Errorf("parse terms.csv: %w", err)
	}
	return pairs, nil
}

var wordRe = regexp.MustCompile(`[A-Za-z]+`)

// Words returns the distinct lowercase words of the notes and terms, for
// building a test vocabulary.
func Words() []string {
	seen := make(map[string]bool)
	var words []string
	for _, src := range [][]byte{notesCSV, termsCSV} {
		for _, w := range wordRe.FindAllString(string(src), -1) {
			w = strings.ToLower(w)
			if !seen[w] {
				seen[w] = true
				words = append(words, w)
			}
		}
	}
	return words
}
