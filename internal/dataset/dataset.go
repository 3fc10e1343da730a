// Package dataset loads the notes table and the term-matching table from
// CSV files.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crimson-sun/clinote/internal/model"
)

// LoadNotes reads a notes CSV with "category" and "notes" header columns.
// Other columns are ignored.
func LoadNotes(path string) ([]model.Note, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()
	return ReadNotes(f)
}

// ReadNotes parses a notes CSV from r.
func ReadNotes(r io.Reader) ([]model.Note, error) {
	var notes []model.Note
	err := readTable(r, []string{"category", "notes"}, func(rec []string) {
		notes = append(notes, model.Note{Category: rec[0], Text: rec[1]})
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// LoadTerms reads a term-matching CSV with "Term1" and "Term2" columns.
func LoadTerms(path string) ([]model.TermPair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()
	return ReadTerms(f)
}

// ReadTerms parses a term-matching CSV from r.
func ReadTerms(r io.Reader) ([]model.TermPair, error) {
	var pairs []model.TermPair
	err := readTable(r, []string{"Term1", "Term2"}, func(rec []string) {
		pairs = append(pairs, model.TermPair{Term1: rec[0], Term2: rec[1]})
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// readTable calls row with the values of the wanted columns, in the order
// given, for every data row.
func readTable(r io.Reader, want []string, row func([]string)) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return errors.New("dataset: empty file")
	}
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}

	pos := make([]int, len(want))
	for i, name := range want {
		pos[i] = -1
		for j, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name {
				pos[i] = j
				break
			}
		}
		if pos[i] < 0 {
			return fmt.Errorf("dataset: missing column %q", name)
		}
	}

	vals := make([]string, len(want))
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dataset: %w", err)
		}
		for i, p := range pos {
			if p >= len(rec) {
				return fmt.Errorf("dataset: line %d: missing value for %q", line, want[i])
			}
			vals[i] = rec[p]
		}
		row(append([]string(nil), vals...))
	}
}
