package similarity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/crimson-sun/clinote/internal/model"
)

// ErrMisaligned is returned when word pairs do not match the table rows
// one for one.
var ErrMisaligned = errors.New("similarity: word pairs do not match term matching rows")

// Column is one named score per table row.
type Column struct {
	Name   string
	Values []float64
}

// Table is the term-matching table: a fixed list of term pairs and a
// growing set of score columns.
type Table struct {
	rows []model.TermPair
	cols []Column
}

// NewTable creates a table over rows. The row set never changes.
func NewTable(rows []model.TermPair) *Table {
	return &Table{rows: append([]model.TermPair(nil), rows...)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of the term pairs.
func (t *Table) Rows() []model.TermPair {
	return append([]model.TermPair(nil), t.rows...)
}

// Columns returns the score columns in the order they were added.
func (t *Table) Columns() []Column {
	return append([]Column(nil), t.cols...)
}

// Column looks up a score column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.cols {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Add appends c, or replaces the existing column with the same name.
func (t *Table) Add(c Column) error {
	if len(c.Values) != len(t.rows) {
		return fmt.Errorf("similarity: column %q has %d values for %d rows: %w",
			c.Name, len(c.Values), len(t.rows), ErrMisaligned)
	}
	c.Values = append([]float64(nil), c.Values...)
	for i := range t.cols {
		if t.cols[i].Name == c.Name {
			t.cols[i] = c
			return nil
		}
	}
	t.cols = append(t.cols, c)
	return nil
}

// CheckPairs verifies that pairs lists the same terms as the table rows, in
// the same order.
func (t *Table) CheckPairs(pairs []model.TermPair) error {
	if len(pairs) != len(t.rows) {
		return fmt.Errorf("%w: %d pairs for %d rows", ErrMisaligned, len(pairs), len(t.rows))
	}
	for i, p := range pairs {
		if p != t.rows[i] {
			return fmt.Errorf("%w: row %d is %q/%q, pair is %q/%q",
				ErrMisaligned, i, t.rows[i].Term1, t.rows[i].Term2, p.Term1, p.Term2)
		}
	}
	return nil
}

// WriteCSV writes the table with a Term1,Term2,<columns...> header.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"Term1", "Term2"}
	for _, c := range t.cols {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("similarity: %w", err)
	}
	for i, r := range t.rows {
		rec := []string{r.Term1, r.Term2}
		for _, c := range t.cols {
			rec = append(rec, strconv.FormatFloat(c.Values[i], 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("similarity: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("similarity: %w", err)
	}
	return nil
}

// Save writes the table as CSV to path.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("similarity: %w", err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
