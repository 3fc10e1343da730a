// Package workbook collects result records into an .xlsx workbook with one
// sheet of headline scores, one of classification reports and, when given,
// one of term-matching similarities.
package workbook

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/crimson-sun/clinote/internal/engine/similarity"
	"github.com/crimson-sun/clinote/internal/model"
	"github.com/crimson-sun/clinote/internal/output"
)

// Sheet names.
const (
	ScoresSheet  = "Scores"
	ReportsSheet = "Reports"
	TermsSheet   = "Term Matching"
)

var (
	scoreHeaders  = []any{"Key", "Model", "Column", "Accuracy", "Precision", "Recall", "F1-Score", "Created"}
	reportHeaders = []any{"Key", "Class", "precision", "recall", "f1-score", "support"}
)

// Output buffers records and writes the workbook on Close.
type Output struct {
	mu        sync.Mutex
	path      string
	verbosity output.Verbosity
	records   []model.ResultRecord
	table     *similarity.Table
}

// New creates a workbook output saving to path.
func New(path string, verbosity output.Verbosity) *Output {
	return &Output{path: path, verbosity: verbosity}
}

func (o *Output) Write(_ context.Context, rec model.ResultRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, output.FormatRecord(rec, o.verbosity))
	return nil
}

// WriteTable keeps the latest similarity table for the Term Matching sheet.
func (o *Output) WriteTable(_ context.Context, table *similarity.Table) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.table = table
	return nil
}

// Close renders and saves the workbook. An output that received nothing
// writes nothing.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.records) == 0 && o.table == nil {
		return nil
	}

	start := time.Now()
	f, err := o.build()
	if err != nil {
		return fmt.Errorf("workbook output: %w", err)
	}
	defer f.Close()

	if dir := filepath.Dir(o.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("workbook output: %w", err)
		}
	}
	if err := f.SaveAs(o.path); err != nil {
		return fmt.Errorf("workbook output: save %s: %w", o.path, err)
	}
	slog.Info("workbook written", "path", o.path, "records", len(o.records), "elapsed", time.Since(start))
	return nil
}

func (o *Output) build() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ScoresSheet); err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	steps := []func(*excelize.File, int) error{o.scores, o.reports}
	if o.table != nil {
		steps = append(steps, o.terms)
	}
	for _, step := range steps {
		if err := step(f, bold); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func (o *Output) scores(f *excelize.File, bold int) error {
	if err := header(f, ScoresSheet, scoreHeaders, bold); err != nil {
		return err
	}
	for i, rec := range o.records {
		row := []any{
			rec.Key, rec.ModelTag, string(rec.Column),
			rec.Scores.Accuracy, rec.Scores.Precision, rec.Scores.Recall, rec.Scores.F1,
			rec.CreatedAt.Format(time.RFC3339),
		}
		if err := setRow(f, ScoresSheet, i+2, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(ScoresSheet, "A", "A", 28)
	_ = f.SetColWidth(ScoresSheet, "C", "C", 18)
	_ = f.SetColWidth(ScoresSheet, "H", "H", 22)
	return nil
}

func (o *Output) reports(f *excelize.File, bold int) error {
	if _, err := f.NewSheet(ReportsSheet); err != nil {
		return err
	}
	if err := header(f, ReportsSheet, reportHeaders, bold); err != nil {
		return err
	}
	row := 2
	for _, rec := range o.records {
		for _, r := range rec.Report {
			if err := setRow(f, ReportsSheet, row, []any{rec.Key, r.Name, r.Precision, r.Recall, r.F1, r.Support}); err != nil {
				return err
			}
			row++
		}
	}
	_ = f.SetColWidth(ReportsSheet, "A", "B", 28)
	return nil
}

func (o *Output) terms(f *excelize.File, bold int) error {
	if _, err := f.NewSheet(TermsSheet); err != nil {
		return err
	}
	cols := o.table.Columns()
	headers := []any{"Term1", "Term2"}
	for _, c := range cols {
		headers = append(headers, c.Name)
	}
	if err := header(f, TermsSheet, headers, bold); err != nil {
		return err
	}
	for i, p := range o.table.Rows() {
		row := []any{p.Term1, p.Term2}
		for _, c := range cols {
			row = append(row, c.Values[i])
		}
		if err := setRow(f, TermsSheet, i+2, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(TermsSheet, "A", "B", 26)
	return nil
}

func header(f *excelize.File, sheet string, values []any, style int) error {
	if err := setRow(f, sheet, 1, values); err != nil {
		return err
	}
	return f.SetRowStyle(sheet, 1, 1, style)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
