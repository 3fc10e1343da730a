package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/crimson-sun/clinote/internal/dataset"
	"github.com/crimson-sun/clinote/internal/engine"
	"github.com/crimson-sun/clinote/internal/engine/similarity"
	"github.com/crimson-sun/clinote/internal/model"
	"github.com/crimson-sun/clinote/internal/output"
)

// TermMatchingFile is written under the models directory after every sweep.
const TermMatchingFile = "term_matching.csv"

// Analyzer runs the model sweep. *engine.Engine implements it.
type Analyzer interface {
	Analyze(ctx context.Context, specs []engine.ModelSpec, notes []model.Note, table *similarity.Table, pairs []model.TermPair, labels *model.LabelDictionary) (*engine.Results, error)
}

// Preprocessor fills the label and normalized-text fields of notes.
// *preprocess.Preprocessor implements it.
type Preprocessor interface {
	Notes(notes []model.Note, labels *model.LabelDictionary) error
}

// Source locates the input tables.
type Source struct {
	NotesPath string
	TermsPath string
	Labels    map[string]int // empty: assign ids by first appearance
}

// Pipeline connects data loading, preprocessing, the engine and the outputs.
type Pipeline struct {
	engine    Analyzer
	prep      Preprocessor
	output    output.Output
	modelsDir string
}

// New creates a Pipeline from the given components.
func New(eng Analyzer, prep Preprocessor, out output.Output, modelsDir string) *Pipeline {
	if modelsDir == "" {
		modelsDir = "models"
	}
	return &Pipeline{
		engine:    eng,
		prep:      prep,
		output:    out,
		modelsDir: modelsDir,
	}
}

// Run loads the notes and term tables from src and runs the sweep.
func (p *Pipeline) Run(ctx context.Context, specs []engine.ModelSpec, src Source) (*engine.Results, error) {
	notes, err := dataset.LoadNotes(src.NotesPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	pairs, err := dataset.LoadTerms(src.TermsPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return p.RunNotes(ctx, specs, notes, pairs, src.Labels)
}

// RunNotes preprocesses notes and runs the sweep over them. Every record the
// engine produced is written to the outputs and the similarity table is
// saved, even when the sweep stopped on an error.
func (p *Pipeline) RunNotes(ctx context.Context, specs []engine.ModelSpec, notes []model.Note, pairs []model.TermPair, labelMap map[string]int) (*engine.Results, error) {
	labels, err := buildLabels(notes, labelMap)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	start := time.Now()
	if err := p.prep.Notes(notes, labels); err != nil {
		return nil, fmt.Errorf("pipeline preprocess: %w", err)
	}
	slog.Info("notes preprocessed", "notes", len(notes), "categories", labels.Len(), "elapsed", time.Since(start))

	table := similarity.NewTable(pairs)
	results, runErr := p.engine.Analyze(ctx, specs, notes, table, pairs, labels)
	if runErr != nil {
		runErr = fmt.Errorf("pipeline analyze: %w", runErr)
	}

	errs := []error{runErr}
	if results != nil {
		// Writes use a fresh context so a cancelled sweep still records
		// what it finished.
		wctx := context.WithoutCancel(ctx)
		for _, rec := range results.Records() {
			if err := p.output.Write(wctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("pipeline output: %w", err))
			}
			slog.Info("result",
				"key", rec.Key,
				"accuracy", rec.Scores.Accuracy,
				"precision", rec.Scores.Precision,
				"recall", rec.Scores.Recall,
				"f1", rec.Scores.F1,
			)
		}
		if err := p.writeTable(wctx, table); err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

func (p *Pipeline) writeTable(ctx context.Context, table *similarity.Table) error {
	if err := os.MkdirAll(p.modelsDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	path := filepath.Join(p.modelsDir, TermMatchingFile)
	if err := table.Save(path); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	slog.Info("term matching saved", "path", path, "columns", len(table.Columns()))
	if tw, ok := p.output.(output.TableWriter); ok {
		if err := tw.WriteTable(ctx, table); err != nil {
			return fmt.Errorf("pipeline output: %w", err)
		}
	}
	return nil
}

// Close shuts down the output.
func (p *Pipeline) Close() error {
	return p.output.Close()
}

func buildLabels(notes []model.Note, m map[string]int) (*model.LabelDictionary, error) {
	if len(m) > 0 {
		return model.NewLabelDictionary(m)
	}
	return model.LabelsFromNotes(notes)
}
