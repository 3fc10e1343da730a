package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/crimson-sun/clinote/internal/engine"
	"github.com/crimson-sun/clinote/internal/engine/similarity"
	"github.com/crimson-sun/clinote/internal/model"
)

// --- mocks ---

// mockAnalyzer returns fixed records and adds one similarity column.
type mockAnalyzer struct {
	records []model.ResultRecord
	err     error

	gotNotes  []model.Note
	gotLabels *model.LabelDictionary
}

func (m *mockAnalyzer) Analyze(_ context.Context, _ []engine.ModelSpec, notes []model.Note, table *similarity.Table, _ []model.TermPair, labels *model.LabelDictionary) (*engine.Results, error) {
	m.gotNotes = notes
	m.gotLabels = labels
	values := make([]float64, table.Len())
	if err := table.Add(similarity.Column{Name: "Mock_Similarity", Values: values}); err != nil {
		return nil, err
	}
	return engine.NewResults(m.records...), m.err
}

// lowerPreprocessor sets labels and lowercases the note text.
type lowerPreprocessor struct {
	err error
}

func (p *lowerPreprocessor) Notes(notes []model.Note, labels *model.LabelDictionary) error {
	if p.err != nil {
		return p.err
	}
	for i := range notes {
		id, err := labels.Encode(notes[i].Category)
		if err != nil {
			return err
		}
		notes[i].CategoryLabel = id
		notes[i].Preprocessed = strings.ToLower(notes[i].Text)
	}
	return nil
}

type mockOutput struct {
	mu      sync.Mutex
	records []model.ResultRecord
	tables  int
	ctxErrs []error
	err     error
}

func (m *mockOutput) Write(ctx context.Context, rec model.ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.err
}

func (m *mockOutput) WriteTable(_ context.Context, _ *similarity.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables++
	return nil
}

func (m *mockOutput) Close() error { return nil }

func testNotes() []model.Note {
	return []model.Note{
		{Category: "Neurology", Text: "Sudden Headache"},
		{Category: "Gastroenterology", Text: "Abdominal Pain"},
		{Category: "Neurology", Text: "Seizure"},
	}
}

func testPairs() []model.TermPair {
	return []model.TermPair{{Term1: "stroke", Term2: "cerebrovascular accident"}}
}

func testRecords() []model.ResultRecord {
	return []model.ResultRecord{
		{Key: "bert_Raw", ModelTag: "bert", Column: model.ColumnRaw},
		{Key: "bert_Preprocess", ModelTag: "bert", Column: model.ColumnPreprocess},
	}
}

// --- tests ---

func TestRunNotesWritesRecordsAndTable(t *testing.T) {
	dir := t.TempDir()
	eng := &mockAnalyzer{records: testRecords()}
	out := &mockOutput{}
	p := New(eng, &lowerPreprocessor{}, out, dir)

	results, err := p.RunNotes(context.Background(), nil, testNotes(), testPairs(), nil)
	if err != nil {
		t.Fatalf("RunNotes: %v", err)
	}
	if results.Len() != 2 {
		t.Fatalf("got %d results, want 2", results.Len())
	}
	if len(out.records) != 2 || out.records[0].Key != "bert_Raw" {
		t.Fatalf("unexpected written records: %+v", out.records)
	}
	if out.tables != 1 {
		t.Fatalf("expected the table to reach the output once, got %d", out.tables)
	}

	data, err := os.ReadFile(filepath.Join(dir, TermMatchingFile))
	if err != nil {
		t.Fatalf("term matching file: %v", err)
	}
	if !strings.HasPrefix(string(data), "Term1,Term2,Mock_Similarity\n") {
		t.Fatalf("unexpected csv: %q", data)
	}
}

func TestRunNotesPreprocessesBeforeAnalyze(t *testing.T) {
	eng := &mockAnalyzer{}
	p := New(eng, &lowerPreprocessor{}, &mockOutput{}, t.TempDir())

	if _, err := p.RunNotes(context.Background(), nil, testNotes(), testPairs(), nil); err != nil {
		t.Fatal(err)
	}
	if eng.gotNotes[0].Preprocessed != "sudden headache" {
		t.Fatalf("engine saw unprocessed notes: %+v", eng.gotNotes[0])
	}
	// First-appearance ids.
	if eng.gotNotes[1].CategoryLabel != 1 || eng.gotLabels.Len() != 2 {
		t.Fatalf("unexpected labels: %+v", eng.gotNotes)
	}
}

func TestRunNotesExplicitLabels(t *testing.T) {
	eng := &mockAnalyzer{}
	p := New(eng, &lowerPreprocessor{}, &mockOutput{}, t.TempDir())

	labels := map[string]int{"Gastroenterology": 4, "Neurology": 7}
	if _, err := p.RunNotes(context.Background(), nil, testNotes(), testPairs(), labels); err != nil {
		t.Fatal(err)
	}
	if eng.gotNotes[0].CategoryLabel != 7 {
		t.Fatalf("expected Neurology=7, got %d", eng.gotNotes[0].CategoryLabel)
	}
}

func TestRunNotesUnknownCategory(t *testing.T) {
	eng := &mockAnalyzer{}
	p := New(eng, &lowerPreprocessor{}, &mockOutput{}, t.TempDir())

	_, err := p.RunNotes(context.Background(), nil, testNotes(), testPairs(), map[string]int{"Neurology": 0})
	if !errors.Is(err, model.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if eng.gotNotes != nil {
		t.Fatal("engine should not run when preprocessing fails")
	}
}

func TestRunNotesPersistsPartialResults(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("encoder crashed")
	eng := &mockAnalyzer{records: testRecords()[:1], err: boom}
	out := &mockOutput{}
	p := New(eng, &lowerPreprocessor{}, out, dir)

	results, err := p.RunNotes(context.Background(), nil, testNotes(), testPairs(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if results.Len() != 1 || len(out.records) != 1 {
		t.Fatalf("expected the finished record to be written, got %d/%d", results.Len(), len(out.records))
	}
	if _, err := os.Stat(filepath.Join(dir, TermMatchingFile)); err != nil {
		t.Fatalf("expected term matching file after a failed sweep: %v", err)
	}
}

func TestRunNotesWritesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := &mockAnalyzer{records: testRecords()[:1], err: context.Canceled}
	out := &mockOutput{}
	p := New(eng, &lowerPreprocessor{}, out, t.TempDir())

	_, err := p.RunNotes(ctx, nil, testNotes(), testPairs(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(out.ctxErrs) != 1 || out.ctxErrs[0] != nil {
		t.Fatalf("outputs should get a live context, got %v", out.ctxErrs)
	}
}

func TestRunNotesJoinsOutputErrors(t *testing.T) {
	out := &mockOutput{err: errors.New("disk full")}
	p := New(&mockAnalyzer{records: testRecords()}, &lowerPreprocessor{}, out, t.TempDir())

	_, err := p.RunNotes(context.Background(), nil, testNotes(), testPairs(), nil)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected output error, got %v", err)
	}
	if len(out.records) != 2 {
		t.Fatalf("every record should still be attempted, got %d", len(out.records))
	}
}

func TestRunLoadsFiles(t *testing.T) {
	dir := t.TempDir()
	notesPath := filepath.Join(dir, "notes.csv")
	termsPath := filepath.Join(dir, "terms.csv")
	os.WriteFile(notesPath, []byte("category,notes\nNeurology,Seizure\nGastroenterology,Abdominal pain\n"), 0o644)
	os.WriteFile(termsPath, []byte("Term1,Term2\nstroke,cerebrovascular accident\n"), 0o644)

	eng := &mockAnalyzer{}
	p := New(eng, &lowerPreprocessor{}, &mockOutput{}, dir)
	if _, err := p.Run(context.Background(), nil, Source{NotesPath: notesPath, TermsPath: termsPath}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(eng.gotNotes) != 2 || eng.gotNotes[1].Preprocessed != "abdominal pain" {
		t.Fatalf("unexpected notes: %+v", eng.gotNotes)
	}
}

func TestRunMissingFile(t *testing.T) {
	p := New(&mockAnalyzer{}, &lowerPreprocessor{}, &mockOutput{}, t.TempDir())
	_, err := p.Run(context.Background(), nil, Source{NotesPath: filepath.Join(t.TempDir(), "none.csv")})
	if err == nil {
		t.Fatal("expected error for missing notes file")
	}
}
