package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crimson-sun/clinote/internal/engine/classifier"
	"github.com/crimson-sun/clinote/internal/engine/embedder"
	"github.com/crimson-sun/clinote/internal/engine/embedder/embeddertest"
	"github.com/crimson-sun/clinote/internal/engine/similarity"
	"github.com/crimson-sun/clinote/internal/engine/testdata"
	"github.com/crimson-sun/clinote/internal/model"
)

// fakeLoader builds models over the deterministic test encoder and counts
// how often each tag is loaded.
type fakeLoader struct {
	t     *testing.T
	loads map[string]int
	fail  string
}

func (l *fakeLoader) Load(spec ModelSpec, labels *model.LabelDictionary, dev embedder.Device) (*classifier.Model, error) {
	l.loads[spec.Tag]++
	if spec.Tag == l.fail {
		return nil, errors.New("load failed")
	}
	return classifier.New(classifier.Config{
		Tag:       spec.Tag,
		Family:    spec.Family,
		Tokenizer: embeddertest.Tokenizer(l.t, testdata.Words()...),
		Open:      embeddertest.Opener(8),
		Labels:    labels,
		Device:    dev,
		Hyper:     spec.Hyper,
	})
}

func fixtures(t *testing.T) ([]model.Note, []model.TermPair, *model.LabelDictionary) {
	t.Helper()
	notes, err := testdata.Notes()
	if err != nil {
		t.Fatal(err)
	}
	pairs, err := testdata.Terms()
	if err != nil {
		t.Fatal(err)
	}
	labels, err := model.LabelsFromNotes(notes)
	if err != nil {
		t.Fatal(err)
	}
	for i := range notes {
		notes[i].CategoryLabel, _ = labels.Encode(notes[i].Category)
		notes[i].Preprocessed = strings.ToLower(notes[i].Text)
	}
	return notes, pairs, labels
}

func TestAnalyzeEndToEnd(t *testing.T) {
	notes, pairs, labels := fixtures(t)
	table := similarity.NewTable(pairs)
	loader := &fakeLoader{t: t, loads: map[string]int{}}
	eng := New(loader, Options{ModelsDir: t.TempDir()})

	specs := []ModelSpec{{Tag: "TinyBERT", Family: classifier.Standard}}
	results, err := eng.Analyze(context.Background(), specs, notes, table, pairs, labels)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if got := strings.Join(results.Keys(), ","); got != "TinyBERT_Raw,TinyBERT_Preprocess" {
		t.Fatalf("keys = %s", got)
	}
	for _, rec := range results.Records() {
		if len(rec.Report) != labels.Len()+3 {
			t.Errorf("%s: report has %d rows, want %d", rec.Key, len(rec.Report), labels.Len()+3)
		}
		s := rec.Scores
		for _, v := range []float64{s.Accuracy, s.Precision, s.Recall, s.F1} {
			if v < 0 || v > 100 {
				t.Errorf("%s: score %v out of range", rec.Key, v)
			}
		}
	}
	if rec, ok := results.Get("TinyBERT_Preprocess"); !ok || rec.Column != model.ColumnPreprocess {
		t.Errorf("preprocess record = %+v", rec)
	}

	// Baseline plus two fine-tuning passes, each from a fresh load.
	if loader.loads["TinyBERT"] != 3 {
		t.Errorf("loaded %d times, want 3", loader.loads["TinyBERT"])
	}

	wantCols := []string{
		"TinyBERT_Cosine_Similarity",
		"TinyBERT_fine_tune_notes_Cosine_Similarity",
		"TinyBERT_fine_tune_notes_preprocess_Cosine_Similarity",
	}
	cols := table.Columns()
	if len(cols) != len(wantCols) {
		t.Fatalf("table has %d columns, want %d", len(cols), len(wantCols))
	}
	for i, c := range cols {
		if c.Name != wantCols[i] {
			t.Errorf("column %d = %q, want %q", i, c.Name, wantCols[i])
		}
		if len(c.Values) != len(pairs) {
			t.Errorf("column %q has %d values", c.Name, len(c.Values))
		}
		for _, v := range c.Values {
			if v < -1 || v > 1 {
				t.Errorf("column %q value %v out of range", c.Name, v)
			}
		}
	}
	if table.Len() != len(pairs) {
		t.Errorf("table rows changed to %d", table.Len())
	}
}

func TestAnalyzeKeepsPartialResults(t *testing.T) {
	notes, pairs, labels := fixtures(t)
	loader := &fakeLoader{t: t, loads: map[string]int{}, fail: "Broken"}
	eng := New(loader, Options{ModelsDir: t.TempDir()})

	specs := []ModelSpec{{Tag: "TinyBERT"}, {Tag: "Broken"}, {Tag: "Never"}}
	results, err := eng.Analyze(context.Background(), specs, notes, similarity.NewTable(pairs), pairs, labels)
	if err == nil {
		t.Fatal("expected error from failing model")
	}
	if results.Len() != 2 {
		t.Errorf("kept %d results, want 2", results.Len())
	}
	if loader.loads["Never"] != 0 {
		t.Error("sweep continued after a failure")
	}
}

func TestAnalyzeRejectsMisalignedPairs(t *testing.T) {
	notes, pairs, labels := fixtures(t)
	eng := New(&fakeLoader{t: t, loads: map[string]int{}}, Options{ModelsDir: t.TempDir()})

	_, err := eng.Analyze(context.Background(), []ModelSpec{{Tag: "TinyBERT"}}, notes, similarity.NewTable(pairs), pairs[:1], labels)
	if !errors.Is(err, similarity.ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
}

func TestAnalyzeUnknownCategory(t *testing.T) {
	notes, pairs, _ := fixtures(t)
	labels, _ := model.NewLabelDictionary(map[string]int{"Gastro": 0})
	eng := New(&fakeLoader{t: t, loads: map[string]int{}}, Options{ModelsDir: t.TempDir()})

	_, err := eng.Analyze(context.Background(), []ModelSpec{{Tag: "TinyBERT"}}, notes, similarity.NewTable(pairs), pairs, labels)
	if !errors.Is(err, model.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	notes, pairs, labels := fixtures(t)
	eng := New(&fakeLoader{t: t, loads: map[string]int{}}, Options{ModelsDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Analyze(ctx, []ModelSpec{{Tag: "TinyBERT"}}, notes, similarity.NewTable(pairs), pairs, labels)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
