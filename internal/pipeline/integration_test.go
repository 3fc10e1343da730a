package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/crimson-sun/clinote/internal/engine"
	"github.com/crimson-sun/clinote/internal/engine/classifier"
	"github.com/crimson-sun/clinote/internal/engine/embedder"
	"github.com/crimson-sun/clinote/internal/engine/embedder/embeddertest"
	"github.com/crimson-sun/clinote/internal/engine/preprocess"
	"github.com/crimson-sun/clinote/internal/engine/testdata"
	"github.com/crimson-sun/clinote/internal/model"
	"github.com/crimson-sun/clinote/internal/output"
	"github.com/crimson-sun/clinote/internal/output/file"
)

// Model paths relative to internal/pipeline/.
const (
	integrationModelPath = "../../models/model_quantized.onnx"
	integrationVocabPath = "../../models/vocab.txt"
)

// testLoader builds models over the deterministic test encoder.
type testLoader struct {
	t *testing.T
}

func (l testLoader) Load(spec engine.ModelSpec, labels *model.LabelDictionary, dev embedder.Device) (*classifier.Model, error) {
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

func newProsePreprocessor(t *testing.T) *preprocess.Preprocessor {
	t.Helper()
	a, err := preprocess.NewProseAnalyzer()
	if err != nil {
		t.Fatalf("NewProseAnalyzer: %v", err)
	}
	return preprocess.New(a)
}

func runCorpus(t *testing.T, loader engine.Loader, specs []engine.ModelSpec) (string, *engine.Results) {
	t.Helper()
	notes, err := testdata.Notes()
	if err != nil {
		t.Fatal(err)
	}
	pairs, err := testdata.Terms()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	out, err := file.New(filepath.Join(dir, "results.ndjson"), output.Full)
	if err != nil {
		t.Fatal(err)
	}
	eng := engine.New(loader, engine.Options{ModelsDir: dir})
	p := New(eng, newProsePreprocessor(t), out, dir)

	results, err := p.RunNotes(context.Background(), specs, notes, pairs, nil)
	if err != nil {
		t.Fatalf("RunNotes: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return dir, results
}

func TestIntegrationSweep(t *testing.T) {
	specs := []engine.ModelSpec{
		{Tag: "Tiny", Family: classifier.Standard, Hyper: classifier.Hyper{LearningRate: 1e-3, BatchSize: 8, Epochs: 2, Seed: 12}},
		{Tag: "TinyGPT", Family: classifier.Generative, Hyper: classifier.Hyper{LearningRate: 1e-3, BatchSize: 2, Epochs: 1, Seed: 12}},
	}
	dir, results := runCorpus(t, testLoader{t}, specs)

	want := []string{"Tiny_Raw", "Tiny_Preprocess", "TinyGPT_Raw", "TinyGPT_Preprocess"}
	keys := results.Keys()
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}

	for _, name := range []string{TermMatchingFile, "results.ndjson", "Tiny_notes", "TinyGPT_notes_preprocess"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestIntegrationONNX(t *testing.T) {
	if _, err := os.Stat(integrationModelPath); os.IsNotExist(err) {
		t.Skip("ONNX model not available, skipping integration test")
	}
	specs := []engine.ModelSpec{{
		Tag:         "MiniLM",
		Family:      classifier.Standard,
		EncoderPath: integrationModelPath,
		VocabPath:   integrationVocabPath,
		Hyper:       classifier.Hyper{LearningRate: 2e-5, BatchSize: 8, Epochs: 1, Seed: 12},
	}}
	_, results := runCorpus(t, engine.ONNXLoader{}, specs)
	if results.Len() != 2 {
		t.Fatalf("got %d results, want 2", results.Len())
	}
}
