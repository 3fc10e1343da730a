// Package embeddertest provides a deterministic in-memory encoder and a
// vocabulary helper for tests that cannot load a real ONNX model.
package embeddertest

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/crimson-sun/clinote/internal/engine/embedder"
)

// Specials are the BERT special tokens written at the top of every test
// vocabulary, so [PAD]=0, [UNK]=1, [CLS]=2 and [SEP]=3.
var Specials = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]"}

// WriteVocab writes Specials followed by words into dir/vocab.txt and
// returns the file path. Words are lowercased and deduplicated.
func WriteVocab(t testing.TB, dir string, words ...string) string {
	t.Helper()
	seen := make(map[string]bool)
	lines := append([]string(nil), Specials...)
	for _, w := range words {
		w = strings.ToLower(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		lines = append(lines, w)
	}
	path := filepath.Join(dir, embedder.VocabFile)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("embeddertest: write vocab: %v", err)
	}
	return path
}

// Tokenizer writes a vocabulary into a temp dir and loads it.
func Tokenizer(t testing.TB, words ...string) *embedder.Tokenizer {
	t.Helper()
	tok, err := embedder.LoadTokenizer(WriteVocab(t, t.TempDir(), words...))
	if err != nil {
		t.Fatalf("embeddertest: %v", err)
	}
	return tok
}

// Encoder returns hidden state vectors that depend only on the token id:
// component j of token id is sin(id*(j+1)*0.37). The same token always
// produces the same vector at every position.
type Encoder struct {
	dim    int
	device embedder.Device

	mu     sync.Mutex
	calls  int
	closed bool
}

// New creates a fake encoder with the given hidden size.
func New(dim int, dev embedder.Device) *Encoder {
	return &Encoder{dim: dim, device: dev}
}

// Opener returns an embedder.Opener that creates fake encoders of size dim.
func Opener(dim int) embedder.Opener {
	return func(dev embedder.Device) (embedder.Encoder, error) {
		return New(dim, dev), nil
	}
}

func (e *Encoder) Hidden(b embedder.Batch) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([]float32, int(b.Size*b.SeqLen)*e.dim)
	for i, id := range b.InputIDs {
		row := out[i*e.dim : (i+1)*e.dim]
		for j := range row {
			row[j] = float32(math.Sin(float64(id) * float64(j+1) * 0.37))
		}
	}
	return out, nil
}

func (e *Encoder) Dim() int                { return e.dim }
func (e *Encoder) Device() embedder.Device { return e.device }

func (e *Encoder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Calls reports how many batches the encoder has run.
func (e *Encoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Closed reports whether Close was called.
func (e *Encoder) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
