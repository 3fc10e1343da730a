// Package similarity scores term pairs by the cosine similarity of their
// model embeddings and collects the scores in a term-matching table.
package similarity

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/crimson-sun/clinote/internal/engine/embedder"
	"github.com/crimson-sun/clinote/internal/model"
)

// Embedder produces one vector per term. Both terms of a pair are embedded
// in a single call.
type Embedder interface {
	Place(dev embedder.Device) error
	EmbedTerms(terms []string) ([][]float32, error)
}

// ColumnName returns the score column name for a model tag.
func ColumnName(tag string) string {
	return tag + "_Cosine_Similarity"
}

// Scorer computes embedding similarities on a fixed device.
type Scorer struct {
	Device embedder.Device
}

// NewScorer creates a Scorer that runs on dev.
func NewScorer(dev embedder.Device) *Scorer {
	return &Scorer{Device: dev}
}

// Score places emb on the scorer's device and returns a new column holding
// the cosine similarity of each pair, in input order.
func (s *Scorer) Score(tag string, emb Embedder, pairs []model.TermPair) (Column, error) {
	if err := emb.Place(s.Device); err != nil {
		return Column{}, fmt.Errorf("similarity: %w", err)
	}

	col := Column{Name: ColumnName(tag), Values: make([]float64, len(pairs))}
	for i, p := range pairs {
		vecs, err := emb.EmbedTerms([]string{p.Term1, p.Term2})
		if err != nil {
			return Column{}, fmt.Errorf("similarity: pair %d: %w", i, err)
		}
		if len(vecs) != 2 {
			return Column{}, fmt.Errorf("similarity: pair %d: got %d vectors, want 2", i, len(vecs))
		}
		col.Values[i] = clamp(Cosine(vecs[0], vecs[1]))
	}

	slog.Info("term similarity scored", "column", col.Name, "pairs", len(pairs), "device", s.Device.String())
	return col, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine[T ~float32 | ~float64](a, b []T) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
