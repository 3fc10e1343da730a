package classifier

import (
	"fmt"
	"strings"

	"github.com/crimson-sun/clinote/internal/engine/embedder"
)

// Family selects how a pretrained encoder is adapted for sequence
// classification.
type Family int

const (
	// Standard models mean-pool the hidden states of real tokens.
	Standard Family = iota
	// Generative models read the hidden state of the last real token, pad
	// with the end-of-sequence token and always start from a fresh head.
	Generative
)

func (f Family) String() string {
	if f == Generative {
		return "generative"
	}
	return "standard"
}

// ParseFamily converts "standard" or "generative" to a Family.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return Standard, nil
	case "generative":
		return Generative, nil
	default:
		return Standard, fmt.Errorf("classifier: unknown model family %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Family) UnmarshalText(b []byte) error {
	v, err := ParseFamily(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Defaults returns the training hyper-parameters for the family.
func (f Family) Defaults() Hyper {
	h := Hyper{LearningRate: 2e-5, BatchSize: 8, Epochs: 5, Seed: 12}
	if f == Generative {
		h.BatchSize = 2
		h.Epochs = 10
	}
	return h
}

func (f Family) pool(hidden []float32, mask []int64, batchSize, seqLen, dim int64) []float32 {
	if f == Generative {
		return embedder.LastTokenPool(hidden, mask, batchSize, seqLen, dim)
	}
	return embedder.MeanPool(hidden, mask, batchSize, seqLen, dim)
}

// Hyper holds fine-tuning hyper-parameters.
type Hyper struct {
	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
	Epochs       int     `json:"epochs"`
	Seed         int64   `json:"seed"`
}
