package clinote

import (
	"fmt"
	"sync"

	"github.com/crimson-sun/clinote/internal/engine/classifier"
	"github.com/crimson-sun/clinote/internal/engine/embedder"
)

// Prediction is the classification of one note.
type Prediction struct {
	Text          string             `json:"text"`
	Label         string             `json:"label"`
	LabelID       int                `json:"label_id"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Classifier wraps a fine-tuned specialty classifier saved by the sweep.
type Classifier struct {
	mu     sync.Mutex
	model  *classifier.Model
	names  []string
	device embedder.Device
	closed bool
}

// Open loads the artifact directory written by a sweep (for example
// models/<tag>_notes_preprocess).
func Open(dir string, opts ...Option) (*Classifier, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	dev, err := embedder.ParseDevice(o.device)
	if err != nil {
		return nil, fmt.Errorf("clinote: %w", err)
	}

	var loadOpts []classifier.LoadOption
	switch {
	case o.opener != nil:
		loadOpts = append(loadOpts, classifier.WithOpener(o.opener))
	case o.encoderPath != "":
		loadOpts = append(loadOpts, classifier.WithOpener(embedder.ONNXOpener(o.encoderPath)))
	}
	m, err := classifier.Load(dir, dev, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("clinote: %w", err)
	}
	return &Classifier{model: m, names: m.Labels().Names(), device: dev}, nil
}

// Labels returns the category names in label-id order.
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.names...)
}

// Classify predicts the specialty of one note.
func (c *Classifier) Classify(text string) (Prediction, error) {
	ps, err := c.ClassifyBatch([]string{text})
	if err != nil {
		return Prediction{}, err
	}
	return ps[0], nil
}

// ClassifyBatch predicts the specialty of several notes in batched
// inference calls.
func (c *Classifier) ClassifyBatch(texts []string) ([]Prediction, error) {
	probs, err := c.predictProba(texts)
	if err != nil {
		return nil, err
	}
	ids := c.model.Labels().IDs()
	out := make([]Prediction, len(texts))
	for i, row := range probs {
		best := classifier.Argmax(row)
		p := Prediction{
			Text:          texts[i],
			Label:         c.names[best],
			LabelID:       ids[best],
			Probabilities: make(map[string]float64, len(row)),
		}
		for j, v := range row {
			p.Probabilities[c.names[j]] = v
		}
		out[i] = p
	}
	return out, nil
}

func (c *Classifier) predictProba(texts []string) ([][]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("clinote: %w", classifier.ErrClosed)
	}
	if err := c.model.Place(c.device); err != nil {
		return nil, fmt.Errorf("clinote: %w", err)
	}
	probs, err := c.model.PredictProba(texts)
	if err != nil {
		return nil, fmt.Errorf("clinote: %w", err)
	}
	return probs, nil
}

// Close releases the encoder session.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.model.Close()
}
