package clinote

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/crimson-sun/clinote/internal/engine/explain"
)

// WordWeight is how much one word pushed a category's probability up
// (positive) or down (negative).
type WordWeight struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// LabelExplanation is the explanation for one category.
type LabelExplanation struct {
	Label     string       `json:"label"`
	Intercept float64      `json:"intercept"`
	Score     float64      `json:"score"`
	Weights   []WordWeight `json:"weights"`
}

// Explanation explains the prediction for one note.
type Explanation struct {
	Text          string             `json:"text"`
	Probabilities map[string]float64 `json:"probabilities"`
	Labels        []LabelExplanation `json:"labels"`

	raw *explain.Explanation
}

// Explain perturbs text, scores every variant and fits a local linear model
// per category. When savePath is not empty the explanation is also written
// there as an HTML page.
func (c *Classifier) Explain(text, savePath string, opts ...ExplainOption) (*Explanation, error) {
	var o explainOptions
	for _, opt := range opts {
		opt(&o)
	}
	for _, name := range o.labels {
		pos := c.position(name)
		if pos < 0 {
			return nil, fmt.Errorf("clinote: unknown category %q", name)
		}
		o.opts.Labels = append(o.opts.Labels, pos)
	}

	raw, err := explain.New(c.names).Explain(text, c.predictProba, o.opts)
	if err != nil {
		return nil, fmt.Errorf("clinote: %w", err)
	}
	if savePath != "" {
		if err := raw.SaveHTML(savePath); err != nil {
			return nil, fmt.Errorf("clinote: %w", err)
		}
		slog.Info("explanation saved", "path", savePath)
	}
	return fromRaw(raw), nil
}

// Display writes a plain-text rendering of the explanation.
func (x *Explanation) Display(w io.Writer) error {
	return x.raw.Display(w)
}

// WriteHTML writes the explanation as a self-contained HTML page.
func (x *Explanation) WriteHTML(w io.Writer) error {
	return x.raw.WriteHTML(w)
}

func (c *Classifier) position(name string) int {
	for i, n := range c.names {
		if n == name {
			return i
		}
	}
	return -1
}

func fromRaw(raw *explain.Explanation) *Explanation {
	x := &Explanation{
		Text:          raw.Text,
		Probabilities: make(map[string]float64, len(raw.Probabilities)),
		raw:           raw,
	}
	for i, p := range raw.Probabilities {
		x.Probabilities[raw.ClassNames[i]] = p
	}
	for _, le := range raw.Labels {
		l := LabelExplanation{Label: le.Name, Intercept: le.Intercept, Score: le.Score}
		for _, w := range le.Weights {
			l.Weights = append(l.Weights, WordWeight{Word: w.Word, Weight: w.Weight})
		}
		x.Labels = append(x.Labels, l)
	}
	return x
}
