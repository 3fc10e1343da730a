package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/crimson-sun/clinote/internal/engine/classifier"
	"github.com/crimson-sun/clinote/internal/engine/embedder"
	"github.com/crimson-sun/clinote/internal/engine/finetune"
	"github.com/crimson-sun/clinote/internal/engine/similarity"
	"github.com/crimson-sun/clinote/internal/model"
)

// ModelSpec names one pretrained model of the sweep.
type ModelSpec struct {
	Tag           string
	Family        classifier.Family
	EncoderPath   string // ONNX graph
	VocabPath     string // vocab.txt or the directory holding it
	Hyper         classifier.Hyper
	VocabCapacity int
}

// Loader builds a fresh model for a spec, with a head sized to labels.
type Loader interface {
	Load(spec ModelSpec, labels *model.LabelDictionary, dev embedder.Device) (*classifier.Model, error)
}

// ONNXLoader loads pretrained encoders exported to ONNX.
type ONNXLoader struct{}

// Load implements Loader.
func (ONNXLoader) Load(spec ModelSpec, labels *model.LabelDictionary, dev embedder.Device) (*classifier.Model, error) {
	tok, err := embedder.LoadTokenizer(spec.VocabPath)
	if err != nil {
		return nil, fmt.Errorf("engine: %s: %w", spec.Tag, err)
	}
	return classifier.New(classifier.Config{
		Tag:           spec.Tag,
		Family:        spec.Family,
		Tokenizer:     tok,
		Open:          embedder.ONNXOpener(spec.EncoderPath),
		EncoderPath:   spec.EncoderPath,
		Labels:        labels,
		Device:        dev,
		Hyper:         spec.Hyper,
		VocabCapacity: spec.VocabCapacity,
	})
}

// Results holds result records in the order they were produced.
type Results struct {
	keys    []string
	records map[string]model.ResultRecord
}

// NewResults returns Results holding records in order. A later record with
// the same key replaces the earlier one in place.
func NewResults(records ...model.ResultRecord) *Results {
	r := &Results{records: make(map[string]model.ResultRecord)}
	for _, rec := range records {
		r.add(rec)
	}
	return r
}

func (r *Results) add(rec model.ResultRecord) {
	if _, ok := r.records[rec.Key]; !ok {
		r.keys = append(r.keys, rec.Key)
	}
	r.records[rec.Key] = rec
}

// Len returns the number of records.
func (r *Results) Len() int { return len(r.keys) }

// Keys returns record keys in production order.
func (r *Results) Keys() []string { return append([]string(nil), r.keys...) }

// Get returns the record stored under key.
func (r *Results) Get(key string) (model.ResultRecord, bool) {
	rec, ok := r.records[key]
	return rec, ok
}

// Records returns all records in production order.
func (r *Results) Records() []model.ResultRecord {
	out := make([]model.ResultRecord, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.records[k]
	}
	return out
}

// Options configures an Engine.
type Options struct {
	ModelsDir   string
	TrainDevice embedder.Device
	ScoreDevice embedder.Device
}

// Engine runs the model sweep: for each model, raw embedding similarity,
// then fine-tuning on raw notes and on preprocessed notes, each from a
// freshly loaded model. Models run one at a time.
type Engine struct {
	loader Loader
	scorer *similarity.Scorer
	tuner  *finetune.FineTuner
	opts   Options
}

// New creates an Engine.
func New(loader Loader, opts Options) *Engine {
	if opts.ModelsDir == "" {
		opts.ModelsDir = "models"
	}
	scorer := similarity.NewScorer(opts.ScoreDevice)
	return &Engine{
		loader: loader,
		scorer: scorer,
		tuner: &finetune.FineTuner{
			ModelsDir: opts.ModelsDir,
			Device:    opts.TrainDevice,
			Scorer:    scorer,
		},
		opts: opts,
	}
}

// Analyze runs the sweep over specs. Similarity columns are added to table,
// whose rows must match pairs. On error the results gathered so far are
// returned with it.
func (e *Engine) Analyze(ctx context.Context, specs []ModelSpec, notes []model.Note, table *similarity.Table, pairs []model.TermPair, labels *model.LabelDictionary) (*Results, error) {
	results := NewResults()
	if err := table.CheckPairs(pairs); err != nil {
		return results, err
	}
	if err := labels.Validate(notes); err != nil {
		return results, err
	}
	if err := os.MkdirAll(e.opts.ModelsDir, 0o755); err != nil {
		return results, fmt.Errorf("engine: %w", err)
	}

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		slog.Info("analyzing model", "model", spec.Tag, "family", spec.Family.String())

		if err := e.baseline(spec, table, pairs, labels); err != nil {
			return results, err
		}
		for _, col := range []model.TextColumn{model.ColumnRaw, model.ColumnPreprocess} {
			rec, err := e.tune(ctx, spec, col, notes, table, pairs, labels)
			if err != nil {
				return results, err
			}
			results.add(rec)
		}
	}
	return results, nil
}

// baseline scores the pairs with the pretrained model before fine-tuning.
func (e *Engine) baseline(spec ModelSpec, table *similarity.Table, pairs []model.TermPair, labels *model.LabelDictionary) error {
	m, err := e.loader.Load(spec, labels, e.opts.ScoreDevice)
	if err != nil {
		return err
	}
	defer m.Close()

	col, err := e.scorer.Score(spec.Tag, m, pairs)
	if err != nil {
		return err
	}
	return table.Add(col)
}

func (e *Engine) tune(ctx context.Context, spec ModelSpec, col model.TextColumn, notes []model.Note, table *similarity.Table, pairs []model.TermPair, labels *model.LabelDictionary) (model.ResultRecord, error) {
	m, err := e.loader.Load(spec, labels, e.opts.TrainDevice)
	if err != nil {
		return model.ResultRecord{}, err
	}
	defer m.Close()

	out, err := e.tuner.Run(ctx, m, notes, col, pairs)
	if err != nil {
		return model.ResultRecord{}, err
	}
	if err := table.Add(out.Similarity); err != nil {
		return model.ResultRecord{}, err
	}
	return out.Record, nil
}
