// Package classifier adapts a frozen pretrained encoder for sequence
// classification with a trainable head, and saves and loads the result.
package classifier

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/crimson-sun/clinote/internal/engine/embedder"
	"github.com/crimson-sun/clinote/internal/model"
)

// featureBatch is the number of texts encoded per inference call.
const featureBatch = 8

// ErrClosed is returned by inference calls on a closed model.
var ErrClosed = errors.New("classifier: model is closed")

// Config describes a model to build around a pretrained encoder.
type Config struct {
	Tag         string
	Family      Family
	Tokenizer   *embedder.Tokenizer
	Open        embedder.Opener
	EncoderPath string // recorded in saved artifacts
	Labels      *model.LabelDictionary
	Device      embedder.Device
	Hyper       Hyper // zero value selects Family.Defaults()

	// VocabCapacity is the encoder's embedding table size. When set, a
	// larger tokenizer vocabulary is rejected.
	VocabCapacity int
}

// Model is a pretrained encoder placed on one device plus a trainable Head.
type Model struct {
	Tag         string
	Family      Family
	Hyper       Hyper
	EncoderPath string

	tok    *embedder.Tokenizer
	open   embedder.Opener
	enc    embedder.Encoder
	head   *Head
	labels *model.LabelDictionary
}

// New opens the encoder on cfg.Device and attaches a fresh head sized to
// the label dictionary.
func New(cfg Config) (*Model, error) {
	if cfg.Tokenizer == nil || cfg.Open == nil || cfg.Labels == nil {
		return nil, errors.New("classifier: tokenizer, encoder and labels are required")
	}
	if cfg.VocabCapacity > 0 && cfg.Tokenizer.Size() > cfg.VocabCapacity {
		return nil, fmt.Errorf("classifier: %s: vocabulary has %d tokens, encoder embeds %d",
			cfg.Tag, cfg.Tokenizer.Size(), cfg.VocabCapacity)
	}
	if cfg.Hyper == (Hyper{}) {
		cfg.Hyper = cfg.Family.Defaults()
	}

	enc, err := cfg.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("classifier: %s: %w", cfg.Tag, err)
	}
	if cfg.Family == Generative && cfg.Tokenizer.PadAliased() {
		slog.Debug("pad token aliased to end-of-sequence", "model", cfg.Tag)
	}

	rng := rand.New(rand.NewSource(cfg.Hyper.Seed))
	return &Model{
		Tag:         cfg.Tag,
		Family:      cfg.Family,
		Hyper:       cfg.Hyper,
		EncoderPath: cfg.EncoderPath,
		tok:         cfg.Tokenizer,
		open:        cfg.Open,
		enc:         enc,
		head:        NewHead(enc.Dim(), cfg.Labels.Len(), rng),
		labels:      cfg.Labels,
	}, nil
}

// Head returns the trainable head.
func (m *Model) Head() *Head { return m.head }

// Labels returns the label dictionary the head was sized for.
func (m *Model) Labels() *model.LabelDictionary { return m.labels }

// Tokenizer returns the model tokenizer.
func (m *Model) Tokenizer() *embedder.Tokenizer { return m.tok }

// Device returns where the encoder currently runs. ok is false when no
// encoder is placed, after Close or a failed Place.
func (m *Model) Device() (dev embedder.Device, ok bool) {
	if m.enc == nil {
		return embedder.CPU, false
	}
	return m.enc.Device(), true
}

// Place moves the encoder to dev, releasing the session on the previous
// device first. It is a no-op when already placed there.
func (m *Model) Place(dev embedder.Device) error {
	if m.enc != nil && m.enc.Device() == dev {
		return nil
	}
	if m.enc != nil {
		if err := m.enc.Close(); err != nil {
			return fmt.Errorf("classifier: %s: release %s: %w", m.Tag, m.enc.Device(), err)
		}
		m.enc = nil
	}
	enc, err := m.open(dev)
	if err != nil {
		return fmt.Errorf("classifier: %s: place on %s: %w", m.Tag, dev, err)
	}
	if enc.Dim() != m.head.Dim() {
		enc.Close()
		return fmt.Errorf("classifier: %s: encoder hidden size %d, head expects %d", m.Tag, enc.Dim(), m.head.Dim())
	}
	m.enc = enc
	return nil
}

// Features returns the pooled last hidden state of each text, before the
// adapter. Texts are tokenized to the fixed training length.
func (m *Model) Features(texts []string) ([][]float64, error) {
	if m.enc == nil {
		return nil, ErrClosed
	}
	out := make([][]float64, 0, len(texts))
	dim := int64(m.enc.Dim())
	for start := 0; start < len(texts); start += featureBatch {
		end := min(start+featureBatch, len(texts))
		b := m.tok.Encode(texts[start:end])
		hidden, err := m.enc.Hidden(b)
		if err != nil {
			return nil, fmt.Errorf("classifier: %s: %w", m.Tag, err)
		}
		pooled := m.Family.pool(hidden, b.AttentionMask, b.Size, b.SeqLen, dim)
		for i := int64(0); i < b.Size; i++ {
			row := make([]float64, dim)
			for j := range row {
				row[j] = float64(pooled[i*dim+int64(j)])
			}
			out = append(out, row)
		}
	}
	return out, nil
}

// Logits returns the class scores for each text, in label id order.
func (m *Model) Logits(texts []string) ([][]float64, error) {
	feats, err := m.Features(texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(feats))
	for i, f := range feats {
		out[i] = m.head.Logits(f)
	}
	return out, nil
}

// PredictProba returns per-class probabilities for each text, in label id
// order.
func (m *Model) PredictProba(texts []string) ([][]float64, error) {
	logits, err := m.Logits(texts)
	if err != nil {
		return nil, err
	}
	for i, l := range logits {
		logits[i] = Softmax(l)
	}
	return logits, nil
}

// Predict returns the most likely label id for each text.
func (m *Model) Predict(texts []string) ([]int, error) {
	logits, err := m.Logits(texts)
	if err != nil {
		return nil, err
	}
	ids := m.labels.IDs()
	out := make([]int, len(logits))
	for i, l := range logits {
		out[i] = ids[Argmax(l)]
	}
	return out, nil
}

// EmbedTerms encodes terms in one batch padded to the longest and returns,
// per term, the mean of the adapted last hidden state over every position.
func (m *Model) EmbedTerms(terms []string) ([][]float32, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if m.enc == nil {
		return nil, ErrClosed
	}
	b := m.tok.EncodeBatch(terms)
	hidden, err := m.enc.Hidden(b)
	if err != nil {
		return nil, fmt.Errorf("classifier: %s: %w", m.Tag, err)
	}
	dim := int64(m.enc.Dim())
	pooled := embedder.MeanPool(hidden, nil, b.Size, b.SeqLen, dim)

	out := make([][]float32, b.Size)
	raw := make([]float64, dim)
	for i := range out {
		for j := range raw {
			raw[j] = float64(pooled[int64(i)*dim+int64(j)])
		}
		z := m.head.Adapt(raw)
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32(z.AtVec(j))
		}
		out[i] = vec
	}
	return out, nil
}

// Close releases the encoder.
func (m *Model) Close() error {
	if m.enc == nil {
		return nil
	}
	err := m.enc.Close()
	m.enc = nil
	return err
}
