package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crimson-sun/clinote/internal/engine/embedder"
	"github.com/crimson-sun/clinote/internal/engine/safetensors"
	"github.com/crimson-sun/clinote/internal/model"
)

// Artifact file names.
const (
	WeightsFile = "model.safetensors"
	ConfigFile  = "config.json"
)

const (
	adapterTensor = "adapter.weight"
	weightTensor  = "classifier.weight"
	biasTensor    = "classifier.bias"
)

// ArtifactConfig is the config.json of a saved model.
type ArtifactConfig struct {
	Tag         string         `json:"tag"`
	Family      Family         `json:"family"`
	EncoderPath string         `json:"encoder_path"`
	HiddenSize  int            `json:"hidden_size"`
	Labels      map[string]int `json:"labels"`
	MaxLength   int            `json:"max_length"`
	Training    Hyper          `json:"training"`
}

// Save writes the head weights, config.json and the tokenizer vocabulary
// into dir, creating it if needed. Existing files are overwritten.
func (m *Model) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	d, k := m.head.Dim(), m.head.NumLabels()
	tensors := map[string]safetensors.Tensor{
		adapterTensor: toTensor(m.head.Adapter.RawMatrix().Data, d, d),
		weightTensor:  toTensor(m.head.Weight.RawMatrix().Data, k, d),
		biasTensor:    toTensor(m.head.Bias.RawVector().Data, k),
	}
	if err := safetensors.Write(filepath.Join(dir, WeightsFile), tensors); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	cfg := ArtifactConfig{
		Tag:         m.Tag,
		Family:      m.Family,
		EncoderPath: m.EncoderPath,
		HiddenSize:  d,
		Labels:      m.labels.Map(),
		MaxLength:   m.tok.MaxLength(),
		Training:    m.Hyper,
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), data, 0o644); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	if err := m.tok.Save(dir); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	return nil
}

func toTensor(data []float64, shape ...int) safetensors.Tensor {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v)
	}
	return safetensors.NewTensor(out, shape...)
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	open embedder.Opener
}

// WithOpener overrides how the encoder is opened. By default the ONNX model
// at the recorded encoder path is used.
func WithOpener(open embedder.Opener) LoadOption {
	return func(o *loadOptions) { o.open = open }
}

// ReadConfig reads the config.json of a saved model.
func ReadConfig(dir string) (ArtifactConfig, error) {
	var cfg ArtifactConfig
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return cfg, fmt.Errorf("classifier: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("classifier: %s: %w", ConfigFile, err)
	}
	return cfg, nil
}

// Load reopens a model saved with Save and places it on dev.
func Load(dir string, dev embedder.Device, opts ...LoadOption) (*Model, error) {
	cfg, err := ReadConfig(dir)
	if err != nil {
		return nil, err
	}
	o := loadOptions{open: embedder.ONNXOpener(cfg.EncoderPath)}
	for _, opt := range opts {
		opt(&o)
	}

	labels, err := model.NewLabelDictionary(cfg.Labels)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	tok, err := embedder.LoadTokenizer(dir)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	tensors, err := safetensors.Read(filepath.Join(dir, WeightsFile))
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	head, err := headFromTensors(tensors, cfg.HiddenSize, labels.Len())
	if err != nil {
		return nil, err
	}

	enc, err := o.open(dev)
	if err != nil {
		return nil, fmt.Errorf("classifier: %s: %w", cfg.Tag, err)
	}
	if enc.Dim() != cfg.HiddenSize {
		enc.Close()
		return nil, fmt.Errorf("classifier: %s: encoder hidden size %d, artifact has %d", cfg.Tag, enc.Dim(), cfg.HiddenSize)
	}

	return &Model{
		Tag:         cfg.Tag,
		Family:      cfg.Family,
		Hyper:       cfg.Training,
		EncoderPath: cfg.EncoderPath,
		tok:         tok,
		open:        o.open,
		enc:         enc,
		head:        head,
		labels:      labels,
	}, nil
}

func headFromTensors(t map[string]safetensors.Tensor, dim, numLabels int) (*Head, error) {
	get := func(name string, shape ...int) ([]float64, error) {
		tensor, ok := t[name]
		if !ok {
			return nil, fmt.Errorf("classifier: tensor %q not found", name)
		}
		if fmt.Sprint(tensor.Shape) != fmt.Sprint(shape) {
			return nil, fmt.Errorf("classifier: tensor %q has shape %v, want %v", name, tensor.Shape, shape)
		}
		out := make([]float64, len(tensor.Data))
		for i, v := range tensor.Data {
			out[i] = float64(v)
		}
		return out, nil
	}

	adapter, err := get(adapterTensor, dim, dim)
	if err != nil {
		return nil, err
	}
	weight, err := get(weightTensor, numLabels, dim)
	if err != nil {
		return nil, err
	}
	bias, err := get(biasTensor, numLabels)
	if err != nil {
		return nil, err
	}
	return &Head{
		Adapter: matDense(dim, dim, adapter),
		Weight:  matDense(numLabels, dim, weight),
		Bias:    matVec(bias),
	}, nil
}
