package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/clinote/internal/engine/classifier"
	"github.com/crimson-sun/clinote/internal/engine/embedder"
)

// ErrNoModels is returned by Validate when no model is configured.
var ErrNoModels = errors.New("config: no models configured")

// Config holds all clinote configuration.
type Config struct {
	Data   DataConfig    `yaml:"data"`
	Models []ModelConfig `yaml:"models"`
	Engine EngineConfig  `yaml:"engine"`
	Output OutputConfig  `yaml:"output"`
	Log    LogConfig     `yaml:"log"`
}

// DataConfig locates the input tables.
type DataConfig struct {
	Notes string `yaml:"notes"` // CSV with category, notes
	Terms string `yaml:"terms"` // CSV with Term1, Term2

	// Labels maps category names to label ids. When empty, ids are assigned
	// in order of first appearance in the notes.
	Labels map[string]int `yaml:"labels"`
}

// ModelConfig describes one pretrained model of the sweep.
type ModelConfig struct {
	Tag          string            `yaml:"tag"`
	Family       classifier.Family `yaml:"family"`
	Encoder      string            `yaml:"encoder"` // ONNX file
	Vocab        string            `yaml:"vocab"`   // vocab.txt or its directory
	BatchSize    int               `yaml:"batch_size"`
	Epochs       int               `yaml:"epochs"`
	LearningRate float64           `yaml:"learning_rate"`
	VocabSize    int               `yaml:"vocab_size"` // encoder embedding rows, 0 to skip the check
}

// Hyper returns the family defaults with any configured overrides applied.
func (m ModelConfig) Hyper() classifier.Hyper {
	h := m.Family.Defaults()
	if m.BatchSize > 0 {
		h.BatchSize = m.BatchSize
	}
	if m.Epochs > 0 {
		h.Epochs = m.Epochs
	}
	if m.LearningRate > 0 {
		h.LearningRate = m.LearningRate
	}
	return h
}

// EngineConfig holds sweep settings.
type EngineConfig struct {
	ModelsDir   string `yaml:"models_dir"`
	Device      string `yaml:"device"`       // training device: "cpu" or "cuda"
	ScoreDevice string `yaml:"score_device"` // similarity scoring device
}

// OutputConfig holds result destination settings.
type OutputConfig struct {
	Sinks     []string `yaml:"sinks"` // "stdout", "file", "workbook", "registry"
	Pretty    bool     `yaml:"pretty"`
	Verbosity string   `yaml:"verbosity"` // "minimal", "standard", "full"

	File     FileConfig `yaml:"file"`
	Workbook string     `yaml:"workbook"` // .xlsx path
	Registry string     `yaml:"registry"` // SQLite database path
}

// FileConfig configures the NDJSON file sink.
type FileConfig struct {
	Path     string `yaml:"path"`
	MaxBytes int64  `yaml:"max_bytes"` // rotate when exceeded, 0 disables
}

// LogConfig configures process logging.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Data: DataConfig{
			Notes: "data/notes.csv",
			Terms: "data/terms.csv",
		},
		Engine: EngineConfig{
			ModelsDir:   "models",
			Device:      "cpu",
			ScoreDevice: "cpu",
		},
		Output: OutputConfig{
			Sinks:     []string{"stdout"},
			Verbosity: "standard",
			File:      FileConfig{Path: "results.ndjson"},
			Workbook:  "results.xlsx",
			Registry:  "runs.db",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults (path may be empty),
// expands environment variables in paths and applies CLINOTE_* overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	cfg.Data.Notes = os.ExpandEnv(cfg.Data.Notes)
	cfg.Data.Terms = os.ExpandEnv(cfg.Data.Terms)
	for i := range cfg.Models {
		cfg.Models[i].Encoder = os.ExpandEnv(cfg.Models[i].Encoder)
		cfg.Models[i].Vocab = os.ExpandEnv(cfg.Models[i].Vocab)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Engine.ModelsDir = os.ExpandEnv(getenv("CLINOTE_MODELS_DIR", cfg.Engine.ModelsDir))
	cfg.Engine.Device = getenv("CLINOTE_DEVICE", cfg.Engine.Device)
	cfg.Log.Level = getenv("CLINOTE_LOG_LEVEL", cfg.Log.Level)
	cfg.Output.Pretty = getenvBool("CLINOTE_OUTPUT_PRETTY", cfg.Output.Pretty)
	cfg.Output.Verbosity = getenv("CLINOTE_VERBOSITY", cfg.Output.Verbosity)
}

// Validate checks the configuration for values that would fail later.
func (c Config) Validate() error {
	var errs []error

	if len(c.Models) == 0 {
		errs = append(errs, ErrNoModels)
	}
	seen := make(map[string]bool)
	for i, m := range c.Models {
		switch {
		case m.Tag == "":
			errs = append(errs, fmt.Errorf("models[%d]: tag is required", i))
		case seen[m.Tag]:
			errs = append(errs, fmt.Errorf("models[%d]: duplicate tag %q", i, m.Tag))
		}
		seen[m.Tag] = true
		if m.Encoder == "" {
			errs = append(errs, fmt.Errorf("models[%d]: encoder is required", i))
		}
		if m.Vocab == "" {
			errs = append(errs, fmt.Errorf("models[%d]: vocab is required", i))
		}
		if m.BatchSize < 0 || m.Epochs < 0 || m.LearningRate < 0 {
			errs = append(errs, fmt.Errorf("models[%d]: batch_size, epochs and learning_rate must not be negative", i))
		}
	}

	if _, err := embedder.ParseDevice(c.Engine.Device); err != nil {
		errs = append(errs, fmt.Errorf("engine.device: %w", err))
	}
	if _, err := embedder.ParseDevice(c.Engine.ScoreDevice); err != nil {
		errs = append(errs, fmt.Errorf("engine.score_device: %w", err))
	}

	switch c.Output.Verbosity {
	case "minimal", "standard", "full":
	default:
		errs = append(errs, fmt.Errorf("output.verbosity must be minimal, standard, or full, got %q", c.Output.Verbosity))
	}
	for _, s := range c.Output.Sinks {
		switch s {
		case "stdout", "file", "workbook", "registry":
		default:
			errs = append(errs, fmt.Errorf("output.sinks: unknown sink %q", s))
		}
	}
	if c.Output.File.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("output.file.max_bytes must not be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
