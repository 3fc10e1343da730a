package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crimson-sun/clinote/internal/engine/classifier"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CLINOTE_MODELS_DIR", "CLINOTE_DEVICE", "CLINOTE_LOG_LEVEL",
		"CLINOTE_OUTPUT_PRETTY", "CLINOTE_VERBOSITY",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clinote.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
data:
  notes: data/notes.csv
  terms: data/terms.csv
  labels:
    Cardiovascular / Pulmonary: 0
    Gastroenterology: 1
    Neurology: 2
engine:
  models_dir: out/models
models:
  - tag: pubmedbert
    encoder: models/pubmedbert/model.onnx
    vocab: models/pubmedbert
  - tag: biogpt
    family: generative
    encoder: models/biogpt/model.onnx
    vocab: models/biogpt
    epochs: 3
output:
  sinks: [stdout, workbook]
  workbook: out/results.xlsx
`

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.ModelsDir != "models" {
		t.Fatalf("expected default models dir 'models', got %q", cfg.Engine.ModelsDir)
	}
	if cfg.Engine.Device != "cpu" || cfg.Engine.ScoreDevice != "cpu" {
		t.Fatalf("expected cpu devices, got %q/%q", cfg.Engine.Device, cfg.Engine.ScoreDevice)
	}
	if cfg.Output.Pretty {
		t.Fatal("expected default Pretty=false")
	}
	if cfg.Output.Verbosity != "standard" {
		t.Fatalf("expected standard verbosity, got %q", cfg.Output.Verbosity)
	}
	if len(cfg.Output.Sinks) != 1 || cfg.Output.Sinks[0] != "stdout" {
		t.Fatalf("expected [stdout] sinks, got %v", cfg.Output.Sinks)
	}
	if !errors.Is(cfg.Validate(), ErrNoModels) {
		t.Fatal("expected ErrNoModels for the default config")
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
	if len(cfg.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(cfg.Models))
	}
	if cfg.Models[0].Family != classifier.Standard {
		t.Fatalf("expected standard family by default, got %v", cfg.Models[0].Family)
	}
	if cfg.Models[1].Family != classifier.Generative {
		t.Fatalf("expected generative family, got %v", cfg.Models[1].Family)
	}
	if cfg.Data.Labels["Neurology"] != 2 {
		t.Fatalf("expected Neurology=2, got %v", cfg.Data.Labels)
	}
	if cfg.Engine.ModelsDir != "out/models" {
		t.Fatalf("expected models dir from file, got %q", cfg.Engine.ModelsDir)
	}
	// Unset keys keep their defaults.
	if cfg.Engine.Device != "cpu" {
		t.Fatalf("expected default device, got %q", cfg.Engine.Device)
	}
}

func TestModelConfig_Hyper(t *testing.T) {
	m := ModelConfig{Family: classifier.Generative, Epochs: 3}
	h := m.Hyper()
	def := classifier.Generative.Defaults()

	if h.Epochs != 3 {
		t.Fatalf("expected epochs override 3, got %d", h.Epochs)
	}
	if h.BatchSize != def.BatchSize || h.LearningRate != def.LearningRate || h.Seed != def.Seed {
		t.Fatalf("expected remaining defaults %+v, got %+v", def, h)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "engine:\n  modelsdir: x\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_BadFamily(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "models:\n  - tag: x\n    family: recurrent\n"))
	if err == nil {
		t.Fatal("expected error for unknown family")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLINOTE_MODELS_DIR", "/tmp/sweep")
	t.Setenv("CLINOTE_DEVICE", "cuda")
	t.Setenv("CLINOTE_OUTPUT_PRETTY", "true")
	t.Setenv("CLINOTE_VERBOSITY", "full")
	t.Setenv("CLINOTE_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.ModelsDir != "/tmp/sweep" {
		t.Fatalf("expected env models dir, got %q", cfg.Engine.ModelsDir)
	}
	if cfg.Engine.Device != "cuda" {
		t.Fatalf("expected cuda, got %q", cfg.Engine.Device)
	}
	if !cfg.Output.Pretty {
		t.Fatal("expected Pretty=true from env")
	}
	if cfg.Output.Verbosity != "full" || cfg.Log.Level != "debug" {
		t.Fatalf("expected full/debug, got %q/%q", cfg.Output.Verbosity, cfg.Log.Level)
	}
}

func TestLoad_ExpandsPaths(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTES_ROOT", "/data")

	cfg, err := Load(writeConfig(t, "data:\n  notes: $NOTES_ROOT/notes.csv\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data.Notes != "/data/notes.csv" {
		t.Fatalf("expected expanded path, got %q", cfg.Data.Notes)
	}
}

func TestGetenvBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback bool
		want     bool
	}{
		{"empty uses fallback", "", true, true},
		{"valid true", "1", false, true},
		{"valid false", "false", true, false},
		{"invalid uses fallback", "maybe", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_GETENV_BOOL", tt.value)
			if got := getenvBool("TEST_GETENV_BOOL", tt.fallback); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// validConfig returns a config that passes Validate.
func validConfig() Config {
	cfg := Default()
	cfg.Models = []ModelConfig{{Tag: "bert", Encoder: "m.onnx", Vocab: "vocab.txt"}}
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_DuplicateTag(t *testing.T) {
	cfg := validConfig()
	cfg.Models = append(cfg.Models, cfg.Models[0])

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate tag") {
		t.Fatalf("expected duplicate tag error, got: %v", err)
	}
}

func TestValidate_BadDevice(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.Device = "tpu"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "engine.device") {
		t.Fatalf("expected device error, got: %v", err)
	}
}

func TestValidate_BadVerbosity(t *testing.T) {
	cfg := validConfig()
	cfg.Output.Verbosity = "loud"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "verbosity") {
		t.Fatalf("expected verbosity error, got: %v", err)
	}
}

func TestValidate_UnknownSink(t *testing.T) {
	cfg := validConfig()
	cfg.Output.Sinks = []string{"stdout", "kafka"}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "kafka") {
		t.Fatalf("expected sink error, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Models[0].Encoder = ""
	cfg.Output.Verbosity = "loud"
	cfg.Log.Level = "trace"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"encoder is required", "verbosity", "log.level"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in error, got: %s", want, msg)
		}
	}
}

func TestLoad_RepoSample(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("../../clinote.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
	var generative int
	for _, m := range cfg.Models {
		if m.Family == classifier.Generative {
			generative++
		}
	}
	if generative != 1 {
		t.Fatalf("expected one generative model in the sample, got %d", generative)
	}
}
