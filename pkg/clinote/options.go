package clinote

import (
	"github.com/crimson-sun/clinote/internal/engine/embedder"
	"github.com/crimson-sun/clinote/internal/engine/explain"
)

type options struct {
	device      string
	encoderPath string
	opener      embedder.Opener
}

// Option configures a Classifier.
type Option func(*options)

// WithDevice selects where inference runs: "cpu" (default) or "cuda".
func WithDevice(device string) Option {
	return func(o *options) {
		o.device = device
	}
}

// WithEncoderPath overrides the ONNX encoder path recorded in the artifact.
// Use this when the artifact has moved since training.
func WithEncoderPath(path string) Option {
	return func(o *options) {
		o.encoderPath = path
	}
}

// withOpener swaps the encoder for tests.
func withOpener(open embedder.Opener) Option {
	return func(o *options) {
		o.opener = open
	}
}

type explainOptions struct {
	labels []string
	opts   explain.Options
}

// ExplainOption configures an explanation.
type ExplainOption func(*explainOptions)

// WithLabels restricts the explanation to the named categories. By default
// every category is explained.
func WithLabels(names ...string) ExplainOption {
	return func(o *explainOptions) {
		o.labels = names
	}
}

// WithNumFeatures sets how many words each category's explanation keeps.
// Default: 10.
func WithNumFeatures(n int) ExplainOption {
	return func(o *explainOptions) {
		o.opts.NumFeatures = n
	}
}

// WithNumSamples sets how many perturbed copies of the text are scored.
// Default: 20.
func WithNumSamples(n int) ExplainOption {
	return func(o *explainOptions) {
		o.opts.NumSamples = n
	}
}

// WithSeed fixes the perturbation seed. Default: 0.
func WithSeed(seed int64) ExplainOption {
	return func(o *explainOptions) {
		o.opts.Seed = seed
	}
}
