package embedder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Only the first call has
// any effect; later calls return the first result.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// SharedLibraryPath resolves the ONNX Runtime shared library: CLINOTE_ORT_LIB
// when set, otherwise libonnxruntime.so next to the model file.
func SharedLibraryPath(modelPath string) string {
	if p := os.Getenv("CLINOTE_ORT_LIB"); p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
}

const (
	inputIDs      = "input_ids"
	attentionMask = "attention_mask"
	tokenTypeIDs  = "token_type_ids"
)

// onnxSession wraps a DynamicAdvancedSession for transformer encoders that
// emit last-layer hidden states.
type onnxSession struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	embedDim   int64
	device     Device
}

// newONNXSession loads the ONNX model and creates an inference session on dev.
// It validates the model's input/output tensor names and shapes.
func newONNXSession(modelPath string, dev Device) (*onnxSession, error) {
	if err := initORT(SharedLibraryPath(modelPath)); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}

	inputNames, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}

	out, err := hiddenStateOutput(outputs)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(4)
	opts.SetInterOpNumThreads(1)

	if dev == CUDA {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("onnx: failed to create CUDA options: %w", err)
		}
		defer cudaOpts.Destroy()
		if err := cudaOpts.Update(map[string]string{"device_id": "0"}); err != nil {
			return nil, fmt.Errorf("onnx: failed to configure CUDA: %w", err)
		}
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			return nil, fmt.Errorf("onnx: failed to enable CUDA provider: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		[]string{out.Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &onnxSession{
		session:    session,
		inputNames: inputNames,
		outputName: out.Name,
		embedDim:   out.Dimensions[2],
		device:     dev,
	}, nil
}

// validateInputs checks that the model takes input_ids and attention_mask
// and returns the input names in feed order. token_type_ids is included only
// when the graph declares it (generative models usually do not).
func validateInputs(inputs []ort.InputOutputInfo) ([]string, error) {
	nameSet := make(map[string]bool, len(inputs))
	for _, inp := range inputs {
		nameSet[inp.Name] = true
	}
	names := []string{inputIDs, attentionMask}
	for _, name := range names {
		if !nameSet[name] {
			return nil, fmt.Errorf("onnx: model missing required input %q", name)
		}
	}
	if nameSet[tokenTypeIDs] {
		names = append(names, tokenTypeIDs)
	}
	return names, nil
}

// hiddenStateOutput picks last_hidden_state when exported under that name,
// otherwise the first output. The tensor must be [batch, seq, dim].
func hiddenStateOutput(outputs []ort.InputOutputInfo) (ort.InputOutputInfo, error) {
	if len(outputs) == 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("onnx: model has no outputs")
	}
	out := outputs[0]
	for _, o := range outputs {
		if o.Name == "last_hidden_state" {
			out = o
			break
		}
	}
	if len(out.Dimensions) != 3 || out.Dimensions[2] <= 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("onnx: expected 3D output tensor with static hidden size, got %v", out.Dimensions)
	}
	return out, nil
}

// infer runs a single inference call and returns the hidden states as a
// flat float32 slice of shape [Size * SeqLen * embedDim].
func (s *onnxSession) infer(b Batch) ([]float32, error) {
	shape := ort.NewShape(b.Size, b.SeqLen)

	feeds := map[string][]int64{
		inputIDs:      b.InputIDs,
		attentionMask: b.AttentionMask,
		tokenTypeIDs:  b.TokenTypeIDs,
	}
	values := make([]ort.Value, 0, len(s.inputNames))
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()
	for _, name := range s.inputNames {
		t, err := ort.NewTensor(shape, feeds[name])
		if err != nil {
			return nil, fmt.Errorf("onnx: failed to create %s tensor: %w", name, err)
		}
		values = append(values, t)
	}

	outShape := ort.NewShape(b.Size, b.SeqLen, s.embedDim)
	tOut, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := s.session.Run(values, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before tensor is destroyed.
	src := tOut.GetData()
	result := make([]float32, len(src))
	copy(result, src)
	return result, nil
}

// close releases the ONNX session resources.
func (s *onnxSession) close() error {
	return s.session.Destroy()
}
