package embedder

import "fmt"

// Encoder runs a pretrained transformer and returns its last-layer hidden
// states as a flat [Size * SeqLen * Dim] slice.
type Encoder interface {
	Hidden(b Batch) ([]float32, error)
	Dim() int
	Device() Device
	Close() error
}

// Opener opens an encoder on the given device. Models keep one so they can
// move between devices.
type Opener func(dev Device) (Encoder, error)

// ONNXEncoder wraps an ONNX Runtime session for local encoder inference.
type ONNXEncoder struct {
	session *onnxSession
}

// Open loads the ONNX model at modelPath and creates a session on dev.
func Open(modelPath string, dev Device) (*ONNXEncoder, error) {
	sess, err := newONNXSession(modelPath, dev)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	return &ONNXEncoder{session: sess}, nil
}

// ONNXOpener returns an Opener for the ONNX model at modelPath.
func ONNXOpener(modelPath string) Opener {
	return func(dev Device) (Encoder, error) {
		return Open(modelPath, dev)
	}
}

// Hidden runs the encoder over a tokenized batch.
func (e *ONNXEncoder) Hidden(b Batch) ([]float32, error) {
	if b.Size == 0 {
		return nil, nil
	}
	out, err := e.session.infer(b)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	return out, nil
}

// Dim returns the hidden size.
func (e *ONNXEncoder) Dim() int {
	return int(e.session.embedDim)
}

// Device returns the device the session runs on.
func (e *ONNXEncoder) Device() Device {
	return e.session.device
}

// Close releases ONNX Runtime resources.
func (e *ONNXEncoder) Close() error {
	if e.session != nil {
		return e.session.close()
	}
	return nil
}
