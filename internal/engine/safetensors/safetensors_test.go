package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	in := map[string]Tensor{
		"classifier.weight": NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
		"classifier.bias":   NewTensor([]float32{0.5, -0.5}, 2),
	}
	if err := Write(path, in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 tensors, got %d", len(out))
	}
	w := out["classifier.weight"]
	if len(w.Shape) != 2 || w.Shape[0] != 2 || w.Shape[1] != 3 {
		t.Errorf("weight shape = %v", w.Shape)
	}
	if w.Data[5] != 6 {
		t.Errorf("weight[5] = %v, want 6", w.Data[5])
	}
	if b := out["classifier.bias"]; b.Data[1] != -0.5 {
		t.Errorf("bias = %v", b.Data)
	}
}

func TestEncodeHeaderAligned(t *testing.T) {
	data, err := Encode(map[string]Tensor{"x": NewTensor([]float32{1}, 1)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	hdrLen := binary.LittleEndian.Uint64(data[:8])
	if hdrLen%8 != 0 {
		t.Errorf("header length %d not 8-byte aligned", hdrLen)
	}
	if len(data) != 8+int(hdrLen)+4 {
		t.Errorf("file size %d, want %d", len(data), 8+int(hdrLen)+4)
	}
}

// writeRaw builds a file by hand the way the Python safetensors package
// lays it out, including a __metadata__ entry.
func writeRaw(t *testing.T, header map[string]any, values []float32) string {
	t.Helper()
	hdr, err := json.Marshal(header)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 8+len(hdr)+len(values)*4)
	binary.LittleEndian.PutUint64(buf, uint64(len(hdr)))
	copy(buf[8:], hdr)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[8+len(hdr)+i*4:], math.Float32bits(v))
	}
	path := filepath.Join(t.TempDir(), "raw.safetensors")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadIgnoresMetadata(t *testing.T) {
	path := writeRaw(t, map[string]any{
		"__metadata__":  map[string]string{"format": "pt"},
		"linear.weight": map[string]any{"dtype": "F32", "shape": []int{1, 2}, "data_offsets": []int{0, 8}},
	}, []float32{3, 4})

	out, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := out["linear.weight"].Data; got[0] != 3 || got[1] != 4 {
		t.Errorf("linear.weight = %v", got)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]any
		values []float32
	}{
		{
			name:   "wrong dtype",
			header: map[string]any{"w": map[string]any{"dtype": "F16", "shape": []int{2}, "data_offsets": []int{0, 4}}},
			values: []float32{1},
		},
		{
			name:   "size mismatch",
			header: map[string]any{"w": map[string]any{"dtype": "F32", "shape": []int{3}, "data_offsets": []int{0, 8}}},
			values: []float32{1, 2},
		},
		{
			name:   "offsets past end",
			header: map[string]any{"w": map[string]any{"dtype": "F32", "shape": []int{4}, "data_offsets": []int{0, 16}}},
			values: []float32{1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(writeRaw(t, tt.header, tt.values)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecodeTooSmall(t *testing.T) {
	if _, err := Decode([]byte{1, 2}); err == nil {
		t.Fatal("expected error for truncated file")
	}
}

func TestEncodeRejectsBadShape(t *testing.T) {
	_, err := Encode(map[string]Tensor{"w": {Shape: []int{2, 2}, Data: []float32{1}}})
	if err == nil {
		t.Fatal("expected error for shape mismatch")
	}
}
