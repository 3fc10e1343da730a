// Package safetensors reads and writes F32 tensors in the safetensors
// format: an 8-byte little-endian header length, a JSON header mapping
// tensor names to dtype/shape/data_offsets, then the raw tensor bytes.
package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor wraps data with the given shape. It panics if the element
// count does not match the shape.
func NewTensor(data []float32, shape ...int) Tensor {
	if numel(shape) != len(data) {
		panic(fmt.Sprintf("safetensors: shape %v does not hold %d values", shape, len(data)))
	}
	return Tensor{Shape: shape, Data: data}
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

type tensorMeta struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// Read loads every tensor from a safetensors file. Only F32 tensors are
// supported; the __metadata__ entry is ignored.
func Read(path string) (map[string]Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: %w", err)
	}
	return Decode(data)
}

// Decode parses a safetensors file held in memory.
func Decode(data []byte) (map[string]Tensor, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("safetensors: file too small: %d bytes", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if uint64(len(data)) < 8+headerLen {
		return nil, fmt.Errorf("safetensors: header length %d exceeds file size", headerLen)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("safetensors: failed to parse header: %w", err)
	}

	base := int(8 + headerLen)
	tensors := make(map[string]Tensor, len(header))
	for name, raw := range header {
		if name == "__metadata__" {
			continue
		}
		var meta tensorMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: failed to parse metadata: %w", name, err)
		}
		if meta.Dtype != "F32" {
			return nil, fmt.Errorf("safetensors: tensor %q: expected dtype F32, got %s", name, meta.Dtype)
		}

		n := numel(meta.Shape)
		start := base + meta.DataOffsets[0]
		end := base + meta.DataOffsets[1]
		if end-start != n*4 {
			return nil, fmt.Errorf("safetensors: tensor %q: data size %d doesn't match shape %v",
				name, end-start, meta.Shape)
		}
		if end > len(data) {
			return nil, fmt.Errorf("safetensors: tensor %q: data range [%d:%d] exceeds file size %d",
				name, start, end, len(data))
		}

		values := make([]float32, n)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[start+i*4:]))
		}
		tensors[name] = Tensor{Shape: meta.Shape, Data: values}
	}
	return tensors, nil
}

// Encode serializes tensors. Data is laid out in name order and the header
// is padded with spaces to an 8-byte boundary.
func Encode(tensors map[string]Tensor) ([]byte, error) {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]tensorMeta, len(names))
	offset := 0
	for _, name := range names {
		t := tensors[name]
		if numel(t.Shape) != len(t.Data) {
			return nil, fmt.Errorf("safetensors: tensor %q: shape %v does not hold %d values",
				name, t.Shape, len(t.Data))
		}
		size := len(t.Data) * 4
		header[name] = tensorMeta{
			Dtype:       "F32",
			Shape:       t.Shape,
			DataOffsets: [2]int{offset, offset + size},
		}
		offset += size
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: %w", err)
	}
	if pad := len(hdr) % 8; pad != 0 {
		hdr = append(hdr, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	buf := make([]byte, 8+len(hdr)+offset)
	binary.LittleEndian.PutUint64(buf, uint64(len(hdr)))
	copy(buf[8:], hdr)
	pos := 8 + len(hdr)
	for _, name := range names {
		for _, v := range tensors[name].Data {
			binary.LittleEndian.PutUint32(buf[pos:], math.Float32bits(v))
			pos += 4
		}
	}
	return buf, nil
}

// Write serializes tensors to path.
func Write(path string, tensors map[string]Tensor) error {
	data, err := Encode(tensors)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: %w", err)
	}
	return nil
}
