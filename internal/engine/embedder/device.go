package embedder

import (
	"fmt"
	"strings"
)

// Device selects where encoder inference runs.
type Device int

const (
	CPU Device = iota
	CUDA
)

func (d Device) String() string {
	if d == CUDA {
		return "cuda"
	}
	return "cpu"
}

// ParseDevice converts "cpu" or "cuda" (case-insensitive) to a Device.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return CPU, nil
	case "cuda", "gpu":
		return CUDA, nil
	default:
		return CPU, fmt.Errorf("embedder: unknown device %q", s)
	}
}
