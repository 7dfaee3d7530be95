package captioning

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Minimal reader for the safetensors container: an 8-byte little-endian
// header length, a JSON header mapping tensor names to dtype, shape and
// byte offsets, then one contiguous data buffer. Only F32 tensors are
// accepted; the export side writes nothing else.

type tensorHeader struct {
	Dtype   string `json:"dtype"`
	Shape   []int  `json:"shape"`
	Offsets [2]int `json:"data_offsets"`
}

type tensor struct {
	shape []int
	data  []float64
}

func (t tensor) elements() int {
	n := 1
	for _, d := range t.shape {
		n *= d
	}
	return n
}

func readTensors(path string) (map[string]tensor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}

	if len(raw) < 8 {
		return nil, fmt.Errorf("weights file %s is truncated", path)
	}

	headerLen := binary.LittleEndian.Uint64(raw[:8])
	if headerLen > uint64(len(raw)-8) {
		return nil, fmt.Errorf("weights file %s has a corrupt header length", path)
	}

	var headers map[string]json.RawMessage
	if err := json.Unmarshal(raw[8:8+headerLen], &headers); err != nil {
		return nil, fmt.Errorf("weights header is not valid JSON: %w", err)
	}

	buf := raw[8+headerLen:]
	tensors := make(map[string]tensor, len(headers))
	for name, rawHeader := range headers {
		if name == "__metadata__" {
			continue
		}

		var th tensorHeader
		if err := json.Unmarshal(rawHeader, &th); err != nil {
			return nil, fmt.Errorf("tensor %s has a malformed header: %w", name, err)
		}
		if th.Dtype != "F32" {
			return nil, fmt.Errorf("tensor %s has unsupported dtype %s, want F32", name, th.Dtype)
		}

		begin, end := th.Offsets[0], th.Offsets[1]
		if begin < 0 || end > len(buf) || begin > end {
			return nil, fmt.Errorf("tensor %s has out-of-range data offsets", name)
		}

		t := tensor{shape: th.Shape}
		if want := t.elements() * 4; end-begin != want {
			return nil, fmt.Errorf("tensor %s has %d data bytes, shape wants %d", name, end-begin, want)
		}

		t.data = make([]float64, t.elements())
		for i := range t.data {
			bits := binary.LittleEndian.Uint32(buf[begin+i*4:])
			t.data[i] = float64(math.Float32frombits(bits))
		}
		tensors[name] = t
	}

	return tensors, nil
}

func matrixTensor(tensors map[string]tensor, name string, rows, cols int) (tensor, error) {
	t, ok := tensors[name]
	if !ok {
		return tensor{}, fmt.Errorf("weights are missing tensor %s", name)
	}
	if len(t.shape) != 2 {
		return tensor{}, fmt.Errorf("tensor %s has rank %d, want 2", name, len(t.shape))
	}
	if (rows > 0 && t.shape[0] != rows) || (cols > 0 && t.shape[1] != cols) {
		return tensor{}, fmt.Errorf("tensor %s has shape %v, want [%d %d]", name, t.shape, rows, cols)
	}

	return t, nil
}

func vectorTensor(tensors map[string]tensor, name string, size int) (tensor, error) {
	t, ok := tensors[name]
	if !ok {
		return tensor{}, fmt.Errorf("weights are missing tensor %s", name)
	}
	if len(t.shape) != 1 {
		return tensor{}, fmt.Errorf("tensor %s has rank %d, want 1", name, len(t.shape))
	}
	if size > 0 && t.shape[0] != size {
		return tensor{}, fmt.Errorf("tensor %s has shape %v, want [%d]", name, t.shape, size)
	}

	return t, nil
}
