package captioning

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplain-ai/xplain-server/internal/captioning/captioningtest"
)

func TestReadTensorsRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), WeightsFilename)
	require.NoError(t, captioningtest.WriteSafetensors(path, map[string]captioningtest.Tensor{
		"a": {Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		"b": {Shape: []int{2}, Data: []float32{-1.5, 0.25}},
	}))

	tensors, err := readTensors(path)
	require.NoError(t, err)
	require.Len(t, tensors, 2)

	a, err := matrixTensor(tensors, "a", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, a.data)

	b, err := vectorTensor(tensors, "b", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1.5, 0.25}, b.data)
}

func TestReadTensorsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), WeightsFilename)
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := readTensors(path)
	require.Error(t, err)
}

func TestReadTensorsCorruptHeaderLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), WeightsFilename)

	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data, 1<<40)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := readTensors(path)
	require.Error(t, err)
}

func TestReadTensorsRejectsNonF32(t *testing.T) {
	path := filepath.Join(t.TempDir(), WeightsFilename)

	header := []byte(`{"a": {"dtype": "F16", "shape": [1], "data_offsets": [0, 2]}}`)
	data := make([]byte, 8, 8+len(header)+2)
	binary.LittleEndian.PutUint64(data, uint64(len(header)))
	data = append(data, header...)
	data = append(data, 0, 0)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := readTensors(path)
	require.ErrorContains(t, err, "unsupported dtype")
}

func TestTensorShapeChecks(t *testing.T) {
	path := filepath.Join(t.TempDir(), WeightsFilename)
	require.NoError(t, captioningtest.WriteSafetensors(path, map[string]captioningtest.Tensor{
		"m": {Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}},
	}))

	tensors, err := readTensors(path)
	require.NoError(t, err)

	_, err = matrixTensor(tensors, "m", 3, 2)
	assert.Error(t, err)

	_, err = matrixTensor(tensors, "missing", 2, 2)
	assert.Error(t, err)

	_, err = vectorTensor(tensors, "m", 4)
	assert.Error(t, err)
}
