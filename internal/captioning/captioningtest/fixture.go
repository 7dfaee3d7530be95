// Package captioningtest writes miniature model directories for tests:
// a blip manifest, a WordPiece vocabulary and a float32 safetensors
// weight file small enough to beam-search in microseconds.
package captioningtest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	HiddenSize = 4
	ImageSize  = 8
	PoolGrid   = 1
	BOSTokenID = 1
	EOSTokenID = 2
)

// Vocab is the fixture vocabulary. Ids 0..2 are specials; "##ray"
// exercises WordPiece joining.
var Vocab = []string{"[PAD]", "[CLS]", "[SEP]", "a", "chest", "x", "##ray", "shows", "opacity"}

// WriteModel populates dir with a complete, loadable model export and
// returns dir. Weights are deterministic; special tokens carry a large
// negative bias so generated captions are never empty.
func WriteModel(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	if err := WriteManifest(dir); err != nil {
		return "", err
	}

	vocabPath := filepath.Join(dir, "vocab.txt")
	if err := os.WriteFile(vocabPath, []byte(strings.Join(Vocab, "\n")+"\n"), 0o644); err != nil {
		return "", err
	}

	featDim := 3 * PoolGrid * PoolGrid
	vocab := len(Vocab)

	tensors := map[string]Tensor{
		"vision.proj": {Shape: []int{HiddenSize, featDim}, Data: rampData(HiddenSize*featDim, 7, 13, 1.0)},
		"text.embed":  {Shape: []int{vocab, HiddenSize}, Data: rampData(vocab*HiddenSize, 13, 17, 0.4)},
		"text.recur":  {Shape: []int{HiddenSize, HiddenSize}, Data: rampData(HiddenSize*HiddenSize, 5, 11, 0.3)},
		"text.bias":   {Shape: []int{vocab}, Data: biasData(vocab)},
	}

	if err := WriteSafetensors(filepath.Join(dir, "model.safetensors"), tensors); err != nil {
		return "", err
	}

	return dir, nil
}

// WriteManifest writes only the config.json descriptor; enough for a
// directory to pass manifest validation without being fully loadable.
func WriteManifest(dir string) error {
	manifest := map[string]any{
		"model_type":   "blip",
		"hidden_size":  HiddenSize,
		"image_size":   ImageSize,
		"pool_grid":    PoolGrid,
		"bos_token_id": BOSTokenID,
		"eos_token_id": EOSTokenID,
		"pad_token_id": 0,
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// Tensor is a float32 tensor destined for a safetensors file.
type Tensor struct {
	Shape []int
	Data  []float32
}

// WriteSafetensors writes tensors in the safetensors container layout:
// 8-byte little-endian header length, JSON header, raw data buffer.
func WriteSafetensors(path string, tensors map[string]Tensor) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(tensors))
	var data bytes.Buffer
	for _, name := range names {
		t := tensors[name]
		begin := data.Len()
		for _, v := range t.Data {
			binary.Write(&data, binary.LittleEndian, math.Float32bits(v))
		}
		header[name] = map[string]any{
			"dtype":        "F32",
			"shape":        t.Shape,
			"data_offsets": []int{begin, data.Len()},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint64(len(headerJSON)))
	out.Write(headerJSON)
	out.Write(data.Bytes())

	return os.WriteFile(path, out.Bytes(), 0o644)
}

// rampData fills n values with a deterministic zero-centered ramp of the
// given amplitude.
func rampData(n, mulA, modB int, amplitude float32) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = (float32((i*mulA)%modB)/float32(modB) - 0.5) * amplitude
	}
	return data
}

// biasData suppresses the three special tokens so beam search always
// prefers real words within the fixture's token budget.
func biasData(vocab int) []float32 {
	data := make([]float32, vocab)
	for i := range data {
		if i < 3 {
			data[i] = -10
		} else {
			data[i] = 0.2 + 0.05*float32(i)
		}
	}
	return data
}

// PNG encodes a solid-color image, a decodable stand-in for an x-ray.
func PNG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Sprintf("encode fixture png: %v", err))
	}
	return buf.Bytes()
}
