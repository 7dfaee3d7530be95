package captioning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	ManifestFilename   = "config.json"
	WeightsFilename    = "model.safetensors"
	VocabularyFilename = "vocab.txt"
)

// Manifest is the config.json descriptor inside a model directory. Its
// presence, well-formedness and model_type are the single authoritative
// "this is a valid model folder" check.
type Manifest struct {
	ModelType  string `json:"model_type"`
	HiddenSize int    `json:"hidden_size"`
	ImageSize  int    `json:"image_size"`
	PoolGrid   int    `json:"pool_grid"`
	BOSTokenID int    `json:"bos_token_id"`
	EOSTokenID int    `json:"eos_token_id"`
	PadTokenID int    `json:"pad_token_id"`
}

// LoadManifest reads and validates the manifest of a model directory.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, err)
	}

	manifest := &Manifest{
		ImageSize:  384,
		PoolGrid:   4,
		BOSTokenID: 101,
		EOSTokenID: 102,
	}
	if err := json.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, err)
	}

	if manifest.ModelType == "" {
		return nil, fmt.Errorf("%w: missing model_type in %s", ErrBadManifest, path)
	}
	if manifest.ImageSize < 1 || manifest.PoolGrid < 1 {
		return nil, fmt.Errorf("%w: invalid image_size/pool_grid in %s", ErrBadManifest, path)
	}

	return manifest, nil
}

// ProbeManifest reports whether dir contains a manifest for the given
// model family. Used by the resolver to decide if a directory is a
// loadable model folder before any weights are touched.
func ProbeManifest(dir string, family string) error {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return err
	}

	if !strings.EqualFold(manifest.ModelType, family) {
		return fmt.Errorf("%w: model_type %q does not match family %q",
			ErrBadManifest, manifest.ModelType, family)
	}

	return nil
}
