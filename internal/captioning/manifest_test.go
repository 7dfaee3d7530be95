package captioning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplain-ai/xplain-server/internal/captioning/captioningtest"
)

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifestJSON(t, dir, `{"model_type": "blip"}`)

	manifest, err := LoadManifest(dir)
	require.NoError(t, err)

	assert.Equal(t, "blip", manifest.ModelType)
	assert.Equal(t, 384, manifest.ImageSize)
	assert.Equal(t, 4, manifest.PoolGrid)
	assert.Equal(t, 101, manifest.BOSTokenID)
	assert.Equal(t, 102, manifest.EOSTokenID)
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed json", `{"model_type": `},
		{"missing model_type", `{"hidden_size": 8}`},
		{"bad pool grid", `{"model_type": "blip", "pool_grid": 0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifestJSON(t, dir, tt.json)

			_, err := LoadManifest(dir)
			require.ErrorIs(t, err, ErrBadManifest)
		})
	}
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	require.ErrorIs(t, err, ErrBadManifest)
}

func TestProbeManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, captioningtest.WriteManifest(dir))

	assert.NoError(t, ProbeManifest(dir, "blip"))
	assert.NoError(t, ProbeManifest(dir, "BLIP"))
	assert.ErrorIs(t, ProbeManifest(dir, "florence"), ErrBadManifest)
	assert.ErrorIs(t, ProbeManifest(t.TempDir(), "blip"), ErrBadManifest)
}

func writeManifestJSON(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFilename), []byte(contents), 0o644))
}
