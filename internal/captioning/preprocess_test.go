package captioning

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplain-ai/xplain-server/internal/captioning/captioningtest"
)

func TestDecodeImage(t *testing.T) {
	img, err := decodeImage(captioningtest.PNG(10, 6, color.Gray{Y: 40}))
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())

	_, err = decodeImage([]byte("nope"))
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)

	_, err = decodeImage(nil)
	require.ErrorAs(t, err, &inputErr)
}

func TestPooledFeatures(t *testing.T) {
	img, err := decodeImage(captioningtest.PNG(20, 20, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)

	features := pooledFeatures(img, 16, 2)
	require.Len(t, features, 3*2*2)

	for i, v := range features {
		assert.GreaterOrEqual(t, v, 0.0, "feature %d", i)
		assert.LessOrEqual(t, v, 1.0, "feature %d", i)
	}

	// Solid red: every cell's red channel saturated, green/blue empty.
	for cell := 0; cell < 4; cell++ {
		assert.InDelta(t, 1.0, features[3*cell], 0.02)
		assert.InDelta(t, 0.0, features[3*cell+1], 0.02)
		assert.InDelta(t, 0.0, features[3*cell+2], 0.02)
	}
}

func TestPooledFeaturesDeterministic(t *testing.T) {
	data := captioningtest.PNG(24, 18, color.RGBA{R: 10, G: 200, B: 90, A: 255})

	first, err := decodeImage(data)
	require.NoError(t, err)
	second, err := decodeImage(data)
	require.NoError(t, err)

	assert.Equal(t, pooledFeatures(first, 8, 2), pooledFeatures(second, 8, 2))
}
