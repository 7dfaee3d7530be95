package captioning

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/transform"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// decodeImage turns raw upload bytes into an image. A payload that does
// not decode is the caller's fault, so the failure is an InputError.
func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &InputError{Err: fmt.Errorf("empty image payload")}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &InputError{Err: err}
	}

	return img, nil
}

// pooledFeatures resizes the image to size×size, normalizes RGB to
// [0,1], and mean-pools each channel over a grid×grid cell layout. The
// result has length 3·grid² and feeds the vision projection.
func pooledFeatures(img image.Image, size, grid int) []float64 {
	resized := transform.Resize(img, size, size, transform.Linear)

	features := make([]float64, 3*grid*grid)
	counts := make([]int, grid*grid)

	for y := 0; y < size; y++ {
		cy := y * grid / size
		for x := 0; x < size; x++ {
			cx := x * grid / size
			cell := cy*grid + cx

			r, g, b, _ := resized.At(x, y).RGBA()
			features[3*cell+0] += float64(r) / 0xffff
			features[3*cell+1] += float64(g) / 0xffff
			features[3*cell+2] += float64(b) / 0xffff
			counts[cell]++
		}
	}

	for cell, n := range counts {
		if n == 0 {
			continue
		}
		features[3*cell+0] /= float64(n)
		features[3*cell+1] /= float64(n)
		features[3*cell+2] /= float64(n)
	}

	return features
}
