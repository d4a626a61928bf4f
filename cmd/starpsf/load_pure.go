//go:build purego || js

package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/tiff"

	sp "starpsf/pkg/starpsf"
)

func loadNonFitsImage(path string) (sp.Mat, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return sp.Mat{}, 0, 0, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return sp.Mat{}, 0, 0, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// 16-bit luminance
			pix[y*w+x] = float32((19595*r + 38470*g + 7471*b + 1<<15) >> 16)
		}
	}
	m, err := sp.NewMatFromPixels(pix, w, h)
	return m, w, h, err
}
