//go:build !purego && !js

package main

import (
	"fmt"

	"gocv.io/x/gocv"

	sp "starpsf/pkg/starpsf"
)

// loadNonFitsImage reads a grayscale image keeping its bit depth so that
// pixel values stay in ADU.
func loadNonFitsImage(path string) (sp.Mat, int, int, error) {
	src := gocv.IMRead(path, gocv.IMReadAnyDepth)
	if src.Empty() {
		return sp.Mat{}, 0, 0, fmt.Errorf("could not load image: %s", path)
	}
	w, h := src.Cols(), src.Rows()
	return sp.WrapMat(src, 1), w, h, nil
}
