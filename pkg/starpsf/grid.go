package starpsf

import (
	"fmt"
	"math"
)

// PixelGrid is a read-only row-major view of single-precision samples with
// the origin at pixel (0, 0).
type PixelGrid struct {
	Width  int
	Height int
	Pix    []float32
}

// NewPixelGrid wraps pix as a width×height grid. The slice is not copied.
func NewPixelGrid(pix []float32, width, height int) (PixelGrid, error) {
	if width < 2 || height < 2 {
		return PixelGrid{}, fmt.Errorf("grid must be at least 2x2, got %dx%d", width, height)
	}
	if len(pix) != width*height {
		return PixelGrid{}, fmt.Errorf("grid %dx%d needs %d samples, got %d", width, height, width*height, len(pix))
	}
	return PixelGrid{Width: width, Height: height, Pix: pix}, nil
}

// At returns the sample at (x, y). The caller checks bounds with In.
func (g PixelGrid) At(x, y int) float32 { return g.Pix[y*g.Width+x] }

// Value returns the sample at (x, y) and whether it is finite. NaN and
// infinite samples mark blank or bad pixels.
func (g PixelGrid) Value(x, y int) (float64, bool) {
	v := float64(g.Pix[y*g.Width+x])
	return v, finite(v)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// In reports whether (x, y) lies on the grid.
func (g PixelGrid) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// Sub copies the w×h window whose top-left corner is (x0, y0). The window
// must lie inside the grid.
func (g PixelGrid) Sub(x0, y0, w, h int) PixelGrid {
	pix := make([]float32, w*h)
	for y := 0; y < h; y++ {
		off := (y0+y)*g.Width + x0
		copy(pix[y*w:(y+1)*w], g.Pix[off:off+w])
	}
	return PixelGrid{Width: w, Height: h, Pix: pix}
}
