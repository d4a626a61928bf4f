package starpsf

import (
	"fmt"
	"image"
	"math"
)

// NewMatFromPixels copies a row-major float32 image into a Mat.
func NewMatFromPixels(pix []float32, width, height int) (Mat, error) {
	if len(pix) != width*height {
		return Mat{}, fmt.Errorf("image %dx%d needs %d samples, got %d", width, height, width*height, len(pix))
	}
	m := NewMatWithSize(height, width)
	copy(m.DataFloat32(), pix)
	return m, nil
}

// cutoutRect returns the size×size window centred on (cx, cy), shifted to
// lie inside a width×height image and shrunk when the image is smaller.
func cutoutRect(cx, cy float64, size, width, height int) image.Rectangle {
	place := func(c float64, n int) (int, int) {
		s := min(size, n)
		lo := int(math.Floor(c+0.5)) - s/2
		return min(max(lo, 0), n-s), s
	}
	x0, w := place(cx, width)
	y0, h := place(cy, height)
	return image.Rect(x0, y0, x0+w, y0+h)
}

// Cutout copies the window of side size around (cx, cy) out of m. With
// denoise set the window is 3×3 median filtered, which removes isolated
// hot pixels. The returned point is the window origin in m.
func Cutout(m Mat, cx, cy float64, size int, denoise bool) (PixelGrid, image.Point, error) {
	if m.Empty() {
		return PixelGrid{}, image.Point{}, fmt.Errorf("empty image")
	}
	if cx < 0 || cy < 0 || cx >= float64(m.Cols()) || cy >= float64(m.Rows()) {
		return PixelGrid{}, image.Point{}, fmt.Errorf("position (%.1f,%.1f) outside %dx%d image: %w", cx, cy, m.Cols(), m.Rows(), ErrPositionOutOfRange)
	}
	r := cutoutRect(cx, cy, size, m.Cols(), m.Rows())

	region := m.Region(r)
	window := region.Clone()
	region.Close()
	defer window.Close()
	if denoise {
		filtered := NewMatWithSize(window.Rows(), window.Cols())
		medianBlur(window, &filtered, 3)
		window.Close()
		window = filtered
	}

	pix := make([]float32, r.Dx()*r.Dy())
	copy(pix, window.DataFloat32())
	g, err := NewPixelGrid(pix, r.Dx(), r.Dy())
	if err != nil {
		return PixelGrid{}, image.Point{}, err
	}
	return g, r.Min, nil
}

// MeasureAt measures the star near (x, y) in m. The result is in image
// coordinates.
func MeasureAt(m Mat, x, y float64, opts *Options) (*FitResult, error) {
	if opts == nil {
		opts = NewOptions()
	}
	g, origin, err := Cutout(m, x, y, opts.CutoutSize, opts.HotPixelFilter)
	if err != nil {
		return nil, err
	}
	res, err := Measure(g, opts)
	if res != nil {
		res.X += float64(origin.X)
		res.Y += float64(origin.Y)
		res.Params[ParamX] = res.X
		res.Params[ParamY] = res.Y
	}
	if err != nil {
		return res, fmt.Errorf("star at (%.1f,%.1f): %w", x, y, err)
	}
	return res, nil
}
