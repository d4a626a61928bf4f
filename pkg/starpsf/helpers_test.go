package starpsf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// synthStar renders a pixel-integrated Gaussian on a constant background.
// noise, when non-nil, is added to every pixel.
func synthStar(t *testing.T, w, h int, a [NumParams]float64, bg float64, noise func() float64) PixelGrid {
	t.Helper()
	pix := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := bg + GaussianValue(a, float64(x), float64(y))
			if noise != nil {
				v += noise()
			}
			pix[y*w+x] = float32(v)
		}
	}
	g, err := NewPixelGrid(pix, w, h)
	require.NoError(t, err)
	return g
}

func flatGrid(t *testing.T, w, h int, v float32) PixelGrid {
	t.Helper()
	pix := make([]float32, w*h)
	for i := range pix {
		pix[i] = v
	}
	g, err := NewPixelGrid(pix, w, h)
	require.NoError(t, err)
	return g
}

// canonical returns the ellipse equivalent to a whose X axis angle lies in
// [0, π/2).
func canonical(a [NumParams]float64) [NumParams]float64 {
	a[ParamAngle] = euclideanMod(a[ParamAngle], math.Pi)
	if a[ParamAngle] >= math.Pi/2 {
		a[ParamSigmaX], a[ParamSigmaY] = a[ParamSigmaY], a[ParamSigmaX]
		a[ParamAngle] -= math.Pi / 2
	}
	return a
}

func deg(d float64) float64 { return d * math.Pi / 180 }
