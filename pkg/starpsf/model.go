package starpsf

import (
	"math"

	"starpsf/pkg/mrqfit"
)

// Nine-point product rule over the unit pixel: the centre, four edge
// points and four corners at ±0.5·√(3/5).
var (
	quadOffset = 0.5 * math.Sqrt(3.0/5.0)
	quadX      = [9]float64{0, 0, 0, quadOffset, -quadOffset, quadOffset, -quadOffset, quadOffset, -quadOffset}
	quadY      = [9]float64{0, quadOffset, -quadOffset, 0, 0, quadOffset, quadOffset, -quadOffset, -quadOffset}
	quadW      = [9]float64{16.0 / 81, 10.0 / 81, 10.0 / 81, 10.0 / 81, 10.0 / 81, 25.0 / 324, 25.0 / 324, 25.0 / 324, 25.0 / 324}
)

// pixelIntegral returns the pixel-averaged unit Gaussian at offset
// (xc, yc) from the centre of an ellipse rotated by (cos, sin).
func pixelIntegral(xc, yc, sx, sy, cos, sin float64) float64 {
	var s float64
	for n := range quadW {
		px, py := xc+quadX[n], yc+quadY[n]
		u := (cos*px + sin*py) / sx
		v := (-sin*px + cos*py) / sy
		s += quadW[n] * math.Exp(-0.5*(u*u+v*v))
	}
	return s
}

// GaussianValue returns the pixel-integrated elliptical Gaussian with
// parameters a = (A, x0, y0, σx, σy, θ) at pixel (x, y). Widths must be
// positive.
func GaussianValue(a [NumParams]float64, x, y float64) float64 {
	cos, sin := math.Cos(a[ParamAngle]), math.Sin(a[ParamAngle])
	return a[ParamAmplitude] * pixelIntegral(x-a[ParamX], y-a[ParamY], a[ParamSigmaX], a[ParamSigmaY], cos, sin)
}

// gaussModel fits an elliptical Gaussian to a background-subtracted grid.
type gaussModel struct {
	width  int
	data   []float64
	weight []float64 // nil means unit weights; negative masks the pixel
}

// newGaussModel subtracts bg from g. Non-finite pixels are masked out of
// the fit.
func newGaussModel(g PixelGrid, bg float64) *gaussModel {
	m := &gaussModel{width: g.Width, data: make([]float64, len(g.Pix))}
	for i, v := range g.Pix {
		m.data[i] = float64(v) - bg
		if !finite(m.data[i]) {
			if m.weight == nil {
				m.weight = make([]float64, len(g.Pix))
				for j := range m.weight {
					m.weight[j] = 1
				}
			}
			m.weight[i] = -1
		}
	}
	return m
}

func (m *gaussModel) Len() int { return len(m.data) }

func (m *gaussModel) Eval(i int, a, dyda []float64) (mrqfit.Point, error) {
	w := 1.0
	if m.weight != nil {
		w = m.weight[i]
	}
	if w < 0 {
		return mrqfit.Point{}, mrqfit.ErrSkip
	}
	sx, sy := a[ParamSigmaX], a[ParamSigmaY]
	if sx <= 0 || sy <= 0 {
		return mrqfit.Point{}, ErrDegenerateWidth
	}

	cos, sin := math.Cos(a[ParamAngle]), math.Sin(a[ParamAngle])
	xc := float64(i%m.width) - a[ParamX]
	yc := float64(i/m.width) - a[ParamY]
	s := pixelIntegral(xc, yc, sx, sy, cos, sin)
	f := a[ParamAmplitude] * s

	// Derivatives of the point-sampled Gaussian at the pixel centre.
	u := (cos*xc + sin*yc) / sx
	v := (-sin*xc + cos*yc) / sy
	dyda[ParamAmplitude] = s
	dyda[ParamX] = f * (cos*u/sx - sin*v/sy)
	dyda[ParamY] = f * (sin*u/sx + cos*v/sy)
	dyda[ParamSigmaX] = f * u * u / sx
	dyda[ParamSigmaY] = f * v * v / sy
	dyda[ParamAngle] = f * ((sin*xc-cos*yc)*u/sx + (cos*xc+sin*yc)*v/sy)

	return mrqfit.Point{Observed: m.data[i], Model: f, Weight: w}, nil
}
