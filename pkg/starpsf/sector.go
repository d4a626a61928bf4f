package starpsf

import (
	"fmt"
	"math"
)

const sectors = 8

// Harmonic weights cos(kπ/4) and sin(kπ/4) for the eight sector centres.
var (
	sectorCos = [sectors]float64{1, math.Sqrt2 / 2, 0, -math.Sqrt2 / 2, -1, -math.Sqrt2 / 2, 0, math.Sqrt2 / 2}
	sectorSin = [sectors]float64{0, math.Sqrt2 / 2, 1, math.Sqrt2 / 2, 0, -math.Sqrt2 / 2, -1, -math.Sqrt2 / 2}
)

// EstimateSector refines the orientation of est from the azimuthal
// distribution of flux in the annulus 2·min(σ) < r < 4·max(σ) around the
// moment centroid. The returned estimate is est with Angle replaced and
// Asymmetry set to the magnitude of the first harmonic.
func EstimateSector(g PixelGrid, bg Background, est ShapeEstimate) (ShapeEstimate, error) {
	sigMax := math.Max(est.SigmaX, est.SigmaY)
	rl := 2 * math.Min(est.SigmaX, est.SigmaY)
	rh := 4 * sigMax

	var sum [sectors]float64
	var count [sectors]int
	s := newSpiral(int(math.Floor(est.X+0.5)), int(math.Floor(est.Y+0.5)))
	for legs := int(math.Ceil(16 * sigMax)); legs > 0; legs-- {
		s.leg(func(x, y int) bool {
			if !g.In(x, y) {
				return true
			}
			v, ok := g.Value(x, y)
			if !ok {
				return true
			}
			dx, dy := float64(x)-est.X, float64(y)-est.Y
			if r := math.Hypot(dx, dy); r <= rl || r >= rh {
				return true
			}
			k := int(4/math.Pi*math.Atan2(dy, dx)+8.5) % sectors
			sum[k] += math.Max(v-bg.Mean, 0)
			count[k]++
			return true
		})
	}

	var a1r, a1i, a2r, a2i float64
	for k := 0; k < sectors; k++ {
		v := sum[k] / float64(max(count[k], 1))
		a1r += v * sectorCos[k]
		a1i += v * sectorSin[k]
		a2r += v * sectorCos[(2*k)%sectors]
		a2i += v * sectorSin[(2*k)%sectors]
	}
	if a2r == 0 && a2i == 0 {
		return ShapeEstimate{}, fmt.Errorf("sector harmonics vanish around (%.2f,%.2f): %w", est.X, est.Y, ErrNoOrientation)
	}

	est.Angle = euclideanMod(0.5*math.Atan2(a2i, a2r), math.Pi)
	est.Asymmetry = math.Hypot(a1r, a1i)
	return est, nil
}
