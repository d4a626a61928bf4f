package starpsf

import (
	"fmt"
	"math"
)

// estimate3x3 returns a local level and half-difference gradients from the
// 3×3 neighbourhood of (x, y). The brightest pixel is excluded so a single
// hot pixel cannot steer the walk. Non-finite pixels are left out. ok is
// false at the grid border or when fewer than two pixels are usable.
func estimate3x3(g PixelGrid, x, y int) (level, gx, gy float64, ok bool) {
	if x < 1 || x > g.Width-2 || y < 1 || y > g.Height-2 {
		return 0, 0, 0, false
	}
	var box [9]float64
	var keep [9]bool
	usable := 0
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			v, ok := g.Value(x-1+i, y-1+j)
			if !ok {
				// ranks below every finite value and stays excluded
				v = math.Inf(-1)
			}
			box[3*j+i], keep[3*j+i] = v, ok
			if ok {
				usable++
			}
		}
	}
	if usable < 2 {
		return 0, 0, 0, false
	}
	rank := IndexSort(box[:])
	keep[rank[8]] = false

	var sum float64
	for i, v := range box {
		if keep[i] {
			sum += v
		}
	}
	level = sum / float64(usable-1)

	mean := func(idx ...int) float64 {
		var s float64
		var n int
		for _, i := range idx {
			if keep[i] {
				s += box[i]
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return s / float64(n)
	}
	gx = 0.5 * (mean(2, 5, 8) - mean(0, 3, 6))
	gy = 0.5 * (mean(6, 7, 8) - mean(0, 1, 2))
	return level, gx, gy, true
}

// findPeak walks uphill from the grid centre using the 3×3 gradients and
// compares the result with the centroid of all pixels above threshold.
func findPeak(g PixelGrid, bg, threshold float64) (int, int, error) {
	xc, yc := g.Width/2, g.Height/2
	stepX, stepY := 1, 1
	var lastX, lastY int
	var level float64
	for i, n := 0, min(xc, yc); i < n; i++ {
		l, gx, gy, ok := estimate3x3(g, xc, yc)
		if !ok {
			break
		}
		level = l
		if i > 0 {
			// A sign change of the gradient means the peak was crossed.
			if gx*float64(lastX) < 0 {
				stepX = 0
			}
			if gy*float64(lastY) < 0 {
				stepY = 0
			}
		}
		if stepX == 0 && stepY == 0 {
			break
		}
		lastX, lastY = stepX, stepY
		if gx <= 0 {
			lastX = -stepX
		}
		if gy <= 0 {
			lastY = -stepY
		}
		xc += lastX
		yc += lastY
	}

	var sx, sy float64
	var count int
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if v, ok := g.Value(x, y); ok && v-bg > threshold {
				sx += float64(x)
				sy += float64(y)
				count++
			}
		}
	}
	if count < 1 {
		return 0, 0, ErrNoSignal
	}
	cx, cy := int(sx/float64(count)), int(sy/float64(count))
	if v, ok := g.Value(cx, cy); ok && level < v {
		return cx, cy, nil
	}
	return xc, yc, nil
}

// EstimateMoments computes the centroid and second moments of the source
// from pixels above opts.SignalKappa background σ. Pixels are accumulated
// ring by ring around the peak until a full ring adds nothing. Non-finite
// pixels contribute nothing.
func EstimateMoments(g PixelGrid, bg Background, opts *Options) (ShapeEstimate, error) {
	threshold := opts.SignalKappa * bg.Sigma
	xc, yc, err := findPeak(g, bg.Mean, threshold)
	if err != nil {
		return ShapeEstimate{}, err
	}

	var am, sx, sy, sxx, syy, sxy float64
	add := func(x, y int, v float64) {
		fx, fy := float64(x), float64(y)
		am += v
		sx += v * fx
		sy += v * fy
		sxx += v * fx * fx
		syy += v * fy * fy
		sxy += v * fx * fy
	}
	if v, ok := g.Value(xc, yc); ok {
		add(xc, yc, v-bg.Mean)
	}

	added := 1
	s := newSpiral(xc, yc)
	for legs := min(g.Width, g.Height) - 1; legs > 0; legs-- {
		if s.ringClosed() {
			if added == 0 {
				break
			}
			added = 0
		}
		if !s.leg(func(x, y int) bool {
			if !g.In(x, y) {
				err = fmt.Errorf("moment ring reached (%d,%d) outside %dx%d grid: %w", x, y, g.Width, g.Height, ErrPositionOutOfRange)
				return false
			}
			if v, ok := g.Value(x, y); ok && v-bg.Mean > threshold {
				add(x, y, v-bg.Mean)
				added++
			}
			return true
		}) {
			return ShapeEstimate{}, err
		}
	}
	if am <= 0 {
		return ShapeEstimate{}, fmt.Errorf("zeroth moment %g: %w", am, ErrNoSignal)
	}

	est := ShapeEstimate{X: sx / am, Y: sy / am}
	vx := sxx/am - est.X*est.X
	vy := syy/am - est.Y*est.Y
	if vx > 0 {
		est.SigmaX = math.Sqrt(vx)
		est.Angle = euclideanMod(math.Atan((sxy/am-est.X*est.Y)/vx), math.Pi)
	}
	if vy > 0 {
		est.SigmaY = math.Sqrt(vy)
	}
	est.Amplitude = peakNear(g, int(math.Floor(est.X+0.5)), int(math.Floor(est.Y+0.5))) - bg.Mean
	if !finite(est.Amplitude) {
		return ShapeEstimate{}, fmt.Errorf("no finite pixel near centroid (%.2f,%.2f): %w", est.X, est.Y, ErrNoSignal)
	}

	opts.logf("moments: peak=(%d,%d) x=%.3f y=%.3f sx=%.3f sy=%.3f a=%.3f", xc, yc, est.X, est.Y, est.SigmaX, est.SigmaY, est.Amplitude)
	return est, nil
}

// peakNear returns the pixel at (x, y), or the brightest finite pixel of
// its 3×3 neighbourhood when that pixel is blank.
func peakNear(g PixelGrid, x, y int) float64 {
	if v, ok := g.Value(x, y); ok {
		return v
	}
	peak := math.Inf(-1)
	for j := y - 1; j <= y+1; j++ {
		for i := x - 1; i <= x+1; i++ {
			if !g.In(i, j) {
				continue
			}
			if v, ok := g.Value(i, j); ok {
				peak = math.Max(peak, v)
			}
		}
	}
	return peak
}

func euclideanMod(v, m float64) float64 {
	r := math.Mod(v, m)
	if r < 0 {
		r += m
	}
	return r
}
