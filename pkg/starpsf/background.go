package starpsf

import (
	"fmt"
	"math"
)

// EstimateBackground estimates the background level and noise of g from
// concentric frames along its border. The samples are kappa-sigma clipped
// for opts.ClipPasses passes; a rejected sample stays rejected. Non-finite
// pixels are not sampled.
func EstimateBackground(g PixelGrid, opts *Options) (Background, error) {
	n := min(g.Width, g.Height)
	rings := n / 4
	if rings < 1 {
		return Background{}, fmt.Errorf("grid %dx%d has no background frame: %w", g.Width, g.Height, ErrInsufficientBackground)
	}

	// Each frame is walked as four runs of equal length so that every
	// corner is sampled once.
	side := n - 1
	samples := make([]float32, 0, 4*rings*side)
	for m := 0; m < rings; m++ {
		l := side - 2*m
		right, bottom := g.Width-1-m, g.Height-1-m
		for k := 0; k < l; k++ {
			for _, p := range [4][2]int{{m + k, m}, {right, m + k}, {m, bottom - k}, {right - k, bottom}} {
				if v, ok := g.Value(p[0], p[1]); ok {
					samples = append(samples, float32(v))
				}
			}
		}
	}
	if len(samples) == 0 {
		return Background{}, fmt.Errorf("no finite pixels in the background frame: %w", ErrInsufficientBackground)
	}
	HeapSort(samples)

	nt := len(samples)
	mean := float64(samples[nt/2])
	sigma := 0.606 * (mean - float64(samples[nt/20]))
	if sigma <= 0 {
		sigma = math.Sqrt(math.Abs(mean))
	}

	keep := make([]bool, nt)
	for i := range keep {
		keep[i] = true
	}
	count := 0
	for pass := 0; pass < opts.ClipPasses; pass++ {
		limit := opts.ClipKappa * sigma
		var sum, sum2 float64
		count = 0
		for i, s := range samples {
			v := float64(s)
			if !keep[i] || math.Abs(v-mean) >= limit {
				keep[i] = false
				continue
			}
			sum += v
			sum2 += v * v
			count++
		}
		if count < 1 {
			return Background{}, fmt.Errorf("pass %d rejected all %d samples: %w", pass+1, nt, ErrInsufficientBackground)
		}
		mean = sum / float64(count)
		if variance := sum2/float64(count) - mean*mean; variance > 0 {
			sigma = math.Sqrt(variance)
		} else {
			sigma = math.Sqrt(math.Abs(mean))
		}
	}

	opts.logf("background: mean=%.4f sigma=%.4f samples=%d/%d", mean, sigma, count, nt)
	return Background{Mean: mean, Sigma: sigma, Count: count}, nil
}
