// Package starpsf measures the image quality of a single star: it fits a
// pixel-integrated elliptical Gaussian to a small cutout and reports the
// centre, FWHM along both axes, position angle and peak above background.
//
// Measure runs the full pipeline. The stages it is built from
// (EstimateBackground, EstimateMoments, EstimateSector) are exported so
// callers can inspect intermediate estimates. All state is local to a call
// and independent cutouts may be measured concurrently.
package starpsf

import (
	"errors"
	"fmt"
	"math"

	"starpsf/pkg/mrqfit"
)

// Measure fits the star in g. When the fit runs out of iterations the last
// estimate is returned together with ErrMaxIterations; any other error
// aborts the measurement and the result is nil.
func Measure(g PixelGrid, opts *Options) (*FitResult, error) {
	if opts == nil {
		opts = NewOptions()
	}
	bg, err := EstimateBackground(g, opts)
	if err != nil {
		return nil, err
	}
	est, err := EstimateMoments(g, bg, opts)
	if err != nil {
		return nil, err
	}
	est, err = EstimateSector(g, bg, est)
	if err != nil {
		return nil, err
	}
	opts.logf("sector: angle=%.2f deg asymmetry=%.3f", est.Angle*180/math.Pi, est.Asymmetry)

	x0, nx := fitWindow(est.X, est.SigmaX, opts.BoxSigmas, g.Width)
	y0, ny := fitWindow(est.Y, est.SigmaY, opts.BoxSigmas, g.Height)
	model := newGaussModel(g.Sub(x0, y0, nx, ny), bg.Mean)

	start := est.params()
	start[ParamX] -= float64(x0)
	start[ParamY] -= float64(y0)
	fitter, err := mrqfit.New(model, start[:], nil)
	if err != nil {
		return nil, fmt.Errorf("initialize fit: %w", err)
	}

	converged, iterations, err := iterate(fitter, float64(nx), float64(ny), opts)
	if err != nil {
		return nil, err
	}
	if err := fitter.Finalize(); err != nil {
		return nil, err
	}

	res := newFitResult(fitter, bg, opts)
	res.X += float64(x0)
	res.Y += float64(y0)
	res.Params[ParamX] = res.X
	res.Params[ParamY] = res.Y
	res.Iterations = iterations
	res.OK = converged
	opts.logf("fit: window=%dx%d@(%d,%d) iterations=%d chi2=%.4g converged=%v", nx, ny, x0, y0, iterations, res.ChiSquare, converged)
	if !converged {
		res.Status = StatusMaxIterations
		return res, fmt.Errorf("%d iterations: %w", iterations, ErrMaxIterations)
	}
	return res, nil
}

// fitWindow returns the start and length of the fit window along one axis,
// ±box·sigma around c and clipped to [0, size).
func fitWindow(c, sigma, box float64, size int) (int, int) {
	start := max(int(math.Floor(c-box*sigma)), 0)
	n := max(int(math.Ceil(2*box*sigma)), 3)
	if start+n > size {
		n = size - start
	}
	return start, n
}

// iterate runs damped steps until chi-square settles, the damping stops
// decreasing for more than opts.StallLimit steps, or opts.MaxIterations is
// reached. Parameters are kept physical between steps.
func iterate(f *mrqfit.Fitter, nx, ny float64, opts *Options) (bool, int, error) {
	lastChi, lastLambda := f.ChiSquare(), f.Lambda()
	stalls := 0
	for it := 1; it <= opts.MaxIterations; it++ {
		var prev [NumParams]float64
		copy(prev[:], f.Params())

		if _, err := f.Iterate(); err != nil {
			return false, it, fmt.Errorf("iteration %d: %w", it, err)
		}
		chi, lambda := f.ChiSquare(), f.Lambda()
		decreased := lambda < lastLambda
		if decreased && math.Abs(chi-lastChi) < opts.Tolerance*lastChi {
			return true, it, nil
		}
		if decreased {
			lastChi = chi
			stalls = 0
		} else {
			stalls++
		}
		lastLambda = lambda
		if stalls > opts.StallLimit {
			return true, it, nil
		}

		a := f.Params()
		for _, i := range []int{ParamAmplitude, ParamSigmaX, ParamSigmaY} {
			if a[i] <= 0 {
				a[i] = 0.5 * prev[i]
			}
		}
		a[ParamAngle] = euclideanMod(a[ParamAngle], math.Pi)
		if a[ParamX] < 0 || a[ParamX] > nx || a[ParamY] < 0 || a[ParamY] > ny {
			return false, it, fmt.Errorf("centre (%.2f,%.2f) left %gx%g window: %w", a[ParamX], a[ParamY], nx, ny, ErrPositionOutOfRange)
		}
	}
	return false, opts.MaxIterations, nil
}

// newFitResult builds a result from a finalized fitter. The covariance is
// scaled by the reduced chi-square and the ellipse is reported with its X
// axis angle in [0, π/2).
func newFitResult(f *mrqfit.Fitter, bg Background, opts *Options) *FitResult {
	res := &FitResult{
		Status:          StatusOK,
		Background:      bg.Mean,
		BackgroundSigma: bg.Sigma,
		ChiSquare:       f.ChiSquare(),
		Pixels:          f.Samples(),
	}
	copy(res.Params[:], f.Params())

	scale := res.ChiSquare / float64(max(res.Pixels-NumParams, 1))
	for i := 0; i < NumParams; i++ {
		for j := 0; j < NumParams; j++ {
			res.Covariance[i][j] = f.Covariance(i, j) * scale
		}
	}

	res.Params[ParamAngle] = euclideanMod(res.Params[ParamAngle], math.Pi)
	if res.Params[ParamAngle] >= math.Pi/2 {
		res.Params[ParamSigmaX], res.Params[ParamSigmaY] = res.Params[ParamSigmaY], res.Params[ParamSigmaX]
		res.Params[ParamAngle] -= math.Pi / 2
		swapCovariance(&res.Covariance, ParamSigmaX, ParamSigmaY)
	}
	for i := 0; i < NumParams; i++ {
		res.Errors[i] = math.Sqrt(math.Max(res.Covariance[i][i], 0))
	}

	res.X = res.Params[ParamX]
	res.Y = res.Params[ParamY]
	res.Peak = res.Params[ParamAmplitude]
	res.SigmaX = res.Params[ParamSigmaX]
	res.SigmaY = res.Params[ParamSigmaY]
	res.FWHMX = res.SigmaX * sigmaToFWHM
	res.FWHMY = res.SigmaY * sigmaToFWHM
	res.AngleDeg = res.Params[ParamAngle] * 180 / math.Pi
	res.FWHM = math.Sqrt(res.FWHMX * res.FWHMY)
	res.FWHMArcsec = res.FWHM * opts.PixelScale
	a, b := math.Max(res.FWHMX, res.FWHMY), math.Min(res.FWHMX, res.FWHMY)
	res.Eccentricity = math.Sqrt(1 - b*b/(a*a))
	return res
}

func swapCovariance(c *[NumParams][NumParams]float64, p, q int) {
	c[p], c[q] = c[q], c[p]
	for i := range c {
		c[i][p], c[i][q] = c[i][q], c[i][p]
	}
}

// IsFatal reports whether err aborted a measurement, as opposed to a fit
// that merely ran out of iterations.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrMaxIterations)
}
