package starpsf

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"starpsf/pkg/mrqfit"
)

var sigmaToFWHM = 2.0 * math.Sqrt(2.0*math.Log(2.0))

var (
	// ErrInsufficientBackground is returned when kappa-sigma clipping
	// rejects every background sample.
	ErrInsufficientBackground = errors.New("insufficient background samples")
	// ErrNoSignal is returned when no pixel rises above the detection
	// threshold.
	ErrNoSignal = errors.New("no signal above threshold")
	// ErrNoOrientation is returned when the sector harmonics carry no
	// orientation (an isotropic or empty source).
	ErrNoOrientation = errors.New("no orientation signal")
	// ErrPositionOutOfRange is returned when a traversal leaves the grid or
	// the fitted centre leaves the fit window.
	ErrPositionOutOfRange = errors.New("position out of range")
	// ErrMaxIterations is returned together with a result when the fit did
	// not converge within the iteration limit.
	ErrMaxIterations = errors.New("maximum iterations exceeded")
	// ErrDegenerateWidth is returned by the model for non-positive widths.
	ErrDegenerateWidth = fmt.Errorf("non-positive gaussian width: %w", mrqfit.ErrInvalidParams)
)

// Status is the outcome of a measurement.
type Status int

const (
	StatusOK Status = iota
	StatusInsufficientBackground
	StatusNoSignal
	StatusNoOrientation
	StatusBadPermutation
	StatusTooManyVariables
	StatusNoData
	StatusSingularMatrix
	StatusPositionOutOfRange
	StatusMaxIterations
	StatusDegenerateWidth
	StatusFailed
)

var statusErrors = []struct {
	err    error
	status Status
}{
	{ErrInsufficientBackground, StatusInsufficientBackground},
	{ErrNoSignal, StatusNoSignal},
	{ErrNoOrientation, StatusNoOrientation},
	{mrqfit.ErrBadPermutation, StatusBadPermutation},
	{mrqfit.ErrTooManyVariables, StatusTooManyVariables},
	{mrqfit.ErrNoData, StatusNoData},
	{mrqfit.ErrSingularMatrix, StatusSingularMatrix},
	{ErrPositionOutOfRange, StatusPositionOutOfRange},
	{ErrMaxIterations, StatusMaxIterations},
	{ErrDegenerateWidth, StatusDegenerateWidth},
}

// StatusOf maps an error returned by this package to its Status.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	for _, se := range statusErrors {
		if errors.Is(err, se.err) {
			return se.status
		}
	}
	return StatusFailed
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInsufficientBackground:
		return "insufficient-background"
	case StatusNoSignal:
		return "no-signal"
	case StatusNoOrientation:
		return "no-orientation-signal"
	case StatusBadPermutation:
		return "bad-permutation"
	case StatusTooManyVariables:
		return "too-many-variables"
	case StatusNoData:
		return "no-data"
	case StatusSingularMatrix:
		return "singular-matrix"
	case StatusPositionOutOfRange:
		return "position-out-of-range"
	case StatusMaxIterations:
		return "max-iterations-exceeded"
	case StatusDegenerateWidth:
		return "degenerate-width"
	default:
		return "failed"
	}
}

// Parameter indices of the elliptical Gaussian.
const (
	ParamAmplitude = iota
	ParamX
	ParamY
	ParamSigmaX
	ParamSigmaY
	ParamAngle
	NumParams
)

// Background is the robust background level of a grid.
type Background struct {
	Mean  float64
	Sigma float64
	Count int // samples surviving the last clipping pass
}

// ShapeEstimate is a moment or sector estimate of a source.
type ShapeEstimate struct {
	Amplitude float64
	X         float64
	Y         float64
	SigmaX    float64
	SigmaY    float64
	Angle     float64 // radians in [0, π)
	Asymmetry float64 // k=1 sector harmonic, set by EstimateSector
}

func (e ShapeEstimate) params() [NumParams]float64 {
	return [NumParams]float64{e.Amplitude, e.X, e.Y, e.SigmaX, e.SigmaY, e.Angle}
}

// FitResult is the outcome of Measure. X and Y are in the coordinate frame
// of the measured grid.
//
// The ellipse is reported with its X axis at AngleDeg in [0, 90). When
// FWHMY > FWHMX the major axis lies at AngleDeg+90.
type FitResult struct {
	Status Status
	OK     bool

	X               float64
	Y               float64
	FWHMX           float64
	FWHMY           float64
	AngleDeg        float64 // angle of the X axis, [0, 90)
	Peak            float64 // amplitude above background
	Background      float64
	BackgroundSigma float64

	SigmaX float64
	SigmaY float64

	// Derived quantities.
	FWHM         float64 // geometric mean of FWHMX and FWHMY
	FWHMArcsec   float64
	Eccentricity float64

	Params     [NumParams]float64 // fitted vector, angle in radians
	Errors     [NumParams]float64 // 1σ uncertainties of Params
	Covariance [NumParams][NumParams]float64
	ChiSquare  float64
	Pixels     int
	Iterations int
}

// CovarianceMatrix returns the parameter covariance as a gonum matrix.
func (r *FitResult) CovarianceMatrix() *mat.SymDense {
	data := make([]float64, 0, NumParams*NumParams)
	for i := 0; i < NumParams; i++ {
		data = append(data, r.Covariance[i][:]...)
	}
	return mat.NewSymDense(NumParams, data)
}

func (r *FitResult) String() string {
	return fmt.Sprintf("{Status=%s, X=%f, Y=%f, FWHMx=%f, FWHMy=%f, Angle=%f, Peak=%f, Background=%f, FWHM=%f, FWHMArcsec=%f, Eccentricity=%f, Iterations=%d}",
		r.Status, r.X, r.Y, r.FWHMX, r.FWHMY, r.AngleDeg, r.Peak, r.Background, r.FWHM, r.FWHMArcsec, r.Eccentricity, r.Iterations)
}
