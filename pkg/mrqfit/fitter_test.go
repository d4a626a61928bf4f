package mrqfit_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"starpsf/pkg/mrqfit"
)

// decayModel is y = a0·exp(-a1·x) + a2 sampled at x = 0..len(y)-1.
type decayModel struct {
	y      []float64
	weight float64
}

func newDecayModel(a0, a1, a2 float64, n int) *decayModel {
	y := make([]float64, n)
	for i := range y {
		y[i] = a0*math.Exp(-a1*float64(i)) + a2
	}
	return &decayModel{y: y, weight: 1}
}

func (m *decayModel) Len() int { return len(m.y) }

func (m *decayModel) Eval(i int, a, dyda []float64) (mrqfit.Point, error) {
	x := float64(i)
	e := math.Exp(-a[1] * x)
	dyda[0] = e
	dyda[1] = -a[0] * x * e
	dyda[2] = 1
	return mrqfit.Point{Observed: m.y[i], Model: a[0]*e + a[2], Weight: m.weight}, nil
}

// lineModel is y = a0 + a1·x with an optional mask of skipped points.
type lineModel struct {
	x, y   []float64
	weight float64
	skip   func(i int) bool
}

func (m *lineModel) Len() int { return len(m.x) }

func (m *lineModel) Eval(i int, a, dyda []float64) (mrqfit.Point, error) {
	if m.skip != nil && m.skip(i) {
		return mrqfit.Point{}, mrqfit.ErrSkip
	}
	dyda[0] = 1
	dyda[1] = m.x[i]
	return mrqfit.Point{Observed: m.y[i], Model: a[0] + a[1]*m.x[i], Weight: m.weight}, nil
}

func newLineModel(n int, a0, a1 float64) *lineModel {
	m := &lineModel{x: make([]float64, n), y: make([]float64, n), weight: 1}
	for i := 0; i < n; i++ {
		m.x[i] = float64(i)
		m.y[i] = a0 + a1*float64(i)
	}
	return m
}

func iterate(t *testing.T, f *mrqfit.Fitter, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.Iterate()
		require.NoError(t, err)
	}
}

func TestFitter_RecoversExponentialDecay(t *testing.T) {
	model := newDecayModel(5, 0.3, 1, 30)
	f, err := mrqfit.New(model, []float64{4, 0.2, 0.5}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, f.Lambda(), 1e-15)

	start := f.ChiSquare()
	iterate(t, f, 40)
	assert.Less(t, f.ChiSquare(), start)

	p := f.Params()
	assert.InDelta(t, 5.0, p[0], 1e-6)
	assert.InDelta(t, 0.3, p[1], 1e-6)
	assert.InDelta(t, 1.0, p[2], 1e-6)
	assert.Equal(t, 30, f.Samples())
	assert.Equal(t, 3, f.Active())
}

func TestFitter_AcceptAndRejectAdjustLambda(t *testing.T) {
	model := newDecayModel(5, 0.3, 1, 30)
	f, err := mrqfit.New(model, []float64{4, 0.2, 0.5}, nil)
	require.NoError(t, err)

	before := f.ChiSquare()
	accepted, err := f.Iterate()
	require.NoError(t, err)
	require.True(t, accepted)
	assert.InDelta(t, 0.0001, f.Lambda(), 1e-15)
	assert.Less(t, f.ChiSquare(), before)
}

func TestFitter_FixedParameterHasNoCovariance(t *testing.T) {
	model := newDecayModel(5, 0.3, 1, 30)
	f, err := mrqfit.New(model, []float64{4, 0.2, 1}, []int{1, 0})
	require.NoError(t, err)
	iterate(t, f, 30)
	require.NoError(t, f.Finalize())

	assert.Equal(t, 1.0, f.Params()[2], "fixed parameter must not move")
	for j := 0; j < 3; j++ {
		assert.Zero(t, f.Covariance(2, j))
		assert.Zero(t, f.Covariance(j, 2))
	}
	assert.Greater(t, f.Covariance(0, 0), 0.0)
	assert.Greater(t, f.Covariance(1, 1), 0.0)
	assert.Equal(t, f.Covariance(0, 1), f.Covariance(1, 0))
	assert.Zero(t, f.Lambda())

	_, err = f.Iterate()
	require.ErrorIs(t, err, mrqfit.ErrFinalized)
}

func TestFitter_CovarianceMatchesNormalEquations(t *testing.T) {
	const n = 12
	model := newLineModel(n, 2, 3)
	model.weight = 4

	f, err := mrqfit.New(model, []float64{0, 0}, nil)
	require.NoError(t, err)
	iterate(t, f, 10)
	require.NoError(t, f.Finalize())

	jac := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		jac.SetRow(i, []float64{1, model.x[i]})
	}
	var normal mat.Dense
	normal.Mul(jac.T(), jac)
	normal.Scale(model.weight, &normal)
	var want mat.Dense
	require.NoError(t, want.Inverse(&normal))

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, want.At(i, j), f.Covariance(i, j), 1e-12, "cov(%d,%d)", i, j)
		}
	}
	assert.InDelta(t, 2.0, f.Params()[0], 1e-8)
	assert.InDelta(t, 3.0, f.Params()[1], 1e-8)
}

func TestFitter_SkippedPoints(t *testing.T) {
	model := newLineModel(10, 1, 1)
	model.y[3] = 1000 // masked outlier
	model.skip = func(i int) bool { return i == 3 }

	f, err := mrqfit.New(model, []float64{0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, f.Samples())
	iterate(t, f, 10)
	assert.InDelta(t, 1.0, f.Params()[0], 1e-8)
	assert.InDelta(t, 1.0, f.Params()[1], 1e-8)
}

func TestFitter_BadPermutation(t *testing.T) {
	model := newLineModel(5, 1, 1)
	tests := []struct {
		name   string
		active []int
	}{
		{"duplicate", []int{0, 0}},
		{"out of range", []int{0, 2}},
		{"negative", []int{-1}},
		{"empty", []int{}},
		{"too long", []int{0, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mrqfit.New(model, []float64{0, 0}, tt.active)
			require.ErrorIs(t, err, mrqfit.ErrBadPermutation)
		})
	}
}

func TestFitter_TooManyParameters(t *testing.T) {
	_, err := mrqfit.New(newLineModel(5, 1, 1), make([]float64, mrqfit.MaxParams+1), nil)
	require.ErrorIs(t, err, mrqfit.ErrTooManyVariables)
}

func TestFitter_NoData(t *testing.T) {
	// Starting at the exact solution leaves nothing to fit.
	_, err := mrqfit.New(newLineModel(5, 1, 2), []float64{1, 2}, nil)
	require.ErrorIs(t, err, mrqfit.ErrNoData)

	all := newLineModel(5, 1, 2)
	all.skip = func(int) bool { return true }
	_, err = mrqfit.New(all, []float64{0, 0}, nil)
	require.ErrorIs(t, err, mrqfit.ErrNoData)
}

// boundedModel fits a constant but refuses values above a limit.
type boundedModel struct {
	y, limit float64
}

func (m boundedModel) Len() int { return 4 }

func (m boundedModel) Eval(i int, a, dyda []float64) (mrqfit.Point, error) {
	if a[0] > m.limit {
		return mrqfit.Point{}, fmt.Errorf("level %g: %w", a[0], mrqfit.ErrInvalidParams)
	}
	dyda[0] = 1
	return mrqfit.Point{Observed: m.y, Model: a[0], Weight: 1}, nil
}

func TestFitter_InvalidTrialIsRejected(t *testing.T) {
	f, err := mrqfit.New(boundedModel{y: 20, limit: 10}, []float64{5}, nil)
	require.NoError(t, err)

	accepted, err := f.Iterate()
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.InDelta(t, 0.01, f.Lambda(), 1e-12)
	assert.Equal(t, 5.0, f.Params()[0])

	for i := 0; i < 10 && !accepted; i++ {
		accepted, err = f.Iterate()
		require.NoError(t, err)
	}
	require.True(t, accepted)
	assert.LessOrEqual(t, f.Params()[0], 10.0)
	assert.Greater(t, f.Params()[0], 5.0)
}

func TestFitter_ModelErrorAborts(t *testing.T) {
	_, err := mrqfit.New(boundedModel{y: 20, limit: 10}, []float64{11}, nil)
	require.ErrorIs(t, err, mrqfit.ErrInvalidParams)
}
