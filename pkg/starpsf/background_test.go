package starpsf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateBackgroundFlat(t *testing.T) {
	for _, v := range []float32{100, 2500, 9} {
		bg, err := EstimateBackground(flatGrid(t, 32, 32, v), NewOptions())
		require.NoError(t, err)
		assert.InDelta(t, float64(v), bg.Mean, 1e-9)
		assert.InDelta(t, math.Sqrt(float64(v)), bg.Sigma, 1e-9)
		// 8 frames of side 31, 29, ..., 17, four runs each.
		assert.Equal(t, 768, bg.Count)
	}
}

func TestEstimateBackgroundSkipsBlankPixels(t *testing.T) {
	g := flatGrid(t, 32, 32, 100)
	g.Pix[0] = float32(math.NaN())
	g.Pix[5*32+7] = float32(math.Inf(1))
	bg, err := EstimateBackground(g, NewOptions())
	require.NoError(t, err)
	assert.InDelta(t, 100, bg.Mean, 1e-9)
	assert.InDelta(t, 10, bg.Sigma, 1e-9)
	assert.Equal(t, 766, bg.Count)

	_, err = EstimateBackground(flatGrid(t, 8, 8, float32(math.NaN())), NewOptions())
	assert.ErrorIs(t, err, ErrInsufficientBackground)
}

func TestEstimateBackgroundIgnoresStar(t *testing.T) {
	g := synthStar(t, 21, 21, [NumParams]float64{1000, 10, 10, 2, 3, deg(30)}, 50, nil)
	bg, err := EstimateBackground(g, NewOptions())
	require.NoError(t, err)
	assert.InDelta(t, 50, bg.Mean, 1)
	assert.Less(t, bg.Sigma, 2.0)
	assert.Positive(t, bg.Count)
}

func TestEstimateBackgroundClipsOutliers(t *testing.T) {
	g := flatGrid(t, 24, 24, 400)
	// A hot column along the left edge.
	for y := 0; y < g.Height; y++ {
		g.Pix[y*g.Width] = 60000
	}
	bg, err := EstimateBackground(g, NewOptions())
	require.NoError(t, err)
	assert.InDelta(t, 400, bg.Mean, 1e-9)
	assert.InDelta(t, 20, bg.Sigma, 1e-9)
}

func TestEstimateBackgroundTooSmall(t *testing.T) {
	_, err := EstimateBackground(flatGrid(t, 3, 40, 10), NewOptions())
	assert.ErrorIs(t, err, ErrInsufficientBackground)
}

func TestEstimateBackgroundZeroLevel(t *testing.T) {
	// A zero spread rejects every sample on the first pass.
	_, err := EstimateBackground(flatGrid(t, 16, 16, 0), NewOptions())
	assert.ErrorIs(t, err, ErrInsufficientBackground)
	assert.Equal(t, StatusInsufficientBackground, StatusOf(err))
}
