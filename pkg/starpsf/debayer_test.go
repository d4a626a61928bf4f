package starpsf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebayerRGGBUniformChannels(t *testing.T) {
	// R=30, G=60, B=90 everywhere gives luminance 60 away from the border.
	const w, h = 6, 4
	raw := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch {
			case y%2 == 0 && x%2 == 0:
				raw[y*w+x] = 30
			case y%2 == 1 && x%2 == 1:
				raw[y*w+x] = 90
			default:
				raw[y*w+x] = 60
			}
		}
	}
	lum := DebayerRGGB(raw, w, h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			assert.InDelta(t, 60, lum[y*w+x], 1e-4, "pixel (%d,%d)", x, y)
		}
	}
}

func TestDebayerToMat(t *testing.T) {
	raw := []float32{
		10, 20, 10, 20,
		20, 40, 20, 40,
		10, 20, 10, 20,
		20, 40, 20, 40,
	}
	m, err := DebayerToMat(raw, 4, 4)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 4, m.Rows())
	assert.Equal(t, 4, m.Cols())
	data := m.DataFloat32()
	// Interior red site: R=10, G=20, B=40.
	assert.InDelta(t, 70.0/3, data[2*4+2], 1e-4)
}
