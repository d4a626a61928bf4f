package starpsf

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderFit(t *testing.T) {
	g := synthStar(t, 21, 21, [NumParams]float64{1000, 10, 10, 2, 3, deg(30)}, 50, nil)
	res, err := Measure(g, nil)
	require.NoError(t, err)

	img := RenderFit(g, res, image.Point{}, 8)
	assert.Equal(t, image.Rect(0, 0, 168, 168+overlayFooter), img.Bounds())
	// The centre pixel is the brightest and the corners near black.
	center := img.RGBAAt(84, 84)
	corner := img.RGBAAt(2, 2)
	assert.Greater(t, center.G, uint8(200))
	assert.Less(t, corner.G, uint8(60))

	found := false
	for y := 0; y < 168 && !found; y++ {
		for x := 0; x < 168; x++ {
			if img.RGBAAt(x, y) == ellipseColor {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "ellipse drawn")

	b, err := JPEGBytes(img)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestRenderFitWithoutResult(t *testing.T) {
	g := flatGrid(t, 4, 4, 10)
	img := RenderFit(g, nil, image.Point{}, 0)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(1, 1))
}

func TestRenderField(t *testing.T) {
	_, err := RenderField(nil, 100, 100)
	assert.Error(t, err)

	field := &FieldAnalysis{TiltPct: 12, BestCorner: "TL", WorstCorner: "BR"}
	for i := range field.Zones {
		field.Zones[i] = ZoneData{Label: zoneLabels[i], MedianFWHM: 2 + 0.1*float64(i), StarCount: 4}
	}
	img, err := RenderField(field, 4000, 3000)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, overlayWidth, 600+overlayFooter), img.Bounds())
	assert.Equal(t, fwhmColor(2.4, 2.4), img.RGBAAt(400, 200))
}
