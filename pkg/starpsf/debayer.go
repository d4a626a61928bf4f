package starpsf

// DebayerRGGB interpolates a raw RGGB mosaic bilinearly and returns the
// luminance (R + G + B) / 3 of every pixel. Red sits at even rows and even
// columns, blue at odd rows and odd columns. Border pixels replicate their
// nearest neighbour.
func DebayerRGGB(raw []float32, width, height int) []float32 {
	at := func(x, y int) float64 {
		return float64(raw[clampIndex(y, height)*width+clampIndex(x, width)])
	}
	cross := func(x, y int) float64 {
		return (at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1)) / 4
	}
	diagonal := func(x, y int) float64 {
		return (at(x-1, y-1) + at(x+1, y-1) + at(x-1, y+1) + at(x+1, y+1)) / 4
	}
	horizontal := func(x, y int) float64 { return (at(x-1, y) + at(x+1, y)) / 2 }
	vertical := func(x, y int) float64 { return (at(x, y-1) + at(x, y+1)) / 2 }

	lum := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var r, g, b float64
			switch y%2<<1 | x%2 {
			case 0: // R
				r, g, b = at(x, y), cross(x, y), diagonal(x, y)
			case 1: // G on a red row
				r, g, b = horizontal(x, y), at(x, y), vertical(x, y)
			case 2: // G on a blue row
				r, g, b = vertical(x, y), at(x, y), horizontal(x, y)
			default: // B
				r, g, b = diagonal(x, y), cross(x, y), at(x, y)
			}
			lum[y*width+x] = float32((r + g + b) / 3)
		}
	}
	return lum
}

// DebayerToMat converts a raw RGGB mosaic to a luminance Mat.
func DebayerToMat(raw []float32, width, height int) (Mat, error) {
	return NewMatFromPixels(DebayerRGGB(raw, width, height), width, height)
}

func clampIndex(i, n int) int {
	return min(max(i, 0), n-1)
}
