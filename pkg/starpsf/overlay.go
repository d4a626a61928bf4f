package starpsf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	overlayWidth   = 800
	overlayFooter  = 60
	overlayQuality = 90
)

var (
	textColor    = color.RGBA{255, 255, 255, 255}
	footerColor  = color.RGBA{220, 220, 220, 255}
	gridColor    = color.RGBA{255, 255, 255, 180}
	ellipseColor = color.RGBA{255, 80, 80, 255}
)

// EncodeJPEG writes img as a JPEG.
func EncodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: overlayQuality})
}

// JPEGBytes encodes img as JPEG bytes.
func JPEGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJPEG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderField draws the 3x3 zone map of a field analysis for a
// width×height frame: each zone coloured by its FWHM relative to the
// centre, with an arrow from the best to the worst corner.
func RenderField(field *FieldAnalysis, width, height int) (*image.RGBA, error) {
	if field == nil {
		return nil, fmt.Errorf("no field analysis data")
	}
	scale := float64(overlayWidth) / float64(width)
	imgW := overlayWidth
	imgH := max(int(float64(height)*scale), 100)
	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH+overlayFooter))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	xLo, xHi := int(float64(imgW)*fieldEdgeFraction), int(float64(imgW)*(1-fieldEdgeFraction))
	yLo, yHi := int(float64(imgH)*fieldEdgeFraction), int(float64(imgH)*(1-fieldEdgeFraction))
	xb := [4]int{0, xLo, xHi, imgW}
	yb := [4]int{0, yLo, yHi, imgH}
	zoneRect := func(pos ZonePosition) image.Rectangle {
		row, col := int(pos)/3, int(pos)%3
		return image.Rect(xb[col], yb[row], xb[col+1], yb[row+1])
	}

	center := field.Zones[ZoneCenter].MedianFWHM
	if center <= 0 {
		center = 1
	}
	face := basicfont.Face7x13
	for pos := ZonePosition(0); pos < numZones; pos++ {
		zone := field.Zones[pos]
		r := zoneRect(pos)
		draw.Draw(img, r, image.NewUniform(fwhmColor(zone.MedianFWHM, center)), image.Point{}, draw.Src)

		cx, cy := (r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2
		if zone.MedianFWHM > 0 {
			radius := min(max(int(zone.MedianFWHM*scale*3), 3), r.Dx()/3)
			drawEllipse(img, float64(cx), float64(cy), float64(radius), float64(radius), 0, gridColor)
		}
		drawCenteredText(img, face, zone.Label, cx, cy-14, textColor)
		drawCenteredText(img, face, fmt.Sprintf("FWHM: %.2f", zone.MedianFWHM), cx, cy+2, textColor)
		drawCenteredText(img, face, fmt.Sprintf("n=%d", zone.StarCount), cx, cy+16, textColor)
	}
	for x := 0; x < imgW; x++ {
		img.Set(x, yLo, gridColor)
		img.Set(x, yHi, gridColor)
	}
	for y := 0; y < imgH; y++ {
		img.Set(xLo, y, gridColor)
		img.Set(xHi, y, gridColor)
	}

	if field.BestCorner != "" && field.WorstCorner != "" {
		best, worst := zoneByLabel(field.BestCorner), zoneByLabel(field.WorstCorner)
		b, w := zoneRect(best), zoneRect(worst)
		bx, by := (b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2
		wx, wy := (w.Min.X+w.Max.X)/2, (w.Min.Y+w.Max.Y)/2
		drawLine(img, bx, by, wx, wy, ellipseColor)
		drawArrowHead(img, bx, by, wx, wy, ellipseColor)
	}

	note := ""
	if !field.Reliable {
		note = "  [LOW STAR COUNT - UNRELIABLE]"
	}
	drawText(img, face, fmt.Sprintf("Tilt: %.1f%%  (worst: %s, best: %s)", field.TiltPct, field.WorstCorner, field.BestCorner), 10, imgH+15, footerColor)
	drawText(img, face, fmt.Sprintf("Off-axis: %.1f%%%s", field.OffAxisPct, note), 10, imgH+33, footerColor)
	return img, nil
}

// RenderFit draws a cutout magnified zoom times with a linear stretch
// between background and peak, the fitted FWHM ellipse and a caption.
// origin is the cutout position in the frame the result refers to.
func RenderFit(g PixelGrid, res *FitResult, origin image.Point, zoom int) *image.RGBA {
	zoom = max(zoom, 1)
	w, h := g.Width*zoom, g.Height*zoom
	img := image.NewRGBA(image.Rect(0, 0, max(w, 160), h+overlayFooter))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range g.Pix {
		if f := float64(v); finite(f) {
			lo = math.Min(lo, f)
			hi = math.Max(hi, f)
		}
	}
	if res != nil {
		lo = res.Background - res.BackgroundSigma
		hi = res.Background + res.Peak
	}
	span := math.Max(hi-lo, 1e-9)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			var level uint8
			if v, ok := g.Value(x, y); ok {
				level = uint8(255 * math.Sqrt(math.Min(math.Max((v-lo)/span, 0), 1)))
			}
			draw.Draw(img, image.Rect(x*zoom, y*zoom, (x+1)*zoom, (y+1)*zoom),
				image.NewUniform(color.Gray{Y: level}), image.Point{}, draw.Src)
		}
	}
	if res == nil {
		return img
	}

	// Pixel centres sit at the middle of each magnified block.
	cx := (res.X-float64(origin.X))*float64(zoom) + float64(zoom)/2
	cy := (res.Y-float64(origin.Y))*float64(zoom) + float64(zoom)/2
	theta := res.AngleDeg * math.Pi / 180
	drawEllipse(img, cx, cy, res.FWHMX/2*float64(zoom), res.FWHMY/2*float64(zoom), theta, ellipseColor)

	face := basicfont.Face7x13
	drawText(img, face, fmt.Sprintf("(%.2f, %.2f) %s", res.X, res.Y, res.Status), 6, h+15, footerColor)
	drawText(img, face, fmt.Sprintf("FWHM %.2f x %.2f px @ %.1f deg", res.FWHMX, res.FWHMY, res.AngleDeg), 6, h+33, footerColor)
	return img
}

// fwhmColor shades a zone from green to red by its FWHM relative to the
// centre.
func fwhmColor(zone, center float64) color.RGBA {
	if zone <= 0 || center <= 0 {
		return color.RGBA{40, 40, 40, 255}
	}
	ratio := zone / center
	switch {
	case ratio <= 1.1:
		t := ratio / 1.1
		return color.RGBA{uint8(t * 30), uint8(60 + t*40), 20, 255}
	case ratio <= 1.3:
		t := (ratio - 1.1) / 0.2
		return color.RGBA{uint8(30 + t*170), uint8(100 - t*20), 20, 255}
	default:
		t := math.Min((ratio-1.3)/0.3, 1)
		return color.RGBA{uint8(200 + t*55), uint8(80 - t*60), uint8(20 - t*10), 255}
	}
}

func zoneByLabel(label string) ZonePosition {
	for i, l := range zoneLabels {
		if l == label {
			return ZonePosition(i)
		}
	}
	return ZoneCenter
}

func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawCenteredText(img *image.RGBA, face font.Face, s string, cx, cy int, c color.RGBA) {
	drawText(img, face, s, cx-font.MeasureString(face, s).Round()/2, cy, c)
}

// drawEllipse plots the outline of an ellipse with semi-axes a along
// angle theta and b perpendicular to it.
func drawEllipse(img *image.RGBA, cx, cy, a, b, theta float64, c color.RGBA) {
	steps := max(int(8*math.Max(a, b)), 32)
	cos, sin := math.Cos(theta), math.Sin(theta)
	for i := 0; i < steps; i++ {
		t := 2 * math.Pi * float64(i) / float64(steps)
		u, v := a*math.Cos(t), b*math.Sin(t)
		img.Set(int(math.Round(cx+u*cos-v*sin)), int(math.Round(cy+u*sin+v*cos)), c)
	}
}

// drawLine draws a 2px Bresenham line.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := intAbs(x1-x0), -intAbs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		img.Set(x0+1, y0, c)
		img.Set(x0, y0+1, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawArrowHead(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := float64(x1-x0), float64(y1-y0)
	length := math.Hypot(dx, dy)
	if length < 1 {
		return
	}
	dx /= length
	dy /= length
	const size = 15.0
	px, py := float64(x1)-dx*size, float64(y1)-dy*size
	drawLine(img, x1, y1, int(px+dy*size*0.4), int(py-dx*size*0.4), c)
	drawLine(img, x1, y1, int(px-dy*size*0.4), int(py+dx*size*0.4), c)
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
