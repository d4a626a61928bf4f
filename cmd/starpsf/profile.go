package main

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	sp "starpsf/pkg/starpsf"
)

// profilePoints returns the finite background-subtracted pixels of g against
// their distance from the fitted centre, and the fitted model sampled
// along its major and minor axes out to the same radius.
func profilePoints(g sp.PixelGrid, res *sp.FitResult, origin image.Point) (data, major, minor plotter.XYs) {
	// fit parameters in cutout coordinates
	a := res.Params
	a[sp.ParamX] -= float64(origin.X)
	a[sp.ParamY] -= float64(origin.Y)

	var rmax float64
	data = make(plotter.XYs, 0, len(g.Pix))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			r := math.Hypot(float64(x)-a[sp.ParamX], float64(y)-a[sp.ParamY])
			rmax = math.Max(rmax, r)
			if v, ok := g.Value(x, y); ok {
				data = append(data, plotter.XY{X: r, Y: v - res.Background})
			}
		}
	}

	const steps = 200
	cos, sin := math.Cos(a[sp.ParamAngle]), math.Sin(a[sp.ParamAngle])
	major = make(plotter.XYs, 0, steps+1)
	minor = make(plotter.XYs, 0, steps+1)
	for i := 0; i <= steps; i++ {
		r := rmax * float64(i) / steps
		major = append(major, plotter.XY{X: r, Y: sp.GaussianValue(a, a[sp.ParamX]+r*cos, a[sp.ParamY]+r*sin)})
		minor = append(minor, plotter.XY{X: r, Y: sp.GaussianValue(a, a[sp.ParamX]-r*sin, a[sp.ParamY]+r*cos)})
	}
	if res.SigmaX < res.SigmaY {
		major, minor = minor, major
	}
	return data, major, minor
}

func writeProfile(g sp.PixelGrid, res *sp.FitResult, origin image.Point, path string) error {
	data, major, minor := profilePoints(g, res, origin)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("(%.1f, %.1f)  FWHM %.2f x %.2f px  %s", res.X, res.Y, res.FWHMX, res.FWHMY, res.Status)
	p.X.Label.Text = "Radius (px)"
	p.Y.Label.Text = "Signal above background"

	s, err := plotter.NewScatter(data)
	if err != nil {
		return fmt.Errorf("profile scatter: %w", err)
	}
	s.GlyphStyle.Color = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	s.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(s)
	p.Legend.Add("pixels", s)

	majorLine, err := plotter.NewLine(major)
	if err != nil {
		return fmt.Errorf("profile major axis: %w", err)
	}
	majorLine.Color = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	majorLine.Width = vg.Points(1)
	p.Add(majorLine)
	p.Legend.Add("model, major axis", majorLine)

	minorLine, err := plotter.NewLine(minor)
	if err != nil {
		return fmt.Errorf("profile minor axis: %w", err)
	}
	minorLine.Color = color.RGBA{R: 40, G: 80, B: 220, A: 255}
	minorLine.Width = vg.Points(1)
	p.Add(minorLine)
	p.Legend.Add("model, minor axis", minorLine)
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("saving profile %s: %w", path, err)
	}
	return nil
}
