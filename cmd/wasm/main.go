//go:build js && wasm

package main

import (
	"image"
	"math"
	"sync"
	"syscall/js"

	sp "starpsf/pkg/starpsf"
)

// State of the last measurePSF call, used by the render functions.
var (
	lastField   *sp.FieldAnalysis
	lastResults []*sp.FitResult
	lastImage   sp.Mat
	lastOpts    *sp.Options
	lastWidth   int
	lastHeight  int
)

func main() {
	js.Global().Set("measurePSF", js.FuncOf(measurePSF))
	js.Global().Set("renderField", js.FuncOf(renderField))
	js.Global().Set("renderStar", js.FuncOf(renderStar))
	select {}
}

// measurePSF(fileBytes, positions, options) fits a Gaussian PSF at each
// [x, y] of positions in a FITS image.
func measurePSF(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("usage: measurePSF(fileBytes, positions, options)")
	}

	jsBytes := args[0]
	fileBytes := make([]byte, jsBytes.Get("length").Int())
	js.CopyBytesToGo(fileBytes, jsBytes)

	jsPos := args[1]
	positions := make([][2]float64, jsPos.Length())
	for i := range positions {
		p := jsPos.Index(i)
		positions[i] = [2]float64{p.Index(0).Float(), p.Index(1).Float()}
	}

	opts := sp.NewOptions()
	debayer := false
	if len(args) >= 3 && args[2].Type() == js.TypeObject {
		o := args[2]
		if v := o.Get("debayer"); v.Type() == js.TypeBoolean {
			debayer = v.Bool()
		}
		if v := o.Get("hotpixels"); v.Type() == js.TypeBoolean {
			opts.HotPixelFilter = v.Bool()
		}
		if v := o.Get("size"); v.Type() == js.TypeNumber {
			opts.CutoutSize = v.Int()
		}
		if v := o.Get("pixelScale"); v.Type() == js.TypeNumber {
			opts.PixelScale = v.Float()
		}
	}
	if err := opts.Validate(); err != nil {
		return errorResult("options: " + err.Error())
	}

	im, err := sp.ReadFitsBytes(fileBytes)
	if err != nil {
		return errorResult("FITS parse error: " + err.Error())
	}
	if opts.PixelScale == 0 {
		if scale, ok := im.Header.PixelScale(); ok {
			opts.PixelScale = scale
		} else {
			opts.PixelScale = 1
		}
	}

	var m sp.Mat
	if debayer {
		m, err = sp.DebayerToMat(im.Pix, im.Width, im.Height)
	} else {
		m, err = sp.NewMatFromPixels(im.Pix, im.Width, im.Height)
	}
	if err != nil {
		return errorResult(err.Error())
	}

	results := make([]*sp.FitResult, len(positions))
	errs := make([]error, len(positions))
	var wg sync.WaitGroup
	for i, p := range positions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = sp.MeasureAt(m, p[0], p[1], opts)
			if results[i] == nil {
				results[i] = &sp.FitResult{Status: sp.StatusOf(errs[i]), X: p[0], Y: p[1]}
			}
		}()
	}
	wg.Wait()

	lastImage.Close()
	lastImage = m
	lastResults = results
	lastOpts = opts
	lastWidth, lastHeight = im.Width, im.Height
	lastField = sp.AnalyzeField(results, im.Width, im.Height)

	sum := sp.Summarize(results)
	jsResult := map[string]interface{}{
		"width":              im.Width,
		"height":             im.Height,
		"pixelScale":         opts.PixelScale,
		"converged":          sum.Converged,
		"medianFWHM":         sum.FWHM,
		"medianFWHMArcsec":   sum.FWHMArcsec,
		"medianEccentricity": sum.Eccentricity,
	}

	jsStars := make([]interface{}, len(results))
	for i, r := range results {
		star := map[string]interface{}{
			"status":       r.Status.String(),
			"ok":           r.OK,
			"x":            r.X,
			"y":            r.Y,
			"fwhmX":        r.FWHMX,
			"fwhmY":        r.FWHMY,
			"angle":        r.AngleDeg,
			"peak":         r.Peak,
			"background":   r.Background,
			"fwhm":         r.FWHM,
			"fwhmArcsec":   r.FWHMArcsec,
			"eccentricity": r.Eccentricity,
			"iterations":   r.Iterations,
		}
		if errs[i] != nil {
			star["error"] = errs[i].Error()
		}
		if r.FWHMX > 0 && r.FWHMY > 0 {
			star["roundness"] = math.Min(r.FWHMX, r.FWHMY) / math.Max(r.FWHMX, r.FWHMY)
		}
		jsStars[i] = star
	}
	jsResult["stars"] = jsStars

	if field := lastField; field != nil {
		jsZones := make([]interface{}, len(field.Zones))
		for i, z := range field.Zones {
			jsZones[i] = map[string]interface{}{
				"label":        z.Label,
				"medianFWHM":   z.MedianFWHM,
				"eccentricity": z.Eccentricity,
				"starCount":    z.StarCount,
			}
		}
		jsResult["field"] = map[string]interface{}{
			"zones":       jsZones,
			"tiltPct":     field.TiltPct,
			"offAxisPct":  field.OffAxisPct,
			"bestCorner":  field.BestCorner,
			"worstCorner": field.WorstCorner,
			"reliable":    field.Reliable,
		}
	}

	return js.ValueOf(jsResult)
}

// renderField returns the 3x3 field map of the last measurement as JPEG.
func renderField(this js.Value, args []js.Value) interface{} {
	if lastField == nil {
		return js.Null()
	}
	img, err := sp.RenderField(lastField, lastWidth, lastHeight)
	if err != nil {
		return js.Null()
	}
	return jpegArray(img)
}

// renderStar(index, zoom) returns a JPEG of one star's cutout with its
// fitted FWHM ellipse.
func renderStar(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || lastResults == nil {
		return js.Null()
	}
	i := args[0].Int()
	if i < 0 || i >= len(lastResults) {
		return js.Null()
	}
	zoom := 8
	if len(args) >= 2 && args[1].Type() == js.TypeNumber {
		zoom = max(args[1].Int(), 1)
	}
	r := lastResults[i]
	g, origin, err := sp.Cutout(lastImage, r.X, r.Y, lastOpts.CutoutSize, lastOpts.HotPixelFilter)
	if err != nil {
		return js.Null()
	}
	if r.SigmaX == 0 {
		// nothing was fitted, stretch on the pixel range
		r = nil
	}
	return jpegArray(sp.RenderFit(g, r, origin, zoom))
}

func jpegArray(img image.Image) interface{} {
	jpegBytes, err := sp.JPEGBytes(img)
	if err != nil {
		return js.Null()
	}
	uint8Array := js.Global().Get("Uint8Array").New(len(jpegBytes))
	js.CopyBytesToJS(uint8Array, jpegBytes)
	return uint8Array
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}
