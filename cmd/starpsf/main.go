package main

import (
	"bufio"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	sp "starpsf/pkg/starpsf"
)

var (
	fConfig     string
	fPositions  string
	fSize       int
	fScale      float64
	fWorkers    int
	fMaxIter    int
	fHotPixels  bool
	fBayer      bool
	fOverlayDir string
	fFieldImage string
	fProfileDir string
	fVerbose    bool
	fDumpConfig bool
)

func init() {
	flag.StringVar(&fConfig, "config", "", "YAML options file")
	flag.StringVar(&fPositions, "positions", "", "file with one 'x y' star position per line")
	flag.IntVar(&fSize, "size", 0, "cutout size in pixels (overrides config)")
	flag.Float64Var(&fScale, "scale", -1, "pixel scale in arcsec/px, 0 reads it from the FITS header (overrides config)")
	flag.IntVar(&fWorkers, "workers", 0, "parallel fits (overrides config)")
	flag.IntVar(&fMaxIter, "maxiter", 0, "LM iteration limit (overrides config)")
	flag.BoolVar(&fHotPixels, "hotpixels", false, "median filter cutouts before fitting")
	flag.BoolVar(&fBayer, "bayer", false, "treat the image as a raw RGGB mosaic")
	flag.StringVar(&fOverlayDir, "overlays", "", "directory for per-star JPEG overlays")
	flag.StringVar(&fFieldImage, "field", "", "write the 3x3 field map to this JPEG")
	flag.StringVar(&fProfileDir, "profiles", "", "directory for per-star radial profile plots")
	flag.BoolVar(&fVerbose, "v", false, "log fit diagnostics")
	flag.BoolVar(&fDumpConfig, "dumpconfig", false, "print the effective options and exit")
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: starpsf [flags] <image> [x,y ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadOptions() (*sp.Options, error) {
	opts := sp.NewOptions()
	if fConfig != "" {
		var err error
		if opts, err = sp.LoadOptions(fConfig); err != nil {
			return nil, fmt.Errorf("loading %s: %w", fConfig, err)
		}
	}
	if fSize > 0 {
		opts.CutoutSize = fSize
	}
	if fScale >= 0 {
		opts.PixelScale = fScale
	}
	if fWorkers > 0 {
		opts.Workers = fWorkers
	}
	if fMaxIter > 0 {
		opts.MaxIterations = fMaxIter
	}
	opts.HotPixelFilter = opts.HotPixelFilter || fHotPixels
	opts.Verbose = opts.Verbose || fVerbose
	return opts, opts.Validate()
}

// star is one requested position and its outcome.
type star struct {
	x, y float64
	res  *sp.FitResult
	err  error
}

func run(args []string) error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}
	if fDumpConfig {
		fmt.Print(opts.AsYaml())
		return nil
	}
	if len(args) < 1 {
		flag.Usage()
		return fmt.Errorf("no input image")
	}

	positions, err := parsePositions(args[1:])
	if err != nil {
		return err
	}
	if fPositions != "" {
		more, err := readPositions(fPositions)
		if err != nil {
			return err
		}
		positions = append(positions, more...)
	}
	if len(positions) == 0 {
		return fmt.Errorf("no star positions given")
	}

	fmt.Printf("Loading: %s\n", args[0])
	img, w, h, err := loadImage(args[0], opts)
	if err != nil {
		return err
	}
	defer img.Close()

	start := time.Now()
	stars := measureAll(img, positions, opts)
	elapsed := time.Since(start)

	results := make([]*sp.FitResult, len(stars))
	fmt.Println()
	fmt.Printf("=== PSF Fits (%d stars, %.2fs) ===\n", len(stars), elapsed.Seconds())
	for i, s := range stars {
		results[i] = s.res
		switch {
		case s.res == nil:
			results[i] = &sp.FitResult{Status: sp.StatusOf(s.err)}
			fmt.Printf("  (%7.1f,%7.1f)  %s: %v\n", s.x, s.y, results[i].Status, s.err)
		default:
			r := s.res
			fmt.Printf("  (%7.2f,%7.2f)  FWHM %5.2f x %5.2f px  %5.1f deg  %6.2f\"  peak %8.1f  bg %8.1f  it %2d  %s\n",
				r.X, r.Y, r.FWHMX, r.FWHMY, r.AngleDeg, r.FWHMArcsec, r.Peak, r.Background, r.Iterations, r.Status)
		}
	}

	sum := sp.Summarize(results)
	fmt.Println()
	fmt.Printf("  Converged:       %d / %d\n", sum.Converged, sum.Count)
	for st, n := range sum.Failed {
		fmt.Printf("  %-16s %d\n", st.String()+":", n)
	}
	if sum.Converged > 0 {
		fmt.Printf("  FWHM (median):   %.3f +/- %.3f px\n", sum.FWHM, sum.FWHMMAD)
		fmt.Printf("  FWHM (arcsec):   %.3f +/- %.3f\"\n", sum.FWHMArcsec, sum.FWHMArcsecMAD)
		fmt.Printf("  Eccentricity:    %.3f +/- %.3f\n", sum.Eccentricity, sum.EccentricityMAD)
	}
	fmt.Println("==============================")

	if field := sp.AnalyzeField(results, w, h); field != nil {
		printField(field)
		if fFieldImage != "" {
			if err := writeFieldImage(field, w, h, fFieldImage); err != nil {
				return err
			}
		}
	}

	if fOverlayDir != "" || fProfileDir != "" {
		if err := writeStarFiles(img, stars, opts); err != nil {
			return err
		}
	}
	return nil
}

// measureAll fits every position with opts.Workers goroutines.
func measureAll(img sp.Mat, positions [][2]float64, opts *sp.Options) []star {
	stars := make([]star, len(positions))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				s := &stars[j]
				s.res, s.err = sp.MeasureAt(img, s.x, s.y, opts)
			}
		}()
	}
	for i, p := range positions {
		stars[i].x, stars[i].y = p[0], p[1]
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return stars
}

func printField(field *sp.FieldAnalysis) {
	fmt.Println()
	fmt.Println("=== Field Analysis (3x3) ===")
	for i, z := range field.Zones {
		fmt.Printf("  %-8s FWHM=%.3f  ecc=%.3f  n=%d\n", z.Label, z.MedianFWHM, z.Eccentricity, z.StarCount)
		if (i+1)%3 == 0 && i < 8 {
			fmt.Println("  ---")
		}
	}
	fmt.Printf("\n  Tilt:     %.1f%% (best: %s, worst: %s)\n", field.TiltPct, field.BestCorner, field.WorstCorner)
	fmt.Printf("  Off-axis: %.1f%%\n", field.OffAxisPct)
	if !field.Reliable {
		fmt.Println("  [LOW STAR COUNT - UNRELIABLE]")
	}
	fmt.Println("==============================")
}

func writeFieldImage(field *sp.FieldAnalysis, w, h int, path string) error {
	img, err := sp.RenderField(field, w, h)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create field map: %w", err)
	}
	defer f.Close()
	return sp.EncodeJPEG(f, img)
}

// writeStarFiles renders an overlay and a radial profile for every star
// that produced a result.
func writeStarFiles(img sp.Mat, stars []star, opts *sp.Options) error {
	for _, dir := range []string{fOverlayDir, fProfileDir} {
		if dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
	}
	for i, s := range stars {
		g, origin, err := sp.Cutout(img, s.x, s.y, opts.CutoutSize, opts.HotPixelFilter)
		if err != nil {
			continue
		}
		name := fmt.Sprintf("star_%03d_%.0f_%.0f", i, s.x, s.y)
		if fOverlayDir != "" {
			if err := writeOverlay(g, s.res, origin, filepath.Join(fOverlayDir, name+".jpg")); err != nil {
				return err
			}
		}
		if fProfileDir != "" && s.res != nil {
			if err := writeProfile(g, s.res, origin, filepath.Join(fProfileDir, name+".png")); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeOverlay(g sp.PixelGrid, res *sp.FitResult, origin image.Point, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create overlay: %w", err)
	}
	defer f.Close()
	return sp.EncodeJPEG(f, sp.RenderFit(g, res, origin, 8))
}

// parsePositions parses "x,y" arguments.
func parsePositions(args []string) ([][2]float64, error) {
	var out [][2]float64
	for _, a := range args {
		xs, ys, ok := strings.Cut(a, ",")
		if !ok {
			return nil, fmt.Errorf("position %q: want x,y", a)
		}
		p, err := parsePoint(xs, ys)
		if err != nil {
			return nil, fmt.Errorf("position %q: %w", a, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// readPositions reads whitespace or comma separated "x y" lines. Blank
// lines and lines starting with # are ignored.
func readPositions(path string) ([][2]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out [][2]float64
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: want x y", path, line)
		}
		p, err := parsePoint(fields[0], fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, p)
	}
	return out, sc.Err()
}

func parsePoint(xs, ys string) ([2]float64, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return [2]float64{}, err
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return [2]float64{}, err
	}
	return [2]float64{x, y}, nil
}

// loadImage reads a FITS file or, through the build's image backend, any
// other supported format. A FITS pixel scale is used when opts asks for it.
func loadImage(path string, opts *sp.Options) (sp.Mat, int, int, error) {
	lower := strings.ToLower(path)
	if !strings.HasSuffix(lower, ".fits") && !strings.HasSuffix(lower, ".fit") && !strings.HasSuffix(lower, ".fts") {
		if opts.PixelScale == 0 {
			opts.PixelScale = 1
		}
		return loadNonFitsImage(path)
	}

	im, err := sp.ReadFits(path)
	if err != nil {
		return sp.Mat{}, 0, 0, fmt.Errorf("reading FITS: %w", err)
	}
	fmt.Printf("FITS loaded: %dx%d\n", im.Width, im.Height)
	if opts.PixelScale == 0 {
		scale, ok := im.Header.PixelScale()
		if !ok {
			log.Printf("no XPIXSZ/FOCALLEN in %s, reporting FWHM in pixels", path)
			scale = 1
		}
		opts.PixelScale = scale
	}

	bayer := fBayer || im.Header.String("BAYERPAT") == "RGGB"
	var m sp.Mat
	if bayer {
		m, err = sp.DebayerToMat(im.Pix, im.Width, im.Height)
	} else {
		m, err = sp.NewMatFromPixels(im.Pix, im.Width, im.Height)
	}
	return m, im.Width, im.Height, err
}
