package starpsf

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	fieldEdgeFraction    = 0.25
	minStarsPerZone      = 3
	minTotalStarsForTilt = 20
	madToSigma           = 1.4826
)

// ZonePosition identifies a zone in the 3x3 field grid.
type ZonePosition int

const (
	ZoneTopLeft ZonePosition = iota
	ZoneTop
	ZoneTopRight
	ZoneLeft
	ZoneCenter
	ZoneRight
	ZoneBottomLeft
	ZoneBottom
	ZoneBottomRight
	numZones
)

var zoneLabels = [numZones]string{"TL", "T", "TR", "L", "Center", "R", "BL", "B", "BR"}

var cornerPositions = []ZonePosition{ZoneTopLeft, ZoneTopRight, ZoneBottomLeft, ZoneBottomRight}

func (z ZonePosition) String() string {
	if z < 0 || z >= numZones {
		return "?"
	}
	return zoneLabels[z]
}

// ZoneData holds per-zone statistics.
type ZoneData struct {
	Label        string
	MedianFWHM   float64
	Eccentricity float64
	StarCount    int
}

// FieldAnalysis compares the image quality of the corners and edges of a
// frame with its centre.
type FieldAnalysis struct {
	Zones       [numZones]ZoneData
	TiltPct     float64
	OffAxisPct  float64
	BestCorner  string
	WorstCorner string
	Reliable    bool
}

// AnalyzeField buckets successful fits into a 3x3 grid over a width×height
// frame and derives tilt and off-axis degradation from the zone median FWHM.
func AnalyzeField(results []*FitResult, width, height int) *FieldAnalysis {
	var zoneResults [numZones][]*FitResult
	total := 0
	for _, r := range results {
		if r == nil || !r.OK {
			continue
		}
		pos := classifyZone(r.X/float64(width), r.Y/float64(height))
		zoneResults[pos] = append(zoneResults[pos], r)
		total++
	}
	if total == 0 {
		return nil
	}

	field := &FieldAnalysis{}
	for pos := range zoneResults {
		field.Zones[pos] = zoneData(ZonePosition(pos), zoneResults[pos])
	}
	center := field.Zones[ZoneCenter].MedianFWHM
	if center <= 0 {
		return field
	}

	best, worst := ZonePosition(-1), ZonePosition(-1)
	validCorners := 0
	for _, pos := range cornerPositions {
		z := field.Zones[pos]
		if z.StarCount < minStarsPerZone {
			continue
		}
		validCorners++
		if best < 0 || z.MedianFWHM < field.Zones[best].MedianFWHM {
			best = pos
		}
		if worst < 0 || z.MedianFWHM > field.Zones[worst].MedianFWHM {
			worst = pos
		}
	}
	if validCorners >= 2 {
		field.TiltPct = (field.Zones[worst].MedianFWHM - field.Zones[best].MedianFWHM) / center * 100
		field.BestCorner = best.String()
		field.WorstCorner = worst.String()
	}

	var offAxis []float64
	for pos, z := range field.Zones {
		if ZonePosition(pos) != ZoneCenter && z.StarCount >= minStarsPerZone {
			offAxis = append(offAxis, z.MedianFWHM)
		}
	}
	if len(offAxis) > 0 {
		field.OffAxisPct = (stat.Mean(offAxis, nil) - center) / center * 100
	}

	field.Reliable = total >= minTotalStarsForTilt && validCorners == len(cornerPositions) &&
		field.Zones[ZoneCenter].StarCount >= minStarsPerZone
	return field
}

// classifyZone maps a position given as fractions of the frame size.
func classifyZone(fx, fy float64) ZonePosition {
	band := func(f float64) int {
		switch {
		case f < fieldEdgeFraction:
			return 0
		case f < 1-fieldEdgeFraction:
			return 1
		default:
			return 2
		}
	}
	return ZonePosition(3*band(fy) + band(fx))
}

func zoneData(pos ZonePosition, results []*FitResult) ZoneData {
	zd := ZoneData{Label: pos.String(), StarCount: len(results)}
	if len(results) == 0 {
		return zd
	}
	fwhm := make([]float64, len(results))
	ecc := make([]float64, len(results))
	for i, r := range results {
		fwhm[i] = r.FWHM
		ecc[i] = r.Eccentricity
	}
	zd.MedianFWHM, _ = MedianMAD(fwhm)
	zd.Eccentricity, _ = MedianMAD(ecc)
	return zd
}

// MedianMAD returns the median of values and the median absolute
// deviation scaled to a Gaussian σ. Both are NaN for no values.
func MedianMAD(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	median := medianSorted(sorted)

	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - median)
	}
	slices.Sort(dev)
	return median, madToSigma * medianSorted(dev)
}

// medianSorted returns the middle element of sorted x, or the mean of the
// two middle elements for an even length.
func medianSorted(x []float64) float64 {
	n := len(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return (x[n/2-1] + x[n/2]) / 2
}

// Summary aggregates a batch of measurements.
type Summary struct {
	Count           int
	Converged       int
	Failed          map[Status]int
	FWHM            float64 // median, px
	FWHMMAD         float64
	FWHMArcsec      float64
	FWHMArcsecMAD   float64
	Eccentricity    float64
	EccentricityMAD float64
	Background      float64
}

// Summarize computes median and MAD statistics over the converged results
// and counts the others by status. A nil entry counts as StatusFailed.
func Summarize(results []*FitResult) Summary {
	s := Summary{Count: len(results), Failed: map[Status]int{}}
	var fwhm, arcsec, ecc, bg []float64
	for _, r := range results {
		switch {
		case r == nil:
			s.Failed[StatusFailed]++
			continue
		case !r.OK:
			s.Failed[r.Status]++
			continue
		}
		s.Converged++
		fwhm = append(fwhm, r.FWHM)
		arcsec = append(arcsec, r.FWHMArcsec)
		ecc = append(ecc, r.Eccentricity)
		bg = append(bg, r.Background)
	}
	if s.Converged == 0 {
		return s
	}
	s.FWHM, s.FWHMMAD = MedianMAD(fwhm)
	s.FWHMArcsec, s.FWHMArcsecMAD = MedianMAD(arcsec)
	s.Eccentricity, s.EccentricityMAD = MedianMAD(ecc)
	s.Background, _ = MedianMAD(bg)
	return s
}
