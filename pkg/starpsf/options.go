package starpsf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Options controls a measurement.
type Options struct {
	ClipKappa     float64 `yaml:"clip_kappa"`     // background rejection threshold in σ
	ClipPasses    int     `yaml:"clip_passes"`    // kappa-sigma passes
	SignalKappa   float64 `yaml:"signal_kappa"`   // detection threshold in background σ
	BoxSigmas     float64 `yaml:"box_sigmas"`     // fit window half-size in moment σ
	MaxIterations int     `yaml:"max_iterations"` // LM iteration limit
	Tolerance     float64 `yaml:"tolerance"`      // relative χ² change for convergence
	StallLimit    int     `yaml:"stall_limit"`    // iterations without a λ decrease before stopping

	PixelScale     float64 `yaml:"pixel_scale"`      // arcsec per pixel, 0 derives it from FITS headers
	CutoutSize     int     `yaml:"cutout_size"`      // side of the window cut around each position
	HotPixelFilter bool    `yaml:"hot_pixel_filter"` // 3×3 median filter on cutouts
	Workers        int     `yaml:"workers"`
	Verbose        bool    `yaml:"verbose"`
}

// NewOptions returns the default options.
func NewOptions() *Options {
	return &Options{
		ClipKappa:     5,
		ClipPasses:    5,
		SignalKappa:   5,
		BoxSigmas:     4,
		MaxIterations: 64,
		Tolerance:     1e-5,
		StallLimit:    10,
		PixelScale:    1,
		CutoutSize:    32,
		Workers:       4,
	}
}

// Validate reports the first out-of-range option.
func (o *Options) Validate() error {
	switch {
	case o.ClipKappa <= 0:
		return fmt.Errorf("clip_kappa must be positive, got %g", o.ClipKappa)
	case o.ClipPasses < 1:
		return fmt.Errorf("clip_passes must be at least 1, got %d", o.ClipPasses)
	case o.SignalKappa <= 0:
		return fmt.Errorf("signal_kappa must be positive, got %g", o.SignalKappa)
	case o.BoxSigmas <= 0:
		return fmt.Errorf("box_sigmas must be positive, got %g", o.BoxSigmas)
	case o.MaxIterations < 1:
		return fmt.Errorf("max_iterations must be at least 1, got %d", o.MaxIterations)
	case o.Tolerance <= 0:
		return fmt.Errorf("tolerance must be positive, got %g", o.Tolerance)
	case o.StallLimit < 1:
		return fmt.Errorf("stall_limit must be at least 1, got %d", o.StallLimit)
	case o.PixelScale < 0:
		return fmt.Errorf("pixel_scale must not be negative, got %g", o.PixelScale)
	case o.CutoutSize < 8:
		return fmt.Errorf("cutout_size must be at least 8, got %d", o.CutoutSize)
	case o.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", o.Workers)
	}
	return nil
}

func newOptionsFromYaml(b []byte) (*Options, error) {
	o := NewOptions()
	if err := yaml.UnmarshalStrict(b, o); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// LoadOptions reads a YAML options file. Keys missing from the file keep
// their defaults.
func LoadOptions(filename string) (*Options, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return newOptionsFromYaml(b)
}

// AsYaml renders the options as YAML.
func (o Options) AsYaml() string {
	b, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Sprintf("# options: %v\n", err)
	}
	return string(b)
}
