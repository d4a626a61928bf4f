package starpsf

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaultsValid(t *testing.T) {
	require.NoError(t, NewOptions().Validate())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"clip kappa", func(o *Options) { o.ClipKappa = 0 }},
		{"clip passes", func(o *Options) { o.ClipPasses = 0 }},
		{"signal kappa", func(o *Options) { o.SignalKappa = -1 }},
		{"box", func(o *Options) { o.BoxSigmas = 0 }},
		{"iterations", func(o *Options) { o.MaxIterations = 0 }},
		{"tolerance", func(o *Options) { o.Tolerance = 0 }},
		{"stall", func(o *Options) { o.StallLimit = 0 }},
		{"pixel scale", func(o *Options) { o.PixelScale = -0.5 }},
		{"cutout", func(o *Options) { o.CutoutSize = 4 }},
		{"workers", func(o *Options) { o.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.modify(o)
			assert.Error(t, o.Validate())
		})
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "psf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_iterations: 20\npixel_scale: 1.25\nverbose: true\n"), 0o644))

	o, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 20, o.MaxIterations)
	assert.Equal(t, 1.25, o.PixelScale)
	assert.True(t, o.Verbose)
	assert.Equal(t, 5.0, o.ClipKappa, "unset keys keep defaults")
}

func TestLoadOptionsErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadOptions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("kappa: 3\n"), 0o644))
	_, err = LoadOptions(unknown)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("tolerance: -1\n"), 0o644))
	_, err = LoadOptions(invalid)
	assert.ErrorContains(t, err, "tolerance")
}

func TestOptionsYamlRoundTrip(t *testing.T) {
	o := NewOptions()
	o.BoxSigmas = 5
	o.Workers = 2
	back, err := newOptionsFromYaml([]byte(o.AsYaml()))
	require.NoError(t, err)
	assert.Equal(t, o, back)
}

func TestLogger(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	g := flatGrid(t, 16, 16, 400)

	quiet := NewOptions()
	_, err := EstimateBackground(g, quiet)
	require.NoError(t, err)
	assert.Empty(t, lines)

	verbose := NewOptions()
	verbose.Verbose = true
	_, err = EstimateBackground(g, verbose)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "background: mean=400.0000")
}
