package starpsf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeFits builds a minimal FITS file. cards are extra header cards.
func encodeFits(t *testing.T, bitpix, width, height int, cards []string, pix func(i int) []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	card := func(s string) { fmt.Fprintf(&buf, "%-80s", s) }
	card(fmt.Sprintf("%-8s= %20s", "SIMPLE", "T"))
	card(fmt.Sprintf("%-8s= %20d", "BITPIX", bitpix))
	card(fmt.Sprintf("%-8s= %20d", "NAXIS", 2))
	card(fmt.Sprintf("%-8s= %20d", "NAXIS1", width))
	card(fmt.Sprintf("%-8s= %20d", "NAXIS2", height))
	for _, c := range cards {
		card(c)
	}
	card("END")
	for buf.Len()%fitsBlock != 0 {
		buf.WriteByte(' ')
	}
	for i := 0; i < width*height; i++ {
		buf.Write(pix(i))
	}
	for buf.Len()%fitsBlock != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func TestDecodeFitsUnsigned16(t *testing.T) {
	data := encodeFits(t, 16, 3, 2, []string{
		"BZERO   =                32768",
		"BSCALE  =                    1",
		"OBJECT  = 'M 13    '           / target",
		"XPIXSZ  =                 3.76",
		"FOCALLEN=                  400",
	}, func(i int) []byte {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(int16(i*1000-32768)))
		return b
	})
	im, err := ReadFitsBytes(data)
	require.NoError(t, err)
	assert.Equal(t, 3, im.Width)
	assert.Equal(t, 2, im.Height)
	assert.Equal(t, []float32{0, 1000, 2000, 3000, 4000, 5000}, im.Pix)
	assert.Equal(t, "M 13", im.Header.String("object"))

	scale, ok := im.Header.PixelScale()
	require.True(t, ok)
	assert.InDelta(t, 206.265*3.76/400, scale, 1e-12)

	g, err := im.Grid()
	require.NoError(t, err)
	assert.Equal(t, float32(5000), g.At(2, 1))
}

func TestDecodeFitsFloat(t *testing.T) {
	values := []float64{-1.5, 0, 2.25, 1e6}
	for _, bitpix := range []int{-32, -64} {
		data := encodeFits(t, bitpix, 2, 2, nil, func(i int) []byte {
			if bitpix == -32 {
				b := make([]byte, 4)
				binary.BigEndian.PutUint32(b, math.Float32bits(float32(values[i])))
				return b
			}
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, math.Float64bits(values[i]))
			return b
		})
		im, err := ReadFitsBytes(data)
		require.NoError(t, err, "BITPIX %d", bitpix)
		assert.Equal(t, []float32{-1.5, 0, 2.25, 1e6}, im.Pix)
		_, ok := im.Header.PixelScale()
		assert.False(t, ok)
	}
}

func TestReadFitsFile(t *testing.T) {
	data := encodeFits(t, 8, 2, 2, []string{"BSCALE  =                  0.5"}, func(i int) []byte { return []byte{byte(10 * i)} })
	path := filepath.Join(t.TempDir(), "frame.fits")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	im, err := ReadFits(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 5, 10, 15}, im.Pix)
}

func TestDecodeFitsErrors(t *testing.T) {
	_, err := ReadFitsBytes([]byte("short"))
	assert.Error(t, err)

	notFits := bytes.Repeat([]byte(" "), fitsBlock)
	copy(notFits, "XTENSION= 'IMAGE   '")
	_, err = ReadFitsBytes(notFits)
	assert.ErrorContains(t, err, "not a FITS file")

	data := encodeFits(t, 24, 2, 2, nil, func(int) []byte { return []byte{0, 0, 0} })
	_, err = ReadFitsBytes(data)
	assert.ErrorContains(t, err, "BITPIX")

	truncated := encodeFits(t, 16, 8, 8, nil, func(int) []byte { return []byte{0, 1} })
	_, err = ReadFitsBytes(truncated[:fitsBlock+10])
	assert.Error(t, err)

	_, err = ReadFits(filepath.Join(t.TempDir(), "missing.fits"))
	assert.Error(t, err)
}

func TestParseFitsValue(t *testing.T) {
	tests := map[string]string{
		"                   42 / answer": "42",
		"'O''Neil '":                     "O'Neil",
		"'Ha 7nm  '          / filter":   "Ha 7nm",
		"                    T":          "true",
		"                    F":          "false",
		"":                               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseFitsValue(in), "%q", in)
	}
}
