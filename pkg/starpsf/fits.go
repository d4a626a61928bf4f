package starpsf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	fitsCard   = 80
	fitsBlock  = 2880
	arcsecRad  = 206.265 // arcsec per radian / 1000, for µm pixels and mm focal lengths
	fitsHeader = fitsBlock / fitsCard
)

// FitsHeader holds the keyword values of a FITS primary header.
type FitsHeader map[string]string

func (h FitsHeader) String(key string) string { return h[strings.ToUpper(key)] }

func (h FitsHeader) Float(key string) (float64, bool) {
	v, ok := h[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	d, err := strconv.ParseFloat(v, 64)
	return d, err == nil
}

func (h FitsHeader) Int(key string) (int, bool) {
	v, ok := h[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	return i, err == nil
}

// PixelScale derives the image scale in arcsec per pixel from XPIXSZ (µm)
// and FOCALLEN (mm).
func (h FitsHeader) PixelScale() (float64, bool) {
	pix, ok := h.Float("XPIXSZ")
	if !ok || pix <= 0 {
		return 0, false
	}
	focal, ok := h.Float("FOCALLEN")
	if !ok || focal <= 0 {
		return 0, false
	}
	return arcsecRad * pix / focal, true
}

// FitsImage is the primary image of a FITS file in physical units.
type FitsImage struct {
	Width  int
	Height int
	Pix    []float32
	Header FitsHeader
}

// Grid returns the image as a PixelGrid sharing its pixels.
func (im *FitsImage) Grid() (PixelGrid, error) {
	return NewPixelGrid(im.Pix, im.Width, im.Height)
}

// ReadFits reads the primary image of a FITS file.
func ReadFits(path string) (*FitsImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return DecodeFits(f)
}

// ReadFitsBytes decodes a FITS file held in memory.
func ReadFitsBytes(data []byte) (*FitsImage, error) {
	return DecodeFits(bytes.NewReader(data))
}

// DecodeFits reads a primary header and its 2D image. BSCALE and BZERO
// are applied, so unsigned 16-bit data comes out as 0..65535. Only the
// first plane of a cube is read.
func DecodeFits(r io.Reader) (*FitsImage, error) {
	header, err := readFitsHeader(r)
	if err != nil {
		return nil, err
	}
	bitpix, _ := header.Int("BITPIX")
	naxis, _ := header.Int("NAXIS")
	width, _ := header.Int("NAXIS1")
	height, _ := header.Int("NAXIS2")
	if naxis < 2 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid FITS: NAXIS=%d, NAXIS1=%d, NAXIS2=%d", naxis, width, height)
	}
	bscale, ok := header.Float("BSCALE")
	if !ok {
		bscale = 1
	}
	bzero, _ := header.Float("BZERO")

	size := bitpix / 8
	if size < 0 {
		size = -size
	}
	var decode func([]byte) float64
	switch bitpix {
	case 8:
		decode = func(b []byte) float64 { return float64(b[0]) }
	case 16:
		decode = func(b []byte) float64 { return float64(int16(binary.BigEndian.Uint16(b))) }
	case 32:
		decode = func(b []byte) float64 { return float64(int32(binary.BigEndian.Uint32(b))) }
	case -32:
		decode = func(b []byte) float64 { return float64(math.Float32frombits(binary.BigEndian.Uint32(b))) }
	case -64:
		decode = func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) }
	default:
		return nil, fmt.Errorf("unsupported BITPIX: %d", bitpix)
	}

	n := width * height
	raw := make([]byte, n*size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading %d-bit pixel data: %w", bitpix, err)
	}
	pix := make([]float32, n)
	for i := range pix {
		pix[i] = float32(decode(raw[i*size:])*bscale + bzero)
	}
	return &FitsImage{Width: width, Height: height, Pix: pix, Header: header}, nil
}

func readFitsHeader(r io.Reader) (FitsHeader, error) {
	header := FitsHeader{}
	card := make([]byte, fitsCard)
	for block := 0; ; block++ {
		for i := 0; i < fitsHeader; i++ {
			if _, err := io.ReadFull(r, card); err != nil {
				return nil, fmt.Errorf("reading FITS header record: %w", err)
			}
			keyword := strings.TrimSpace(string(card[:8]))
			if block == 0 && i == 0 && keyword != "SIMPLE" {
				return nil, fmt.Errorf("not a FITS file: first keyword %q", keyword)
			}
			if keyword == "END" {
				// The rest of the block is padding.
				rest := (fitsHeader - 1 - i) * fitsCard
				if _, err := io.CopyN(io.Discard, r, int64(rest)); err != nil {
					return nil, fmt.Errorf("reading FITS header padding: %w", err)
				}
				return header, nil
			}
			if card[8] == '=' && card[9] == ' ' {
				if v := parseFitsValue(string(card[10:])); v != "" {
					header[keyword] = v
				}
			}
		}
	}
}

func parseFitsValue(field string) string {
	field = strings.TrimSpace(field)
	if strings.HasPrefix(field, "'") {
		// Strings end at the first single quote; a doubled quote is a
		// literal one.
		var b strings.Builder
		for i := 1; i < len(field); i++ {
			if field[i] == '\'' {
				if i+1 < len(field) && field[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				break
			}
			b.WriteByte(field[i])
		}
		return strings.TrimRight(b.String(), " ")
	}
	if i := strings.IndexByte(field, '/'); i >= 0 {
		field = strings.TrimSpace(field[:i])
	}
	switch field {
	case "T":
		return "true"
	case "F":
		return "false"
	}
	return field
}
