//go:build purego || js

package starpsf

import (
	"image"
	"slices"
)

// Mat is a pure Go 2D float32 matrix.
type Mat struct {
	data    []float32
	rows    int
	cols    int
	stride  int // elements per row of the backing array
	dataOff int // offset into data for regions
	owned   bool
}

func NewMatWithSize(rows, cols int) Mat {
	return Mat{
		data:   make([]float32, rows*cols),
		rows:   rows,
		cols:   cols,
		stride: cols,
		owned:  true,
	}
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }
func (m Mat) Empty() bool { return m.data == nil || m.rows == 0 || m.cols == 0 }

func (m Mat) Clone() Mat {
	c := NewMatWithSize(m.rows, m.cols)
	for r := 0; r < m.rows; r++ {
		off := m.dataOff + r*m.stride
		copy(c.data[r*m.cols:], m.data[off:off+m.cols])
	}
	return c
}

func (m *Mat) Close() {
	if m.owned {
		m.data = nil
	}
	m.rows = 0
	m.cols = 0
}

// Region returns a view of r sharing the backing array.
func (m Mat) Region(r image.Rectangle) Mat {
	return Mat{
		data:    m.data,
		rows:    r.Dy(),
		cols:    r.Dx(),
		stride:  m.stride,
		dataOff: m.dataOff + r.Min.Y*m.stride + r.Min.X,
	}
}

// DataFloat32 returns the backing slice. Only valid for continuous mats,
// not for regions that have not been cloned.
func (m Mat) DataFloat32() []float32 {
	return m.data[m.dataOff:]
}

// medianBlur replaces every pixel by the median of its ksize×ksize
// neighbourhood, replicating the border.
func medianBlur(src Mat, dst *Mat, ksize int) {
	rows, cols := src.rows, src.cols
	half := ksize / 2
	in := src.Clone().data
	out := make([]float32, rows*cols)
	window := make([]float32, 0, ksize*ksize)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			window = window[:0]
			for dr := -half; dr <= half; dr++ {
				row := clampIndex(r+dr, rows) * cols
				for dc := -half; dc <= half; dc++ {
					window = append(window, in[row+clampIndex(c+dc, cols)])
				}
			}
			slices.Sort(window)
			out[r*cols+c] = window[len(window)/2]
		}
	}
	if dst.rows != rows || dst.cols != cols || dst.data == nil {
		*dst = NewMatWithSize(rows, cols)
	}
	for r := 0; r < rows; r++ {
		copy(dst.data[dst.dataOff+r*dst.stride:], out[r*cols:(r+1)*cols])
	}
}
