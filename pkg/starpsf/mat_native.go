//go:build !purego && !js

package starpsf

import (
	"image"

	"gocv.io/x/gocv"
)

// Mat wraps a single-channel CV_32F gocv.Mat for the native OpenCV backend.
type Mat struct {
	m gocv.Mat
}

func NewMatWithSize(rows, cols int) Mat {
	return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)}
}

func (mat Mat) Rows() int   { return mat.m.Rows() }
func (mat Mat) Cols() int   { return mat.m.Cols() }
func (mat Mat) Empty() bool { return mat.m.Empty() }
func (mat Mat) Clone() Mat  { return Mat{m: mat.m.Clone()} }
func (mat *Mat) Close()     { mat.m.Close() }

// Region returns a view of r. The view must be closed.
func (mat Mat) Region(r image.Rectangle) Mat { return Mat{m: mat.m.Region(r)} }

// DataFloat32 returns the pixels of a continuous Mat.
func (mat Mat) DataFloat32() []float32 {
	data, _ := mat.m.DataPtrFloat32()
	return data
}

// WrapMat takes ownership of a gocv.Mat, converting it to CV_32F scaled by
// scale when needed.
func WrapMat(src gocv.Mat, scale float64) Mat {
	if src.Type() == gocv.MatTypeCV32F && scale == 1 {
		return Mat{m: src}
	}
	dst := gocv.NewMat()
	src.ConvertToWithParams(&dst, gocv.MatTypeCV32F, float32(scale), 0)
	src.Close()
	return Mat{m: dst}
}

func medianBlur(src Mat, dst *Mat, ksize int) {
	gocv.MedianBlur(src.m, &dst.m, ksize)
}
