package mrqfit

import "math"

// MaxParams is the largest number of parameters (and linear system size)
// handled by the engine.
const MaxParams = 16

// Matrix is a fixed-size square matrix. Only the leading n×n block is used.
type Matrix [MaxParams][MaxParams]float64

// GaussJordan solves a·x = b in place by Gauss-Jordan elimination with full
// pivoting. On return the leading n×n block of a holds its inverse and the
// first m columns of b hold the solutions.
func GaussJordan(a *Matrix, n int, b *Matrix, m int) error {
	if n > MaxParams || m > MaxParams {
		return ErrTooManyVariables
	}

	var ipiv, indxr, indxc [MaxParams]int

	for i := 0; i < n; i++ {
		big := 0.0
		irow, icol := 0, 0
		for j := 0; j < n; j++ {
			if ipiv[j] == 1 {
				continue
			}
			for k := 0; k < n; k++ {
				switch {
				case ipiv[k] == 0:
					if v := math.Abs(a[j][k]); v >= big {
						big = v
						irow, icol = j, k
					}
				case ipiv[k] > 1:
					return ErrSingularMatrix
				}
			}
		}
		ipiv[icol]++
		if ipiv[icol] > 1 {
			return ErrSingularMatrix
		}

		// The pivot goes onto the diagonal; columns are unscrambled at the end.
		if irow != icol {
			a[irow], a[icol] = a[icol], a[irow]
			b[irow], b[icol] = b[icol], b[irow]
		}
		indxr[i] = irow
		indxc[i] = icol
		if a[icol][icol] == 0.0 {
			return ErrSingularMatrix
		}

		pivinv := 1.0 / a[icol][icol]
		a[icol][icol] = 1.0
		for l := 0; l < n; l++ {
			a[icol][l] *= pivinv
		}
		for l := 0; l < m; l++ {
			b[icol][l] *= pivinv
		}

		for ll := 0; ll < n; ll++ {
			if ll == icol {
				continue
			}
			dum := a[ll][icol]
			a[ll][icol] = 0.0
			for l := 0; l < n; l++ {
				a[ll][l] -= a[icol][l] * dum
			}
			for l := 0; l < m; l++ {
				b[ll][l] -= b[icol][l] * dum
			}
		}
	}

	for l := n - 1; l >= 0; l-- {
		if indxr[l] == indxc[l] {
			continue
		}
		for k := 0; k < n; k++ {
			a[k][indxr[l]], a[k][indxc[l]] = a[k][indxc[l]], a[k][indxr[l]]
		}
	}
	return nil
}
