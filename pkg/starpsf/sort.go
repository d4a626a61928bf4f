package starpsf

import "cmp"

// HeapSort sorts ra in place in ascending order. The sort is not stable.
func HeapSort[T cmp.Ordered](ra []T) {
	n := len(ra)
	if n < 2 {
		return
	}
	l := n >> 1
	ir := n - 1
	for {
		var rra T
		if l > 0 {
			l--
			rra = ra[l]
		} else {
			rra = ra[ir]
			ra[ir] = ra[0]
			ir--
			if ir == 0 {
				ra[0] = rra
				return
			}
		}
		i := l
		j := l<<1 + 1
		for j <= ir {
			if j < ir && ra[j] < ra[j+1] {
				j++
			}
			if rra < ra[j] {
				ra[i] = ra[j]
				i = j
				j = i<<1 + 1
			} else {
				break
			}
		}
		ra[i] = rra
	}
}

// IndexSort returns the rank index of values: values[idx[0]] is the
// smallest element and values[idx[len-1]] the largest. values is not
// modified.
func IndexSort[T cmp.Ordered](values []T) []int {
	n := len(values)
	idx := make([]int, n)
	for j := range idx {
		idx[j] = j
	}
	if n < 2 {
		return idx
	}
	l := n >> 1
	ir := n - 1
	for {
		var indxt int
		if l > 0 {
			l--
			indxt = idx[l]
		} else {
			indxt = idx[ir]
			idx[ir] = idx[0]
			ir--
			if ir == 0 {
				idx[0] = indxt
				return idx
			}
		}
		q := values[indxt]
		i := l
		j := l<<1 + 1
		for j <= ir {
			if j < ir && values[idx[j]] < values[idx[j+1]] {
				j++
			}
			if q < values[idx[j]] {
				idx[i] = idx[j]
				i = j
				j = i<<1 + 1
			} else {
				break
			}
		}
		idx[i] = indxt
	}
}
