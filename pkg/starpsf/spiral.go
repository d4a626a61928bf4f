package starpsf

// spiral walks a square spiral outward from a start pixel: one step +x,
// one step +y, two steps -x, two steps -y, three steps +x and so on.
type spiral struct {
	x, y     int
	vertical bool
	dir      int
	length   int
}

func newSpiral(x, y int) spiral {
	return spiral{x: x, y: y, dir: 1, length: 1}
}

// leg walks the current leg, calling visit at every pixel entered, and
// turns. It stops early and returns false when visit does.
func (s *spiral) leg(visit func(x, y int) bool) bool {
	for k := 0; k < s.length; k++ {
		if s.vertical {
			s.y += s.dir
		} else {
			s.x += s.dir
		}
		if !visit(s.x, s.y) {
			return false
		}
	}
	if s.vertical {
		s.dir = -s.dir
		s.length++
	}
	s.vertical = !s.vertical
	return true
}

// ringClosed reports whether the next leg runs along -y, which is where
// each ring of the spiral begins.
func (s *spiral) ringClosed() bool {
	return s.vertical && s.dir < 0
}
