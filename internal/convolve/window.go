package convolve

import (
	"halofilter/internal/halo"
)

// ValidWindow returns the local rows chain position pos recomputes in an
// extended buffer of size owned rows and depth halo rows per side:
// [1+pos, size+2*depth-pos-1).
//
// Each pass needs one fresh row on either side of what it writes, so the
// window shrinks by one row per side per pass. After depth passes the
// window still covers [depth, size+depth), the owned rows.
func ValidWindow(pos, size, depth int) halo.Range {
	start := 1 + pos
	end := size + 2*depth - pos - 1
	if end < start {
		end = start
	}
	return halo.Range{Start: start, End: end}
}
