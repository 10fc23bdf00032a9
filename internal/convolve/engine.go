// Package convolve applies 3x3 kernels to a worker's extended buffer.
//
// A pass snapshots every channel into a scratch buffer bordered by one zero
// column on each side, then rewrites the rows of a window in place from that
// snapshot. Rows that lie beyond the top or bottom edge of the original
// image are forced to zero instead of computed.
package convolve

import (
	"sync"

	"halofilter/internal/halo"
	"halofilter/internal/kernel"
)

// WorkUnit is a band of local rows handled by one goroutine.
type WorkUnit struct {
	startY int
	endY   int
}

// clampToByte truncates toward zero after clamping to [0, 255].
func clampToByte(v float32) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v)
	}
}

// convolvePixel computes one output sample at column j (1-based in the
// bordered snapshot) of local row i.
func convolvePixel(snap []byte, stride, i, j int, w *[kernel.Size]float32) byte {
	var sum float32
	c := 0
	for m := -1; m <= 1; m++ {
		row := (i + m) * stride
		for n := -1; n <= 1; n++ {
			// the explicit conversion keeps the product rounded, so no
			// architecture fuses it into the add
			sum += float32(float32(snap[row+j+n]) * w[c])
			c++
		}
	}
	return clampToByte(sum)
}

// borderSnapshot copies plane (rows x width) into snap (rows x width+2)
// leaving columns 0 and width+1 zero.
func borderSnapshot(snap, plane []byte, rows, width int) {
	stride := width + 2
	for r := range rows {
		dst := snap[r*stride : (r+1)*stride]
		dst[0] = 0
		copy(dst[1:width+1], plane[r*width:(r+1)*width])
		dst[width+1] = 0
	}
}

// processRegion rewrites local rows [startY, endY) of plane from snap.
func processRegion(s *halo.ExtendedSlice, plane, snap []byte, w *[kernel.Size]float32, startY, endY int) {
	width := s.Width()
	stride := width + 2
	for i := startY; i < endY; i++ {
		out := plane[i*width : (i+1)*width]
		if !s.InImage(i) {
			clear(out)
			continue
		}
		for j := 1; j <= width; j++ {
			out[j-1] = convolvePixel(snap, stride, i, j, w)
		}
	}
}

// ApplyPass runs kernel k over the rows of win in every channel of s.
// scratch must hold at least s.Rows()*(s.Width()+2) bytes; threads > 1
// splits the window into contiguous bands filtered concurrently.
func ApplyPass(s *halo.ExtendedSlice, k kernel.Kernel, win halo.Range, scratch []byte, threads int) {
	if win.Len() <= 0 {
		return
	}
	weights := k.Weights()
	snap := scratch[:s.Rows()*(s.Width()+2)]

	for c := range s.Channels() {
		plane := s.Plane(c)
		borderSnapshot(snap, plane, s.Rows(), s.Width())
		forBands(win, threads, func(startY, endY int) {
			processRegion(s, plane, snap, &weights, startY, endY)
		})
	}
}

// forBands splits win into at most threads bands and blocks until fn has
// run on all of them.
func forBands(win halo.Range, threads int, fn func(startY, endY int)) {
	n := win.Len()
	workers := min(max(threads, 1), n)
	if workers == 1 {
		fn(win.Start, win.End)
		return
	}

	workChan := make(chan WorkUnit, workers)
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				fn(work.startY, work.endY)
			}
		}()
	}

	rowsPerWorker := (n + workers - 1) / workers
	for startY := win.Start; startY < win.End; startY += rowsPerWorker {
		workChan <- WorkUnit{startY: startY, endY: min(startY+rowsPerWorker, win.End)}
	}
	close(workChan)
	wg.Wait()
}
