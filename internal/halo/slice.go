// Package halo provides the extended working buffer a worker filters in place.
//
// An ExtendedSlice holds a worker's owned rows plus depth halo rows above and
// below, one byte plane per channel:
//
//	local row 0 .. depth-1               top halo
//	local row depth .. depth+size-1      owned rows
//	local row depth+size .. size+2*depth-1   bottom halo
//
// Halo rows that fall outside the original image are never loaded and stay zero.
package halo

import (
	"fmt"

	"halofilter/internal/partition"
	"halofilter/internal/raster"
)

// Range is a half-open range of local buffer rows.
type Range struct {
	Start int
	End   int
}

// Len returns End-Start.
func (r Range) Len() int {
	return r.End - r.Start
}

// ExtendedSlice is exclusively owned by one worker for the lifetime of a job.
type ExtendedSlice struct {
	dims   raster.Dimensions
	part   partition.Partition
	depth  int
	rows   int
	planes [][]byte
}

// New allocates a zeroed extended buffer for part of an image of size dims.
func New(dims raster.Dimensions, channels int, part partition.Partition, depth int) (*ExtendedSlice, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("halo: invalid dimensions %s", dims)
	}
	if channels < 1 {
		return nil, fmt.Errorf("halo: invalid channel count %d", channels)
	}
	if depth < 1 {
		return nil, fmt.Errorf("halo: invalid depth %d", depth)
	}
	if part.Size() < 0 || part.RowStart < 0 || part.RowEnd > dims.Height {
		return nil, fmt.Errorf("halo: %s does not fit an image of height %d", part, dims.Height)
	}

	rows := part.Size() + 2*depth
	planes := make([][]byte, channels)
	for c := range planes {
		planes[c] = make([]byte, rows*dims.Width)
	}
	return &ExtendedSlice{
		dims:   dims,
		part:   part,
		depth:  depth,
		rows:   rows,
		planes: planes,
	}, nil
}

// Dims returns the dimensions of the whole image.
func (s *ExtendedSlice) Dims() raster.Dimensions { return s.dims }

// Width returns the row length in samples.
func (s *ExtendedSlice) Width() int { return s.dims.Width }

// Rows returns the number of local rows, owned plus halo.
func (s *ExtendedSlice) Rows() int { return s.rows }

// Depth returns the halo depth on each side.
func (s *ExtendedSlice) Depth() int { return s.depth }

// Channels returns the number of planes.
func (s *ExtendedSlice) Channels() int { return len(s.planes) }

// Partition returns the owned row range in image coordinates.
func (s *ExtendedSlice) Partition() partition.Partition { return s.part }

// OwnedRows returns the local rows holding the worker's own partition.
func (s *ExtendedSlice) OwnedRows() Range {
	return Range{Start: s.depth, End: s.depth + s.part.Size()}
}

// HaloRows returns the local top and bottom halo ranges.
func (s *ExtendedSlice) HaloRows() (top, bottom Range) {
	owned := s.OwnedRows()
	return Range{Start: 0, End: owned.Start}, Range{Start: owned.End, End: s.rows}
}

// GlobalRow maps a local row to its row in the original image. The result
// may be negative or >= height for halo rows beyond the image edge.
func (s *ExtendedSlice) GlobalRow(local int) int {
	return s.part.RowStart - s.depth + local
}

// LocalRow maps an image row to its local row.
func (s *ExtendedSlice) LocalRow(global int) int {
	return global - s.part.RowStart + s.depth
}

// InImage reports whether local row r corresponds to a row of the original image.
func (s *ExtendedSlice) InImage(local int) bool {
	g := s.GlobalRow(local)
	return g >= 0 && g < s.dims.Height
}

// Plane returns the backing samples of channel c, Rows()*Width() bytes.
func (s *ExtendedSlice) Plane(c int) []byte {
	if c < 0 || c >= len(s.planes) {
		panic(fmt.Sprintf("halo: channel %d out of range [0, %d)", c, len(s.planes)))
	}
	return s.planes[c]
}

// Row returns the mutable samples of local row r in channel c.
func (s *ExtendedSlice) Row(c, r int) []byte {
	if r < 0 || r >= s.rows {
		panic(fmt.Sprintf("halo: row %d out of range [0, %d)", r, s.rows))
	}
	w := s.dims.Width
	return s.Plane(c)[r*w : (r+1)*w]
}

// Load copies contiguous image rows starting at image row first into
// channel c. Every row must lie inside both the image and the buffer.
func (s *ExtendedSlice) Load(c, first int, data []byte) error {
	w := s.dims.Width
	if len(data)%w != 0 {
		return fmt.Errorf("halo: %d bytes is not a whole number of %d-sample rows", len(data), w)
	}
	n := len(data) / w
	if first < 0 || first+n > s.dims.Height {
		return fmt.Errorf("halo: image rows [%d, %d) outside [0, %d)", first, first+n, s.dims.Height)
	}
	lo := s.LocalRow(first)
	if lo < 0 || lo+n > s.rows {
		return fmt.Errorf("halo: image rows [%d, %d) do not fit %s with depth %d", first, first+n, s.part, s.depth)
	}
	if c < 0 || c >= len(s.planes) {
		return fmt.Errorf("halo: channel %d out of range [0, %d)", c, len(s.planes))
	}
	copy(s.planes[c][lo*w:], data)
	return nil
}

// Owned returns a copy of channel c's owned rows, contiguous.
func (s *ExtendedSlice) Owned(c int) []byte {
	owned := s.OwnedRows()
	w := s.dims.Width
	out := make([]byte, owned.Len()*w)
	copy(out, s.Plane(c)[owned.Start*w:owned.End*w])
	return out
}
