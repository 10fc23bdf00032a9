package cluster

import (
	"fmt"

	"halofilter/internal/halo"
	"halofilter/internal/partition"
	"halofilter/internal/raster"
	"halofilter/internal/transport"
)

// haloBlock cuts the distribute message for p out of the source planes:
// rows HaloRange(p) of every channel, channel-planar.
func haloBlock(planes []*raster.Plane, p partition.Partition, depth int) transport.RowBlock {
	dims := planes[0].Dims
	lo, hi := partition.HaloRange(p, depth, dims.Height)
	block := transport.RowBlock{
		Start:  lo,
		Count:  hi - lo,
		Width:  dims.Width,
		Planes: make([][]byte, len(planes)),
	}
	for c, plane := range planes {
		block.Planes[c] = plane.Rows(lo, hi)
	}
	return block
}

// checkHaloBlock verifies a received distribute message is exactly the
// halo range the planner assigns to p.
func checkHaloBlock(b transport.RowBlock, p partition.Partition, depth int, dims raster.Dimensions) error {
	lo, hi := partition.HaloRange(p, depth, dims.Height)
	if b.Start != lo || b.Count != hi-lo || b.Width != dims.Width {
		return fmt.Errorf("%s expects rows [%d, %d) of width %d, got [%d, %d) of width %d",
			p, lo, hi, dims.Width, b.Start, b.Start+b.Count, b.Width)
	}
	return nil
}

// ownedBlock packages the owned rows of s for the gather step.
func ownedBlock(s *halo.ExtendedSlice) transport.RowBlock {
	p := s.Partition()
	block := transport.RowBlock{
		Start:  p.RowStart,
		Count:  p.Size(),
		Width:  s.Width(),
		Planes: make([][]byte, s.Channels()),
	}
	for c := range block.Planes {
		block.Planes[c] = s.Owned(c)
	}
	return block
}

// Assemble writes the gathered owned rows of p into dst. The block must
// cover exactly p's rows with one plane per destination channel.
func Assemble(dst []*raster.Plane, p partition.Partition, b transport.RowBlock) error {
	if len(b.Planes) != len(dst) {
		return fmt.Errorf("%s sent %d planes, want %d", p, len(b.Planes), len(dst))
	}
	if b.Start != p.RowStart || b.Count != p.Size() {
		return fmt.Errorf("%s sent rows [%d, %d)", p, b.Start, b.Start+b.Count)
	}
	for c, plane := range dst {
		if b.Width != plane.Dims.Width {
			return fmt.Errorf("%s sent width %d, want %d", p, b.Width, plane.Dims.Width)
		}
		copy(plane.Rows(p.RowStart, p.RowEnd), b.Planes[c])
	}
	return nil
}
