// Package partition splits an image's rows across a fixed pool of workers.
//
// Worker i owns rows [i*c, min(height, (i+1)*c)) with c = ceil(height/W).
// Ranges are contiguous, disjoint and cover [0, height); trailing workers may
// get a short or empty share when height is not a multiple of W.
package partition

import (
	"fmt"

	"halofilter/internal/faults"
)

// Partition is the half-open range of original image rows a worker produces.
type Partition struct {
	Owner    int
	RowStart int
	RowEnd   int
}

// Size returns the number of owned rows.
func (p Partition) Size() int {
	return p.RowEnd - p.RowStart
}

// Empty reports whether the worker owns no rows.
func (p Partition) Empty() bool {
	return p.RowEnd <= p.RowStart
}

func (p Partition) String() string {
	return fmt.Sprintf("worker %d [%d, %d)", p.Owner, p.RowStart, p.RowEnd)
}

// Validate rejects pools that cannot be planned: fewer than one worker, or
// more workers than image rows.
func Validate(height, workers int) error {
	if workers < 1 {
		return faults.ErrInvalidWorkers(workers)
	}
	if workers > height {
		return faults.ErrTooManyWorkers(workers, height)
	}
	return nil
}

// share is ceil(height / workers).
func share(height, workers int) int {
	return (height + workers - 1) / workers
}

// For returns worker i's partition. RowStart is clamped to height so a
// surplus worker gets a well-formed empty range instead of a negative one.
func For(height, workers, i int) Partition {
	c := share(height, workers)
	return Partition{
		Owner:    i,
		RowStart: min(height, i*c),
		RowEnd:   min(height, (i+1)*c),
	}
}

// Plan returns the partitions of all workers in rank order.
func Plan(height, workers int) []Partition {
	parts := make([]Partition, workers)
	for i := range workers {
		parts[i] = For(height, workers, i)
	}
	return parts
}

// HaloRange returns the rows of the original image shipped to the owner of
// p: [RowStart-depth, RowEnd+depth) clipped to [0, height). Rows cut off by
// the clip are synthesised as zeros on the worker side.
func HaloRange(p Partition, depth, height int) (lo, hi int) {
	lo = max(0, p.RowStart-depth)
	hi = min(height, p.RowEnd+depth)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
