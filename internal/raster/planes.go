package raster

import (
	"fmt"
)

// Plane is a single-channel row-major raster.
type Plane struct {
	Dims Dimensions
	Pix  []byte
}

// NewPlane allocates a zeroed plane.
func NewPlane(dims Dimensions) *Plane {
	return &Plane{Dims: dims, Pix: make([]byte, dims.Pixels())}
}

// Row returns the mutable samples of row y.
func (p *Plane) Row(y int) []byte {
	if y < 0 || y >= p.Dims.Height {
		panic(fmt.Sprintf("raster: plane row %d out of range [0, %d)", y, p.Dims.Height))
	}
	return p.Pix[y*p.Dims.Width : (y+1)*p.Dims.Width]
}

// Rows returns the contiguous samples of rows [start, end).
func (p *Plane) Rows(start, end int) []byte {
	if start < 0 || end > p.Dims.Height || start > end {
		panic(fmt.Sprintf("raster: plane rows [%d, %d) out of range [0, %d)", start, end, p.Dims.Height))
	}
	return p.Pix[start*p.Dims.Width : end*p.Dims.Width]
}

// SplitPlanes de-interleaves img into one plane per channel.
// A grayscale image yields a single plane sharing nothing with img.
func SplitPlanes(img *Image) []*Plane {
	channels := img.Format.Channels()
	planes := make([]*Plane, channels)
	for c := range channels {
		planes[c] = NewPlane(img.Dims)
	}
	for i := range img.Dims.Pixels() {
		for c := range channels {
			planes[c].Pix[i] = img.Pix[i*channels+c]
		}
	}
	return planes
}

// MergePlanes is the inverse of SplitPlanes.
func MergePlanes(planes []*Plane) (*Image, error) {
	format, err := FormatForChannels(len(planes))
	if err != nil {
		return nil, err
	}
	dims := planes[0].Dims
	for c, p := range planes {
		if p.Dims != dims {
			return nil, fmt.Errorf("plane %d is %s, want %s", c, p.Dims, dims)
		}
	}

	channels := len(planes)
	img := New(dims, format)
	for i := range dims.Pixels() {
		for c := range channels {
			img.Pix[i*channels+c] = planes[c].Pix[i]
		}
	}
	return img, nil
}
