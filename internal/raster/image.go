// Package raster holds the in-memory image types shared by the codec, the
// coordinator and the workers.
//
// An Image stores samples interleaved row-major (one byte per pixel for
// grayscale, an RGB triplet for colour). Workers never see an Image: they
// work on single-channel Planes produced by SplitPlanes.
package raster

import (
	"fmt"
)

// Dimensions is the fixed size of a job's image.
type Dimensions struct {
	Width  int
	Height int
}

// Pixels returns Width*Height.
func (d Dimensions) Pixels() int {
	return d.Width * d.Height
}

// Valid reports whether both sides are positive.
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Format selects the per-pixel layout.
type Format int

const (
	// Gray stores one intensity byte per pixel.
	Gray Format = iota
	// RGB stores three bytes per pixel.
	RGB
)

// Channels returns the number of bytes per pixel.
func (f Format) Channels() int {
	if f == RGB {
		return 3
	}
	return 1
}

func (f Format) String() string {
	switch f {
	case Gray:
		return "gray"
	case RGB:
		return "rgb"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// FormatForChannels maps a channel count back to a Format.
func FormatForChannels(channels int) (Format, error) {
	switch channels {
	case 1:
		return Gray, nil
	case 3:
		return RGB, nil
	default:
		return Gray, fmt.Errorf("unsupported channel count %d", channels)
	}
}

// Image is a row-major raster with interleaved channels.
type Image struct {
	Dims   Dimensions
	Format Format
	Pix    []byte
}

// New allocates a zeroed image.
func New(dims Dimensions, format Format) *Image {
	return &Image{
		Dims:   dims,
		Format: format,
		Pix:    make([]byte, dims.Pixels()*format.Channels()),
	}
}

// Stride returns the number of bytes per row.
func (img *Image) Stride() int {
	return img.Dims.Width * img.Format.Channels()
}

// Row returns the mutable samples of row y.
func (img *Image) Row(y int) []byte {
	if y < 0 || y >= img.Dims.Height {
		panic(fmt.Sprintf("raster: row %d out of range [0, %d)", y, img.Dims.Height))
	}
	stride := img.Stride()
	return img.Pix[y*stride : (y+1)*stride]
}

// At returns channel c of pixel (x, y).
func (img *Image) At(x, y, c int) byte {
	return img.Row(y)[x*img.Format.Channels()+c]
}

// Set writes channel c of pixel (x, y).
func (img *Image) Set(x, y, c int, v byte) {
	img.Row(y)[x*img.Format.Channels()+c] = v
}

// Fill sets every sample to v.
func (img *Image) Fill(v byte) {
	for i := range img.Pix {
		img.Pix[i] = v
	}
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	out := &Image{Dims: img.Dims, Format: img.Format, Pix: make([]byte, len(img.Pix))}
	copy(out.Pix, img.Pix)
	return out
}

// Validate checks that Pix matches the dimensions and format.
func (img *Image) Validate() error {
	if !img.Dims.Valid() {
		return fmt.Errorf("invalid dimensions %s", img.Dims)
	}
	if want := img.Dims.Pixels() * img.Format.Channels(); len(img.Pix) != want {
		return fmt.Errorf("pixel buffer has %d bytes, want %d for %s %s", len(img.Pix), want, img.Dims, img.Format)
	}
	return nil
}
