package codec

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"halofilter/internal/raster"
)

const jpegQuality = 95

// decodeStd decodes a container format through the image package. A
// grayscale source keeps a single channel; anything else becomes RGB with
// alpha dropped.
func decodeStd(r io.Reader, kind Kind) (*raster.Image, error) {
	var (
		src image.Image
		err error
	)
	switch kind {
	case PNG:
		src, err = png.Decode(r)
	case JPEG:
		src, err = jpeg.Decode(r)
	case BMP:
		src, err = bmp.Decode(r)
	case TIFF:
		src, err = tiff.Decode(r)
	default:
		return nil, fmt.Errorf("decode: %s is not an image container", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return fromImage(src), nil
}

func fromImage(src image.Image) *raster.Image {
	b := src.Bounds()
	dims := raster.Dimensions{Width: b.Dx(), Height: b.Dy()}

	if gray, ok := src.(*image.Gray); ok {
		img := raster.New(dims, raster.Gray)
		for y := range dims.Height {
			off := gray.PixOffset(b.Min.X, b.Min.Y+y)
			copy(img.Row(y), gray.Pix[off:off+dims.Width])
		}
		return img
	}

	img := raster.New(dims, raster.RGB)
	for y := range dims.Height {
		row := img.Row(y)
		for x := range dims.Width {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			row[3*x], row[3*x+1], row[3*x+2] = c.R, c.G, c.B
		}
	}
	return img
}

func toImage(img *raster.Image) image.Image {
	rect := image.Rect(0, 0, img.Dims.Width, img.Dims.Height)
	if img.Format == raster.Gray {
		return &image.Gray{Pix: img.Pix, Stride: img.Dims.Width, Rect: rect}
	}

	out := image.NewNRGBA(rect)
	for i := range img.Dims.Pixels() {
		copy(out.Pix[4*i:4*i+3], img.Pix[3*i:3*i+3])
		out.Pix[4*i+3] = 0xff
	}
	return out
}

func encodeStd(w io.Writer, img *raster.Image, kind Kind) error {
	dst := toImage(img)
	switch kind {
	case PNG:
		return png.Encode(w, dst)
	case JPEG:
		return jpeg.Encode(w, dst, &jpeg.Options{Quality: jpegQuality})
	case BMP:
		return bmp.Encode(w, dst)
	case TIFF:
		return tiff.Encode(w, dst, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("encode: %s is not an image container", kind)
	}
}
