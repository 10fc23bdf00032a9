package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"halofilter/internal/raster"
)

const netpbmMaxval = 255

// maxNetpbmSamples bounds width*height*channels accepted from a header.
const maxNetpbmSamples = math.MaxInt32

// DecodeNetpbm reads a binary P5 (grayscale) or P6 (RGB) raster. Comment
// lines starting with '#' may appear anywhere in the header; the maximum
// sample value must be 255.
func DecodeNetpbm(r io.Reader) (*raster.Image, error) {
	br := bufio.NewReader(r)

	magic, err := headerToken(br)
	if err != nil {
		return nil, fmt.Errorf("netpbm: read magic: %w", err)
	}
	var format raster.Format
	switch magic {
	case "P5":
		format = raster.Gray
	case "P6":
		format = raster.RGB
	default:
		return nil, fmt.Errorf("netpbm: unsupported magic %q", magic)
	}

	var fields [3]int
	for i, name := range []string{"width", "height", "maxval"} {
		tok, err := headerToken(br)
		if err != nil {
			return nil, fmt.Errorf("netpbm: read %s: %w", name, err)
		}
		v, err := strconv.Atoi(tok)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("netpbm: invalid %s %q", name, tok)
		}
		fields[i] = v
	}
	if fields[2] != netpbmMaxval {
		return nil, fmt.Errorf("netpbm: maxval %d not supported, want %d", fields[2], netpbmMaxval)
	}

	width, height := fields[0], fields[1]
	if width > maxNetpbmSamples/height/format.Channels() {
		return nil, fmt.Errorf("netpbm: %dx%d %s raster exceeds %d samples", width, height, format, maxNetpbmSamples)
	}

	img := raster.New(raster.Dimensions{Width: width, Height: height}, format)
	if _, err := io.ReadFull(br, img.Pix); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("netpbm: read %s samples: %w", img.Dims, err)
	}
	return img, nil
}

// headerToken returns the next whitespace-delimited header field and
// consumes the single whitespace byte that ends it.
func headerToken(br *bufio.Reader) (string, error) {
	var tok []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(tok) > 0 {
				return string(tok), nil
			}
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		switch {
		case b == '#' && len(tok) == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", io.ErrUnexpectedEOF
			}
		case isSpace(b):
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, b)
		}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// EncodeNetpbm writes img as P5 or P6 according to its format.
func EncodeNetpbm(w io.Writer, img *raster.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	magic := "P5"
	if img.Format == raster.RGB {
		magic = "P6"
	}
	if _, err := fmt.Fprintf(w, "%s\n%d %d\n%d\n", magic, img.Dims.Width, img.Dims.Height, netpbmMaxval); err != nil {
		return err
	}
	_, err := w.Write(img.Pix)
	return err
}
