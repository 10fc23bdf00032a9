// Package codec reads and writes the rasters a filter job consumes and
// produces. The container is chosen by file extension.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"halofilter/internal/faults"
	"halofilter/internal/raster"
)

// Kind is an on-disk container format.
type Kind int

const (
	PGM Kind = iota + 1
	PPM
	PNG
	JPEG
	BMP
	TIFF
)

var kindNames = map[Kind]string{
	PGM:  "pgm",
	PPM:  "ppm",
	PNG:  "png",
	JPEG: "jpeg",
	BMP:  "bmp",
	TIFF: "tiff",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Netpbm reports whether k is one of the raw P5/P6 formats.
func (k Kind) Netpbm() bool {
	return k == PGM || k == PPM
}

var extensions = map[string]Kind{
	".pgm":  PGM,
	".pnm":  PPM,
	".ppm":  PPM,
	".png":  PNG,
	".jpg":  JPEG,
	".jpeg": JPEG,
	".bmp":  BMP,
	".tif":  TIFF,
	".tiff": TIFF,
}

// KindForPath classifies path by extension, case-insensitively.
func KindForPath(path string) (Kind, error) {
	if k, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return k, nil
	}
	return 0, faults.ErrUnsupportedFormat(path)
}

// Decode reads an image of the given kind. A .pgm file must hold a P5
// raster and a .ppm/.pnm file a P6 raster.
func Decode(r io.Reader, kind Kind) (*raster.Image, error) {
	if !kind.Netpbm() {
		return decodeStd(r, kind)
	}
	img, err := DecodeNetpbm(r)
	if err != nil {
		return nil, err
	}
	want := raster.Gray
	if kind == PPM {
		want = raster.RGB
	}
	if img.Format != want {
		return nil, fmt.Errorf("netpbm: %s file holds a %s raster", kind, img.Format)
	}
	return img, nil
}

// Encode writes img in the given kind. Netpbm output is P5 or P6 according
// to the image format, whatever the extension.
func Encode(w io.Writer, img *raster.Image, kind Kind) error {
	if kind.Netpbm() {
		return EncodeNetpbm(w, img)
	}
	return encodeStd(w, img, kind)
}

// Load reads the image at path.
func Load(path string) (*raster.Image, error) {
	kind, err := KindForPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(f, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Save writes img to path. The data goes to a temporary file in the same
// directory that replaces path only once fully written, so a failed save
// never leaves a partial output behind.
func Save(path string, img *raster.Image) (err error) {
	kind, err := KindForPath(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = Encode(bw, img, kind); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
