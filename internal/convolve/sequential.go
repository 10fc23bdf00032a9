package convolve

import (
	"halofilter/internal/kernel"
	"halofilter/internal/raster"
)

// Sequential filters the whole image one kernel at a time, treating every
// sample outside the image as zero. It is the single-process reference the
// distributed pipeline must reproduce byte for byte.
func Sequential(img *raster.Image, chain kernel.Chain) *raster.Image {
	planes := raster.SplitPlanes(img)
	for _, p := range planes {
		for _, k := range chain {
			p.Pix = sequentialPass(p.Pix, p.Dims.Width, p.Dims.Height, k)
		}
	}
	out, err := raster.MergePlanes(planes)
	if err != nil {
		// SplitPlanes always yields 1 or 3 planes of one size
		panic(err)
	}
	return out
}

func sequentialPass(src []byte, width, height int, k kernel.Kernel) []byte {
	w := k.Weights()
	dst := make([]byte, len(src))
	for i := range height {
		for j := range width {
			var sum float32
			c := 0
			for m := -1; m <= 1; m++ {
				for n := -1; n <= 1; n++ {
					y, x := i+m, j+n
					var v byte
					if y >= 0 && y < height && x >= 0 && x < width {
						v = src[y*width+x]
					}
					sum += float32(float32(v) * w[c])
					c++
				}
			}
			dst[i*width+j] = clampToByte(sum)
		}
	}
	return dst
}
