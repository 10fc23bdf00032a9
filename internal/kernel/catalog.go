// Package kernel is the catalog of named 3x3 convolution kernels.
//
// Each Kernel carries its weights with the normalisation already applied,
// so the convolution engine only multiplies and sums:
//
//	k, err := kernel.Lookup("blur")
//	if err != nil {
//	    return err
//	}
//	w := k.Weight(-1, 0) // row above, same column
package kernel

import (
	"halofilter/internal/faults"
)

// Filter names accepted on the command line.
const (
	Smooth  = "smooth"
	Blur    = "blur"
	Sharpen = "sharpen"
	Mean    = "mean"
	Emboss  = "emboss"
)

// Size is the number of weights in a 3x3 stencil.
const Size = 9

// Kernel is an immutable, normalised 3x3 weight matrix stored row-major.
type Kernel struct {
	name    string
	weights [Size]float32
}

// Name returns the catalog name of the kernel.
func (k Kernel) Name() string {
	return k.name
}

// Weights returns a copy of the row-major weights.
func (k Kernel) Weights() [Size]float32 {
	return k.weights
}

// Weight returns the weight applied to the neighbour at row offset m and
// column offset n, both in {-1, 0, 1}.
func (k Kernel) Weight(m, n int) float32 {
	return k.weights[(m+1)*3+(n+1)]
}

// newKernel divides the integer stencil by its normalisation factor in
// float64 and rounds each weight once to float32.
func newKernel(name string, stencil [Size]float64, divisor float64) Kernel {
	k := Kernel{name: name}
	for i, v := range stencil {
		k.weights[i] = float32(v / divisor)
	}
	return k
}

// catalogOrder fixes the order names are reported in.
var catalogOrder = []string{Smooth, Blur, Sharpen, Mean, Emboss}

var catalog = map[string]Kernel{
	Smooth:  newKernel(Smooth, [Size]float64{1, 1, 1, 1, 1, 1, 1, 1, 1}, 9),
	Blur:    newKernel(Blur, [Size]float64{1, 2, 1, 2, 4, 2, 1, 2, 1}, 16),
	Sharpen: newKernel(Sharpen, [Size]float64{0, -2, 0, -2, 11, -2, 0, -2, 0}, 3),
	Mean:    newKernel(Mean, [Size]float64{-1, -1, -1, -1, 9, -1, -1, -1, -1}, 1),
	Emboss:  newKernel(Emboss, [Size]float64{0, -1, 0, 0, 0, 0, 0, 1, 0}, 1),
}

// Names returns the catalog's filter names in their canonical order.
func Names() []string {
	out := make([]string, len(catalogOrder))
	copy(out, catalogOrder)
	return out
}

// Lookup returns the kernel registered under name.
// An unknown name yields a *faults.ConfigError naming the argument.
func Lookup(name string) (Kernel, error) {
	k, ok := catalog[name]
	if !ok {
		return Kernel{}, faults.ErrUnknownFilter(name, Names())
	}
	return k, nil
}
