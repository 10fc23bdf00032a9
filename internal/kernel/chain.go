package kernel

import (
	"halofilter/internal/faults"
)

// Chain is an ordered, non-empty sequence of kernels applied left to right.
// Its length is also the halo depth every worker needs.
type Chain []Kernel

// ParseChain resolves every name before anything else happens, so a typo
// anywhere in the chain rejects the whole job.
func ParseChain(names []string) (Chain, error) {
	if len(names) == 0 {
		return nil, faults.ErrEmptyChain()
	}
	chain := make(Chain, 0, len(names))
	for _, name := range names {
		k, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, k)
	}
	return chain, nil
}

// Depth is the number of halo rows needed on each side of a partition.
func (c Chain) Depth() int {
	return len(c)
}

// Names returns the filter names of the chain in application order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, k := range c {
		names[i] = k.name
	}
	return names
}
