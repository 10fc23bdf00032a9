package kernel

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"halofilter/internal/faults"
)

func TestLookup_AllNames(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			k, err := Lookup(name)
			if err != nil {
				t.Fatalf("Lookup(%q) returned error: %v", name, err)
			}
			if k.Name() != name {
				t.Errorf("Name() = %q, want %q", k.Name(), name)
			}
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("glow")
	if err == nil {
		t.Fatal("Lookup(glow) returned nil error")
	}
	if got := faults.Code(err); got != faults.ErrCodeUnknownFilter {
		t.Errorf("Code() = %q, want %q", got, faults.ErrCodeUnknownFilter)
	}
}

func TestKernel_WeightSums(t *testing.T) {
	// smooth, blur, sharpen and mean preserve a uniform signal; emboss cancels it.
	tests := []struct {
		name string
		want float64
	}{
		{Smooth, 1},
		{Blur, 1},
		{Sharpen, 1},
		{Mean, 1},
		{Emboss, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, _ := Lookup(tt.name)
			var sum float64
			for _, w := range k.Weights() {
				sum += float64(w)
			}
			if d := sum - tt.want; d > 1e-6 || d < -1e-6 {
				t.Errorf("sum of weights = %v, want %v", sum, tt.want)
			}
		})
	}
}

func TestKernel_WeightIndexing(t *testing.T) {
	k, _ := Lookup(Emboss)
	if got := k.Weight(-1, 0); got != -1 {
		t.Errorf("Weight(-1, 0) = %v, want -1", got)
	}
	if got := k.Weight(1, 0); got != 1 {
		t.Errorf("Weight(1, 0) = %v, want 1", got)
	}
	if got := k.Weight(0, 0); got != 0 {
		t.Errorf("Weight(0, 0) = %v, want 0", got)
	}

	s, _ := Lookup(Sharpen)
	centre := 11.0
	if got, want := s.Weight(0, 0), float32(centre/3); got != want {
		t.Errorf("sharpen centre = %v, want %v", got, want)
	}
}

func TestNames_ReturnsCopy(t *testing.T) {
	names := Names()
	names[0] = "mutated"
	if Names()[0] != Smooth {
		t.Error("Names() exposes the catalog order slice")
	}
}

func TestParseChain(t *testing.T) {
	chain, err := ParseChain([]string{"sharpen", "smooth", "sharpen"})
	if err != nil {
		t.Fatalf("ParseChain() returned error: %v", err)
	}
	if chain.Depth() != 3 {
		t.Errorf("Depth() = %d, want 3", chain.Depth())
	}
	if diff := cmp.Diff([]string{"sharpen", "smooth", "sharpen"}, chain.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseChain_Errors(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		code  string
	}{
		{"empty", nil, faults.ErrCodeEmptyChain},
		{"unknown in the middle", []string{"smooth", "glow", "blur"}, faults.ErrCodeUnknownFilter},
		{"case sensitive", []string{"Smooth"}, faults.ErrCodeUnknownFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChain(tt.names)
			if got := faults.Code(err); got != tt.code {
				t.Errorf("ParseChain() code = %q, want %q (err = %v)", got, tt.code, err)
			}
		})
	}
}
