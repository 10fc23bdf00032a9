package partition

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"halofilter/internal/faults"
)

func TestPlan_Examples(t *testing.T) {
	tests := []struct {
		name    string
		height  int
		workers int
		want    []Partition
	}{
		{
			name:    "even split",
			height:  4,
			workers: 2,
			want:    []Partition{{0, 0, 2}, {1, 2, 4}},
		},
		{
			name:    "short last share",
			height:  10,
			workers: 4,
			want:    []Partition{{0, 0, 3}, {1, 3, 6}, {2, 6, 9}, {3, 9, 10}},
		},
		{
			name:    "empty last share",
			height:  9,
			workers: 4,
			want:    []Partition{{0, 0, 3}, {1, 3, 6}, {2, 6, 9}, {3, 9, 9}},
		},
		{
			name:    "start clamped past height",
			height:  5,
			workers: 4,
			want:    []Partition{{0, 0, 2}, {1, 2, 4}, {2, 4, 5}, {3, 5, 5}},
		},
		{
			name:    "single worker",
			height:  7,
			workers: 1,
			want:    []Partition{{0, 0, 7}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Plan(tt.height, tt.workers)); diff != "" {
				t.Errorf("Plan(%d, %d) mismatch (-want +got):\n%s", tt.height, tt.workers, diff)
			}
		})
	}
}

func TestPlan_Coverage(t *testing.T) {
	for height := 1; height <= 40; height++ {
		for workers := 1; workers <= height; workers++ {
			seen := make([]int, height)
			next := 0
			for i, p := range Plan(height, workers) {
				if p.Owner != i {
					t.Fatalf("Plan(%d, %d)[%d].Owner = %d", height, workers, i, p.Owner)
				}
				if p.RowStart != next {
					t.Fatalf("Plan(%d, %d)[%d] starts at %d, want %d", height, workers, i, p.RowStart, next)
				}
				if p.Size() < 0 {
					t.Fatalf("Plan(%d, %d)[%d] has negative size", height, workers, i)
				}
				for r := p.RowStart; r < p.RowEnd; r++ {
					seen[r]++
				}
				next = p.RowEnd
			}
			if next != height {
				t.Fatalf("Plan(%d, %d) ends at %d, want %d", height, workers, next, height)
			}
			for r, n := range seen {
				if n != 1 {
					t.Fatalf("Plan(%d, %d) covers row %d %d times", height, workers, r, n)
				}
			}
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		height  int
		workers int
		code    string
	}{
		{"ok", 10, 4, ""},
		{"one per row", 4, 4, ""},
		{"zero workers", 10, 0, faults.ErrCodeInvalidWorkers},
		{"too many workers", 3, 4, faults.ErrCodeTooManyWorkers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.height, tt.workers)
			if got := faults.Code(err); got != tt.code {
				t.Errorf("Validate(%d, %d) code = %q, want %q", tt.height, tt.workers, got, tt.code)
			}
		})
	}
}

func TestHaloRange(t *testing.T) {
	tests := []struct {
		name   string
		p      Partition
		depth  int
		height int
		lo, hi int
	}{
		{"first worker clips top", Partition{0, 0, 3}, 2, 10, 0, 5},
		{"middle worker", Partition{1, 3, 6}, 2, 10, 1, 8},
		{"last worker clips bottom", Partition{3, 9, 10}, 2, 10, 7, 10},
		{"halo deeper than share", Partition{1, 2, 4}, 3, 8, 0, 7},
		{"empty partition at the end", Partition{3, 9, 9}, 1, 9, 8, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := HaloRange(tt.p, tt.depth, tt.height)
			if lo != tt.lo || hi != tt.hi {
				t.Errorf("HaloRange() = [%d, %d), want [%d, %d)", lo, hi, tt.lo, tt.hi)
			}
		})
	}
}
