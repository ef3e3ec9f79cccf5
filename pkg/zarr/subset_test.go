package zarr

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSubset_Overlap(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Subset
		want    Subset
		wantErr bool
	}{
		{
			name: "partial",
			a:    NewSubset([]uint64{0, 0}, []uint64{4, 4}),
			b:    NewSubset([]uint64{2, 3}, []uint64{4, 4}),
			want: NewSubset([]uint64{2, 3}, []uint64{2, 1}),
		},
		{
			name: "contained",
			a:    NewSubset([]uint64{0}, []uint64{10}),
			b:    NewSubset([]uint64{3}, []uint64{2}),
			want: NewSubset([]uint64{3}, []uint64{2}),
		},
		{
			name: "disjoint",
			a:    NewSubset([]uint64{0}, []uint64{2}),
			b:    NewSubset([]uint64{5}, []uint64{2}),
			want: NewSubset([]uint64{5}, []uint64{0}),
		},
		{
			name:    "dimensionality mismatch",
			a:       NewSubset([]uint64{0}, []uint64{2}),
			b:       NewSubset([]uint64{0, 0}, []uint64{2, 2}),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Overlap(tt.b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Overlap error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("Overlap = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubset_Basics(t *testing.T) {
	s := NewSubset([]uint64{1, 2}, []uint64{3, 4})
	if got := s.NumElements(); got != 12 {
		t.Errorf("NumElements = %d, want 12", got)
	}
	if diff := cmp.Diff([]uint64{4, 6}, s.End()); diff != "" {
		t.Errorf("End mismatch (-want +got):\n%s", diff)
	}
	if !s.Contains([]uint64{3, 5}) || s.Contains([]uint64{4, 5}) || s.Contains([]uint64{1}) {
		t.Errorf("Contains returned wrong result")
	}
	if got := s.String(); got != "[1..4, 2..6]" {
		t.Errorf("String = %q, want %q", got, "[1..4, 2..6]")
	}
	if s.IsEmpty() || !NewSubset([]uint64{0}, []uint64{0}).IsEmpty() {
		t.Errorf("IsEmpty returned wrong result")
	}

	rel, err := s.RelativeTo([]uint64{1, 1})
	if err != nil {
		t.Fatalf("RelativeTo: %v", err)
	}
	if !rel.Equal(NewSubset([]uint64{0, 1}, []uint64{3, 4})) {
		t.Errorf("RelativeTo = %v", rel)
	}
	if _, err := s.RelativeTo([]uint64{2, 0}); err == nil {
		t.Errorf("RelativeTo past start: want error")
	}
}

func TestSubset_ChunkIndices(t *testing.T) {
	tests := []struct {
		s     Subset
		chunk []uint64
		want  Subset
	}{
		{NewSubset([]uint64{0, 0}, []uint64{10, 10}), []uint64{4, 5}, NewSubset([]uint64{0, 0}, []uint64{3, 2})},
		{NewSubset([]uint64{3, 5}, []uint64{2, 1}), []uint64{4, 5}, NewSubset([]uint64{0, 1}, []uint64{2, 1})},
		{NewSubset([]uint64{4}, []uint64{0}), []uint64{4}, NewSubset([]uint64{1}, []uint64{0})},
	}
	for _, tt := range tests {
		if got := tt.s.ChunkIndices(tt.chunk); !got.Equal(tt.want) {
			t.Errorf("%v.ChunkIndices(%v) = %v, want %v", tt.s, tt.chunk, got, tt.want)
		}
	}
}

func TestSubset_Indices(t *testing.T) {
	s := NewSubset([]uint64{1, 0}, []uint64{2, 2})
	var got [][]uint64
	for idx := range s.Indices() {
		got = append(got, slices.Clone(idx))
	}
	want := [][]uint64{{1, 0}, {1, 1}, {2, 0}, {2, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Indices mismatch (-want +got):\n%s", diff)
	}
}

func TestRavel(t *testing.T) {
	if got := Ravel([]uint64{1, 2, 3}, []uint64{4, 5, 6}); got != 1*30+2*6+3 {
		t.Errorf("Ravel = %d, want %d", got, 45)
	}
	if got := Product(nil); got != 1 {
		t.Errorf("Product(nil) = %d, want 1", got)
	}
}

func TestCopyRegion(t *testing.T) {
	// 3x4 source, values 0..11.
	src := make([]byte, 12)
	for i := range src {
		src[i] = byte(i)
	}
	got := ExtractRegion(src, []uint64{3, 4}, NewSubset([]uint64{1, 1}, []uint64{2, 2}), 1)
	if diff := cmp.Diff([]byte{5, 6, 9, 10}, got); diff != "" {
		t.Errorf("ExtractRegion mismatch (-want +got):\n%s", diff)
	}

	dst := make([]byte, 9)
	CopyRegion(dst, []uint64{3, 3}, []uint64{1, 1}, got, []uint64{2, 2}, []uint64{0, 0}, []uint64{2, 2}, 1)
	if diff := cmp.Diff([]byte{0, 0, 0, 0, 5, 6, 0, 9, 10}, dst); diff != "" {
		t.Errorf("CopyRegion mismatch (-want +got):\n%s", diff)
	}

	// Multi-byte elements in one dimension.
	src16 := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	got = ExtractRegion(src16, []uint64{4}, NewSubset([]uint64{2}, []uint64{2}), 2)
	if diff := cmp.Diff([]byte{3, 0, 4, 0}, got); diff != "" {
		t.Errorf("ExtractRegion uint16 mismatch (-want +got):\n%s", diff)
	}
}
