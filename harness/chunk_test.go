package harness

import (
	"testing"
)

func TestChunksExactCover(t *testing.T) {
	for _, tc := range []struct {
		n    int
		size int
	}{
		{0, 4}, {1, 4}, {4, 4}, {5, 4}, {10, 3}, {10, 1}, {3, 100},
	} {
		items := make([]int, tc.n)
		for i := range items {
			items[i] = i
		}

		chunks := Chunks(items, tc.size)

		flat := make([]int, 0, tc.n)
		for _, c := range chunks {
			if len(c) > tc.size {
				t.Errorf("n=%d size=%d: chunk of length %d exceeds size", tc.n, tc.size, len(c))
			}
			if len(c) == 0 {
				t.Errorf("n=%d size=%d: empty chunk", tc.n, tc.size)
			}
			flat = append(flat, c...)
		}
		if len(flat) != tc.n {
			t.Fatalf("n=%d size=%d: concatenated %d elements", tc.n, tc.size, len(flat))
		}
		for i, x := range flat {
			if x != i {
				t.Errorf("n=%d size=%d: element %d = %d", tc.n, tc.size, i, x)
			}
		}
	}
}

func TestChunksSizeBelowOne(t *testing.T) {
	items := []int{1, 2, 3}
	chunks := Chunks(items, 0)
	if len(chunks) != 1 || len(chunks[0]) != 3 {
		t.Fatalf("expected a single full chunk, got %v", chunks)
	}
}

func TestChunksEmpty(t *testing.T) {
	if chunks := Chunks([]int{}, 4); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty input, got %v", chunks)
	}
}
