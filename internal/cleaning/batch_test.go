package cleaning

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCleanBatch(t *testing.T) {
	upper := func(s string) string {
		if s == "panic" {
			panic("boom")
		}
		return strings.ToUpper(s)
	}

	t.Run("PreservesOrder", func(t *testing.T) {
		in := []string{"a", "b", "c", "d", "e", "f", "g"}
		for _, workers := range []int{1, 2, 3, 16} {
			out, errs := CleanBatch(context.Background(), in, workers, upper)
			if len(errs) != 0 {
				t.Fatalf("Unexpected failures with %d workers: %v", workers, errs)
			}
			if strings.Join(out, "") != "ABCDEFG" {
				t.Errorf("Order broken with %d workers: %v", workers, out)
			}
		}
	})

	t.Run("PanicIsolated", func(t *testing.T) {
		out, errs := CleanBatch(context.Background(), []string{"a", "b", "panic", "d", "e"}, 2, upper)
		if len(out) != 5 {
			t.Fatalf("Expected 5 results, got %d", len(out))
		}
		if len(errs) != 1 || errs[0].Index != 2 {
			t.Fatalf("Expected one failure at index 2, got %v", errs)
		}
		if out[2] != "" || out[0] != "A" || out[4] != "E" {
			t.Errorf("Unexpected results: %v", out)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		out, errs := CleanBatch(ctx, []string{"a", "b", "c"}, 2, upper)
		if len(errs) != 3 {
			t.Fatalf("Expected every item reported, got %v", errs)
		}
		for _, e := range errs {
			if !errors.Is(e, context.Canceled) {
				t.Errorf("Expected context.Canceled, got %v", e)
			}
		}
		for i, s := range out {
			if s != "" {
				t.Errorf("Slot %d should be empty, got %q", i, s)
			}
		}
	})

	t.Run("Empty", func(t *testing.T) {
		out, errs := CleanBatch(context.Background(), nil, 4, upper)
		if len(out) != 0 || len(errs) != 0 {
			t.Errorf("Expected empty results, got %v %v", out, errs)
		}
	})

	t.Run("FullClean", func(t *testing.T) {
		c := newTestCleaner(t)
		out, errs := CleanBatch(context.Background(), []string{endToEndInput, endToEndInput}, 2, c.FullClean)
		if len(errs) != 0 {
			t.Fatalf("Unexpected failures: %v", errs)
		}
		for i, s := range out {
			if s != "Please review the attached ANONYMIZED_FILE and let me know." {
				t.Errorf("Item %d: got %q", i, s)
			}
		}
	})
}

func TestPartitions(t *testing.T) {
	got := partitions(10, 3)
	want := [][2]int{{0, 4}, {4, 7}, {7, 10}}
	if len(got) != len(want) {
		t.Fatalf("Expected %d partitions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Partition %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if DefaultWorkers() < 1 {
		t.Errorf("DefaultWorkers must be at least 1")
	}
}
