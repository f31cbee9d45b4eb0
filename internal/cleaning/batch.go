package cleaning

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// CleanFunc transforms one email body
type CleanFunc func(string) string

// DefaultWorkers is half the logical CPUs minus one, and at least one
func DefaultWorkers() int {
	n := int(math.Ceil(float64(runtime.NumCPU())/2 - 1))
	if n < 1 {
		return 1
	}
	return n
}

// CleanBatch applies fn to every email across workers contiguous partitions.
// The result has the input's length and order. A panic inside fn is confined to
// its item: that slot stays empty and the failure is reported with its index.
// Cancelling ctx stops workers between items; unprocessed slots are reported.
func CleanBatch(ctx context.Context, emails []string, workers int, fn CleanFunc) ([]string, []ItemError) {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > len(emails) {
		workers = len(emails)
	}

	out := make([]string, len(emails))
	failures := make([][]ItemError, workers)

	g, gCtx := errgroup.WithContext(ctx)
	for w, bounds := range partitions(len(emails), workers) {
		w, lo, hi := w, bounds[0], bounds[1]
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gCtx.Err(); err != nil {
					failures[w] = append(failures[w], ItemError{Index: i, Err: err})
					continue
				}
				cleaned, err := safeApply(fn, emails[i])
				if err != nil {
					failures[w] = append(failures[w], ItemError{Index: i, Err: err})
					continue
				}
				out[i] = cleaned
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []ItemError
	for _, f := range failures {
		errs = append(errs, f...)
	}
	return out, errs
}

// partitions splits n items into k contiguous ranges, the first n%k one longer
func partitions(n, k int) [][2]int {
	if k <= 0 {
		return nil
	}
	parts := make([][2]int, 0, k)
	size, extra := n/k, n%k
	lo := 0
	for i := 0; i < k; i++ {
		hi := lo + size
		if i < extra {
			hi++
		}
		parts = append(parts, [2]int{lo, hi})
		lo = hi
	}
	return parts
}

func safeApply(fn CleanFunc, text string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleaning panicked: %v", r)
		}
	}()
	return fn(text), nil
}
