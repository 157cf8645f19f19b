package stats

import (
	"cmp"
	"errors"
	"fmt"
	"math/bits"
	"slices"
)

var (
	ErrTooFewCounts    = errors.New("not enough inspection counts")
	ErrProductOverflow = errors.New("product of inspection counts overflows uint64")
)

// Ranked pairs an agent index with its inspection count.
type Ranked struct {
	Agent int
	Count uint64
}

// Rank orders agents by descending inspection count. Equal counts keep index
// order.
func Rank(counts []uint64) []Ranked {
	ranked := make([]Ranked, len(counts))
	for i, c := range counts {
		ranked[i] = Ranked{Agent: i, Count: c}
	}
	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return ranked
}

// ProductOfTop multiplies the n largest counts. Which of several equal
// counts is picked does not change the product.
func ProductOfTop(counts []uint64, n int) (uint64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("top count must be > 0, got %d", n)
	}
	if len(counts) < n {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrTooFewCounts, n, len(counts))
	}
	top := slices.Clone(counts)
	slices.SortFunc(top, func(a, b uint64) int { return cmp.Compare(b, a) })

	product := uint64(1)
	for _, c := range top[:n] {
		hi, lo := bits.Mul64(product, c)
		if hi != 0 {
			return 0, ErrProductOverflow
		}
		product = lo
	}
	return product, nil
}

// TopTwoProduct is the activity score of a run: the product of the two
// largest inspection counts.
func TopTwoProduct(counts []uint64) (uint64, error) {
	return ProductOfTop(counts, 2)
}
