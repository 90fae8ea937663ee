package model

import (
	"math"
	"math/rand"
)

// Sample deterministically draws a structural sample of model components:
// a subset of ceil(size*dim) coordinate indices. The draw is a pure function
// of (size, dim) so that sender and receiver agree on the sampled structure
// without exchanging it.
func Sample(size float64, dim int) []int {
	if dim <= 0 {
		return nil
	}
	if size <= 0 || size >= 1 {
		idx := make([]int, dim)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	k := int(math.Ceil(size * float64(dim)))
	if k < 1 {
		k = 1
	}

	seed := int64(math.Float64bits(size)) ^ int64(dim)<<32
	rng := rand.New(rand.NewSource(seed))

	return rng.Perm(dim)[:k]
}
