package model

import (
	"fmt"

	"github.com/gossiplearn/gossiplearn/src/common"
)

// Partition splits a flat parameter vector of the given dimension into
// nParts contiguous, disjoint slices of near-equal length.
type Partition struct {
	dim    int
	nParts int
}

// NewPartition ...
func NewPartition(dim, nParts int) (*Partition, error) {
	if nParts < 1 || nParts > dim {
		return nil, common.NewSimErr("model", common.InvalidConfig,
			fmt.Sprintf("%d partitions for %d parameters", nParts, dim))
	}
	return &Partition{dim: dim, nParts: nParts}, nil
}

// NParts ...
func (p *Partition) NParts() int {
	return p.nParts
}

// Range returns the [start, end) parameter range of partition pid. The first
// dim mod nParts partitions carry one extra parameter.
func (p *Partition) Range(pid int) (int, int) {
	base := p.dim / p.nParts
	extra := p.dim % p.nParts

	start := pid*base + min(pid, extra)
	size := base
	if pid < extra {
		size++
	}

	return start, start + size
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
