package simul

import (
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/p2p"
)

// MixingWeights supplies the per-source weights a node applies when it
// merges a batch of accumulated snapshots. The returned slice has
// nSources+1 entries: the first applies to the node's own model, the rest to
// the sources in ascending sender order.
type MixingWeights interface {
	Weights(id core.NodeID, nSources int) []float64
}

// UniformMixing weighs the local model and every source equally.
type UniformMixing struct {
	net p2p.Network
}

// NewUniformMixing ...
func NewUniformMixing(net p2p.Network) *UniformMixing {
	return &UniformMixing{net: net}
}

// Weights ...
func (m *UniformMixing) Weights(id core.NodeID, nSources int) []float64 {
	w := make([]float64, nSources+1)
	for i := range w {
		w[i] = 1 / float64(nSources+1)
	}
	return w
}
