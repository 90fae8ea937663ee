package p2p

import (
	"fmt"

	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
)

// Network provides neighbour lookup according to the overlay topology. An
// empty neighbour list is not an error; callers fall back to a uniform pick
// over all other nodes.
type Network interface {
	GetPeers(id core.NodeID) []core.NodeID
	Size() int
}

// StaticNetwork is a Network with a fixed topology. A nil adjacency matrix
// means full connectivity: every node can reach every other node.
type StaticNetwork struct {
	n          int
	neighbours [][]core.NodeID
}

// NewStaticNetwork builds a static overlay over n nodes. The topology, if not
// nil, is an n x n adjacency matrix where any non-zero entry (i, j) makes j a
// neighbour of i.
func NewStaticNetwork(n int, topology [][]float64) (*StaticNetwork, error) {
	if n < 2 {
		return nil, common.NewSimErr("p2p", common.InvalidConfig,
			fmt.Sprintf("network needs at least 2 nodes, got %d", n))
	}

	net := &StaticNetwork{n: n}

	if topology == nil {
		return net, nil
	}

	if len(topology) != n {
		return nil, common.NewSimErr("p2p", common.InvalidConfig,
			fmt.Sprintf("topology has %d rows for %d nodes", len(topology), n))
	}

	net.neighbours = make([][]core.NodeID, n)
	for i, row := range topology {
		if len(row) != n {
			return nil, common.NewSimErr("p2p", common.InvalidConfig,
				fmt.Sprintf("topology row %d has %d columns for %d nodes", i, len(row), n))
		}
		for j, w := range row {
			if w != 0 && i != j {
				net.neighbours[i] = append(net.neighbours[i], core.NodeID(j))
			}
		}
	}

	return net, nil
}

// GetPeers returns the neighbours of id. With full connectivity it returns
// all other nodes.
func (s *StaticNetwork) GetPeers(id core.NodeID) []core.NodeID {
	if s.neighbours == nil {
		peers := make([]core.NodeID, 0, s.n-1)
		for j := 0; j < s.n; j++ {
			if core.NodeID(j) != id {
				peers = append(peers, core.NodeID(j))
			}
		}
		return peers
	}

	if int(id) < 0 || int(id) >= s.n {
		return nil
	}

	return s.neighbours[id]
}

// Size returns the number of nodes in the overlay.
func (s *StaticNetwork) Size() int {
	return s.n
}
