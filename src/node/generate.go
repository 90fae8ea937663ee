package node

import (
	"fmt"
	"math/rand"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/data"
	"github.com/gossiplearn/gossiplearn/src/model"
	"github.com/gossiplearn/gossiplearn/src/p2p"
	"github.com/sirupsen/logrus"
)

// Generation gives every node an independent handler cloned from the
// prototype and a private generator seeded from the population generator, so
// runs are reproducible regardless of how node operations interleave.

// Generate builds the population of plain gossip nodes, one per dispatcher
// slot.
func Generate(
	dispatcher *data.Dispatcher,
	net p2p.Network,
	proto model.Handler,
	roundLen int,
	syncMode bool,
	c cache.Cache,
	rng *rand.Rand,
	logger *logrus.Entry,
) (map[core.NodeID]*GossipNode, error) {
	nodes := make(map[core.NodeID]*GossipNode, dispatcher.Size())
	for i := 0; i < dispatcher.Size(); i++ {
		idx := core.NodeID(i)
		n, err := NewGossipNode(idx, dispatcher.At(idx), roundLen, proto.Copy(), net, c,
			syncMode, childRng(rng), logger)
		if err != nil {
			return nil, err
		}
		nodes[idx] = n
	}
	return nodes, nil
}

// GenerateChord builds the population of structured-overlay nodes. The
// prototype must be a weighted handler.
func GenerateChord(
	dispatcher *data.Dispatcher,
	net p2p.Network,
	proto model.WeightedHandler,
	roundLen int,
	syncMode bool,
	c cache.Cache,
	rng *rand.Rand,
	logger *logrus.Entry,
) (map[core.NodeID]*ChordNode, error) {
	nodes := make(map[core.NodeID]*ChordNode, dispatcher.Size())
	for i := 0; i < dispatcher.Size(); i++ {
		idx := core.NodeID(i)
		handler, err := copyWeighted(proto)
		if err != nil {
			return nil, err
		}
		n, err := NewChordNode(idx, dispatcher.At(idx), roundLen, handler, net, c,
			syncMode, childRng(rng), logger)
		if err != nil {
			return nil, err
		}
		nodes[idx] = n
	}
	return nodes, nil
}

// GenerateSampling builds the population of sub-sampled nodes.
func GenerateSampling(
	dispatcher *data.Dispatcher,
	net p2p.Network,
	proto model.SamplingHandler,
	roundLen int,
	syncMode bool,
	c cache.Cache,
	rng *rand.Rand,
	logger *logrus.Entry,
) (map[core.NodeID]*SamplingNode, error) {
	nodes := make(map[core.NodeID]*SamplingNode, dispatcher.Size())
	for i := 0; i < dispatcher.Size(); i++ {
		idx := core.NodeID(i)
		handler, ok := proto.Copy().(model.SamplingHandler)
		if !ok {
			return nil, common.NewSimErr("node", common.InvalidConfig,
				fmt.Sprintf("prototype copy %T is not a sampling handler", proto))
		}
		n, err := NewSamplingNode(idx, dispatcher.At(idx), roundLen, handler, net, c,
			syncMode, childRng(rng), logger)
		if err != nil {
			return nil, err
		}
		nodes[idx] = n
	}
	return nodes, nil
}

// GeneratePartitioning builds the population of partitioned-model nodes.
func GeneratePartitioning(
	dispatcher *data.Dispatcher,
	net p2p.Network,
	proto model.PartitionedHandler,
	roundLen int,
	syncMode bool,
	c cache.Cache,
	rng *rand.Rand,
	logger *logrus.Entry,
) (map[core.NodeID]*PartitioningNode, error) {
	nodes := make(map[core.NodeID]*PartitioningNode, dispatcher.Size())
	for i := 0; i < dispatcher.Size(); i++ {
		idx := core.NodeID(i)
		handler, ok := proto.Copy().(model.PartitionedHandler)
		if !ok {
			return nil, common.NewSimErr("node", common.InvalidConfig,
				fmt.Sprintf("prototype copy %T is not a partitioned handler", proto))
		}
		n, err := NewPartitioningNode(idx, dispatcher.At(idx), roundLen, handler, net, c,
			syncMode, childRng(rng), logger)
		if err != nil {
			return nil, err
		}
		nodes[idx] = n
	}
	return nodes, nil
}

// GenerateAll2All builds the population of all-to-all nodes.
func GenerateAll2All(
	dispatcher *data.Dispatcher,
	net p2p.Network,
	proto model.WeightedHandler,
	roundLen int,
	syncMode bool,
	c cache.Cache,
	rng *rand.Rand,
	logger *logrus.Entry,
) (map[core.NodeID]*All2AllNode, error) {
	nodes := make(map[core.NodeID]*All2AllNode, dispatcher.Size())
	for i := 0; i < dispatcher.Size(); i++ {
		idx := core.NodeID(i)
		handler, err := copyWeighted(proto)
		if err != nil {
			return nil, err
		}
		n, err := NewAll2AllNode(idx, dispatcher.At(idx), roundLen, handler, net, c,
			syncMode, childRng(rng), logger)
		if err != nil {
			return nil, err
		}
		nodes[idx] = n
	}
	return nodes, nil
}

func copyWeighted(proto model.WeightedHandler) (model.WeightedHandler, error) {
	handler, ok := proto.Copy().(model.WeightedHandler)
	if !ok {
		return nil, common.NewSimErr("node", common.InvalidConfig,
			fmt.Sprintf("prototype copy %T is not a weighted handler", proto))
	}
	return handler, nil
}

func childRng(rng *rand.Rand) *rand.Rand {
	return rand.New(rand.NewSource(rng.Int63()))
}
