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

// PartitioningNode exchanges single named slices of a partitioned model.
// Each send names a uniformly drawn partition id and the receiver merges
// only that slice, leaving all other partitions untouched.
type PartitioningNode struct {
	*GossipNode

	handler model.PartitionedHandler
}

// NewPartitioningNode ...
func NewPartitioningNode(
	idx core.NodeID,
	nodeData data.NodeData,
	roundLen int,
	handler model.PartitionedHandler,
	net p2p.Network,
	c cache.Cache,
	syncMode bool,
	rng *rand.Rand,
	logger *logrus.Entry,
) (*PartitioningNode, error) {
	base, err := NewGossipNode(idx, nodeData, roundLen, handler, net, c, syncMode, rng, logger)
	if err != nil {
		return nil, err
	}
	base.logger = base.logger.WithField("variant", "partitioning")

	return &PartitioningNode{
		GossipNode: base,
		handler:    handler,
	}, nil
}

// Send behaves like the base node but PUSH and PUSH_PULL payloads name a
// uniformly drawn partition id.
func (n *PartitioningNode) Send(t int, peer core.NodeID, protocol core.Protocol) (*core.Message, error) {
	switch protocol {
	case core.ProtocolPush, core.ProtocolPushPull:
		key, err := n.handler.Caching(n.idx)
		if err != nil {
			return nil, err
		}
		msgType := core.Push
		if protocol == core.ProtocolPushPull {
			msgType = core.PushPull
		}
		payload := core.NewKeyPayload(key)
		payload.Partition = n.rng.Intn(n.handler.NParts())
		return core.NewMessage(t, n.idx, peer, msgType, payload), nil
	case core.ProtocolPull:
		return core.NewMessage(t, n.idx, peer, core.Pull, nil), nil
	default:
		return nil, common.NewSimErr("node", common.UnsupportedProtocol, protocol.String())
	}
}

// Receive merges only the partition named in the payload. A PULL or
// PUSH_PULL reply independently re-rolls a partition id, so request and
// response partitions are not coupled.
func (n *PartitioningNode) Receive(t int, msg *core.Message) (*core.Message, error) {
	if msg.Type == core.Push || msg.Type == core.Reply || msg.Type == core.PushPull {
		if msg.Value.Partition < 0 || msg.Value.Partition >= n.handler.NParts() {
			return nil, common.NewSimErr("node", common.InvalidConfig,
				fmt.Sprintf("partition %d of %d", msg.Value.Partition, n.handler.NParts()))
		}
		snap, err := n.popSnapshot(msg.Value.Key)
		if err != nil {
			return nil, err
		}
		n.handler.MergePartition(snap, n.data.Train, msg.Value.Partition)
	}

	if msg.Type == core.Pull || msg.Type == core.PushPull {
		key, err := n.handler.Caching(n.idx)
		if err != nil {
			return nil, err
		}
		payload := core.NewKeyPayload(key)
		payload.Partition = n.rng.Intn(n.handler.NParts())
		return core.NewMessage(t, n.idx, msg.Sender, core.Reply, payload), nil
	}

	return nil, nil
}

// String ...
func (n *PartitioningNode) String() string {
	return fmt.Sprintf("PartitioningNode #%d (delta=%d, parts=%d)", n.idx, n.delta, n.handler.NParts())
}
