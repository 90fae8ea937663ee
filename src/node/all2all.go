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

// All2AllNode pushes to every neighbour each round and never replies; the
// design assumes every neighbour also pushes to this node. Received
// snapshots accumulate one per distinct sender and are merged simultaneously
// under symmetric mixing weights when the node's timer fires, so a round
// consumes exactly the pushes received since the previous firing.
type All2AllNode struct {
	*GossipNode

	handler model.WeightedHandler
	pending localCache
}

// NewAll2AllNode ...
func NewAll2AllNode(
	idx core.NodeID,
	nodeData data.NodeData,
	roundLen int,
	handler model.WeightedHandler,
	net p2p.Network,
	c cache.Cache,
	syncMode bool,
	rng *rand.Rand,
	logger *logrus.Entry,
) (*All2AllNode, error) {
	base, err := NewGossipNode(idx, nodeData, roundLen, handler, net, c, syncMode, rng, logger)
	if err != nil {
		return nil, err
	}
	base.logger = base.logger.WithField("variant", "all2all")

	return &All2AllNode{
		GossipNode: base,
		handler:    handler,
		pending:    localCache{},
	}, nil
}

// Peers returns the node's full current neighbour set, not a sampled single
// peer.
func (n *All2AllNode) Peers() []core.NodeID {
	return n.net.GetPeers(n.idx)
}

// Send supports only PUSH; anything else fails with UnsupportedProtocol.
func (n *All2AllNode) Send(t int, peer core.NodeID, protocol core.Protocol) (*core.Message, error) {
	if protocol != core.ProtocolPush {
		return nil, common.NewSimErr("node", common.UnsupportedProtocol,
			fmt.Sprintf("all2all node only supports push, got %s", protocol))
	}
	return n.GossipNode.Send(t, peer, protocol)
}

// Receive stores one cached entry per distinct sender, releasing and
// overwriting any stale entry from the same sender. It never replies.
func (n *All2AllNode) Receive(t int, msg *core.Message) error {
	if msg.Type != core.Push {
		return nil
	}

	replaced, err := n.pending.store(n.cache, msg.Sender, msg.Value.Key)
	if err != nil {
		return err
	}
	if replaced {
		n.logger.WithFields(logrus.Fields{
			"sender": msg.Sender,
			"t":      t,
		}).Warn("duplicate push from sender, stale snapshot released")
	}

	return nil
}

// TimedOut performs the base timing check and, when due with pushes
// accumulated, pops every entry and merges them all simultaneously with the
// supplied per-source weights plus local data, leaving the local cache
// empty. It returns whether the timeout fired.
func (n *All2AllNode) TimedOut(t int, weights []float64) (bool, error) {
	fired := n.GossipNode.TimedOut(t)
	if !fired || len(n.pending) == 0 {
		return fired, nil
	}

	snaps, err := n.pending.drain(n.cache)
	if err != nil {
		return fired, err
	}

	if err := n.handler.MergeWeighted(snaps, n.data.Train, weights); err != nil {
		return fired, err
	}

	return fired, nil
}

// Pending returns the number of distinct senders accumulated since the prior
// firing.
func (n *All2AllNode) Pending() int {
	return len(n.pending)
}

// String ...
func (n *All2AllNode) String() string {
	return fmt.Sprintf("All2AllNode #%d (delta=%d)", n.idx, n.delta)
}
