package node

import (
	"fmt"
	"math/bits"
	"math/rand"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/data"
	"github.com/gossiplearn/gossiplearn/src/model"
	"github.com/gossiplearn/gossiplearn/src/p2p"
	"github.com/sirupsen/logrus"
)

// ChordNode routes pushes along a Chord-style finger table, bounding
// per-round fan-out to O(log N), and amortizes merge cost by batching
// accumulated pushes into a single weighted merge when its timer fires.
type ChordNode struct {
	*GossipNode

	handler model.WeightedHandler
	finger  []core.NodeID
	pending localCache
}

// NewChordNode ...
func NewChordNode(
	idx core.NodeID,
	nodeData data.NodeData,
	roundLen int,
	handler model.WeightedHandler,
	net p2p.Network,
	c cache.Cache,
	syncMode bool,
	rng *rand.Rand,
	logger *logrus.Entry,
) (*ChordNode, error) {
	base, err := NewGossipNode(idx, nodeData, roundLen, handler, net, c, syncMode, rng, logger)
	if err != nil {
		return nil, err
	}
	base.logger = base.logger.WithField("variant", "chord")

	return &ChordNode{
		GossipNode: base,
		handler:    handler,
		finger:     fingerTable(idx, net.Size()),
		pending:    localCache{},
	}, nil
}

// fingerTable computes the m = floor(log2 N) + 1 successor pointers at
// exponentially increasing ring offsets: entry i = (idx + 2^i) mod N, then
// reversed so the nearest successor is last.
func fingerTable(idx core.NodeID, size int) []core.NodeID {
	m := bits.Len(uint(size))
	finger := make([]core.NodeID, m)

	pow2 := 1
	for i := 0; i < m; i++ {
		finger[i] = core.NodeID((int(idx) + pow2) % size)
		pow2 += pow2
	}

	for i, j := 0, len(finger)-1; i < j; i, j = i+1, j-1 {
		finger[i], finger[j] = finger[j], finger[i]
	}

	return finger
}

// Peers exposes the full finger table; the caller picks a target, unlike the
// base node's single random pick.
func (n *ChordNode) Peers() []core.NodeID {
	peers := make([]core.NodeID, len(n.finger))
	copy(peers, n.finger)
	return peers
}

// Send prepares a PUSH on behalf of sender, bounded by limit: the node id at
// which accumulated pushes are eventually merged and evicted. Any other
// protocol fails with UnsupportedProtocol.
func (n *ChordNode) Send(t int, sender, peer core.NodeID, protocol core.Protocol, limit core.NodeID) (*core.ChordMessage, error) {
	if protocol != core.ProtocolPush {
		return nil, common.NewSimErr("node", common.UnsupportedProtocol,
			fmt.Sprintf("chord node only supports push, got %s", protocol))
	}

	key, err := n.handler.Caching(sender)
	if err != nil {
		return nil, err
	}

	return core.NewChordMessage(t, sender, peer, limit, core.Push, core.NewKeyPayload(key)), nil
}

// Receive accumulates the pushed snapshot key in the local cache; it never
// returns a REPLY. A duplicate entry from the same sender is a
// protocol-ordering anomaly: the stale key is always released before the new
// one is stored.
func (n *ChordNode) Receive(t int, msg *core.ChordMessage) error {
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
			"limit":  msg.Limit,
			"t":      t,
		}).Warn("duplicate push from sender, stale snapshot released")
	}

	return nil
}

// TimedOut performs the base timing check and, when due with a non-empty
// local cache, pops every accumulated snapshot and merges them with the
// node's data under the supplied mixing weights. It returns whether the
// timeout fired.
func (n *ChordNode) TimedOut(t int, weights []float64) (bool, error) {
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

// NextTimedOut returns how many ticks remain until the node's next wake.
func (n *ChordNode) NextTimedOut(t int) int {
	return n.delta - t%n.delta
}

// Pending returns the number of accumulated pushes awaiting the next merge.
func (n *ChordNode) Pending() int {
	return len(n.pending)
}

// String ...
func (n *ChordNode) String() string {
	return fmt.Sprintf("ChordNode #%d (delta=%d, m=%d)", n.idx, n.delta, len(n.finger))
}
