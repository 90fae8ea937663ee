package node

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/data"
	"github.com/gossiplearn/gossiplearn/src/model"
	"github.com/gossiplearn/gossiplearn/src/p2p"
	"github.com/sirupsen/logrus"
)

// GossipNode is the generic anti-entropy protocol engine. It is driven by an
// external scheduler: TimedOut is a predicate evaluated by the caller, Send
// prepares a message the scheduler delivers (possibly delayed or dropped),
// and Receive processes a delivered message.
//
// A node is constructed once per simulation run. Its only mutable state
// afterwards is the model handler's internal model, touched only inside
// Receive and the variant timeout hooks.
type GossipNode struct {
	idx      core.NodeID
	data     data.NodeData
	roundLen int
	syncMode bool
	delta    int
	handler  model.Handler
	net      p2p.Network
	cache    cache.Cache
	rng      *rand.Rand
	logger   *logrus.Entry
}

// NewGossipNode builds a node with a fixed wake delay. In sync mode delta is
// drawn uniformly from [0, roundLen): the node wakes exactly delta ticks into
// every round. In async mode delta is drawn around roundLen with spread
// roundLen/10, clamped to at least 1: the node wakes every delta ticks.
func NewGossipNode(
	idx core.NodeID,
	nodeData data.NodeData,
	roundLen int,
	handler model.Handler,
	net p2p.Network,
	c cache.Cache,
	syncMode bool,
	rng *rand.Rand,
	logger *logrus.Entry,
) (*GossipNode, error) {
	if roundLen < 1 {
		return nil, common.NewSimErr("node", common.InvalidConfig,
			fmt.Sprintf("round length %d", roundLen))
	}
	if handler == nil {
		return nil, common.NewSimErr("node", common.InvalidConfig, "nil model handler")
	}
	if net == nil {
		return nil, common.NewSimErr("node", common.InvalidConfig, "nil p2p network")
	}
	if c == nil {
		return nil, common.NewSimErr("node", common.InvalidConfig, "nil cache")
	}
	if rng == nil {
		return nil, common.NewSimErr("node", common.InvalidConfig, "nil random source")
	}

	delta := 0
	if syncMode {
		delta = rng.Intn(roundLen)
	} else {
		delta = int(math.Round(rng.NormFloat64()*float64(roundLen)/10 + float64(roundLen)))
		if delta < 1 {
			delta = 1
		}
	}

	return &GossipNode{
		idx:      idx,
		data:     nodeData,
		roundLen: roundLen,
		syncMode: syncMode,
		delta:    delta,
		handler:  handler,
		net:      net,
		cache:    c,
		rng:      rng,
		logger:   logger.WithFields(logrus.Fields{"this_id": idx, "variant": "plain"}),
	}, nil
}

// ID ...
func (n *GossipNode) ID() core.NodeID {
	return n.idx
}

// Delta returns the node's fixed wake delay.
func (n *GossipNode) Delta() int {
	return n.delta
}

// InitModel initialises the local model and optionally trains it on the
// node's own data.
func (n *GossipNode) InitModel(localTrain bool) {
	n.handler.Init(n.rng)
	if localTrain {
		n.handler.Update(n.data.Train)
	}
}

// TimedOut reports whether the node wakes at tick t.
func (n *GossipNode) TimedOut(t int) bool {
	if n.syncMode {
		return t%n.roundLen == n.delta
	}
	return t%n.delta == 0
}

// Peer picks a random peer from the overlay's neighbour list. An empty
// neighbour list is not an error: the pick falls back to a uniform choice
// over all other nodes.
func (n *GossipNode) Peer() core.NodeID {
	peers := n.net.GetPeers(n.idx)
	if len(peers) > 0 {
		return peers[n.rng.Intn(len(peers))]
	}
	return choiceNotN(n.rng, n.net.Size(), n.idx)
}

// Send prepares the message for an exchange with peer. PUSH and PUSH_PULL
// snapshot the current model into the cache and embed the returned key; PULL
// carries no payload.
func (n *GossipNode) Send(t int, peer core.NodeID, protocol core.Protocol) (*core.Message, error) {
	switch protocol {
	case core.ProtocolPush:
		key, err := n.handler.Caching(n.idx)
		if err != nil {
			return nil, err
		}
		return core.NewMessage(t, n.idx, peer, core.Push, core.NewKeyPayload(key)), nil
	case core.ProtocolPull:
		return core.NewMessage(t, n.idx, peer, core.Pull, nil), nil
	case core.ProtocolPushPull:
		key, err := n.handler.Caching(n.idx)
		if err != nil {
			return nil, err
		}
		return core.NewMessage(t, n.idx, peer, core.PushPull, core.NewKeyPayload(key)), nil
	default:
		return nil, common.NewSimErr("node", common.UnsupportedProtocol, protocol.String())
	}
}

// Receive processes a delivered message. PUSH, REPLY and PUSH_PULL pop the
// referenced snapshot (consuming its key) and merge it with the local model
// and training data. PULL and PUSH_PULL additionally snapshot the (possibly
// just-updated) model and return a REPLY for the sender.
func (n *GossipNode) Receive(t int, msg *core.Message) (*core.Message, error) {
	if msg.Type == core.Push || msg.Type == core.Reply || msg.Type == core.PushPull {
		snap, err := n.popSnapshot(msg.Value.Key)
		if err != nil {
			return nil, err
		}
		n.handler.Merge(snap, n.data.Train)
	}

	if msg.Type == core.Pull || msg.Type == core.PushPull {
		key, err := n.handler.Caching(n.idx)
		if err != nil {
			return nil, err
		}
		return core.NewMessage(t, n.idx, msg.Sender, core.Reply, core.NewKeyPayload(key)), nil
	}

	return nil, nil
}

// Evaluate scores the local model against ext, or the node's own held-out
// split when ext is nil.
func (n *GossipNode) Evaluate(ext *data.Dataset) map[string]float64 {
	if ext != nil {
		return n.handler.Evaluate(*ext)
	}
	if n.data.Eval == nil {
		return map[string]float64{}
	}
	return n.handler.Evaluate(*n.data.Eval)
}

// HasTest reports whether the node holds a held-out split.
func (n *GossipNode) HasTest() bool {
	return n.data.HasEval()
}

// String ...
func (n *GossipNode) String() string {
	return fmt.Sprintf("GossipNode #%d (delta=%d)", n.idx, n.delta)
}

// popSnapshot consumes a cache key. A miss is a fatal protocol-ordering bug
// and is surfaced, never retried.
func (n *GossipNode) popSnapshot(key cache.Key) (*model.Snapshot, error) {
	value, err := n.cache.Pop(key)
	if err != nil {
		return nil, err
	}
	snap, ok := value.(*model.Snapshot)
	if !ok {
		return nil, common.NewSimErr("node", common.CacheMiss,
			fmt.Sprintf("key %s holds %T, not a model snapshot", key, value))
	}
	return snap, nil
}

// choiceNotN draws uniformly from [0, size) excluding self.
func choiceNotN(rng *rand.Rand, size int, self core.NodeID) core.NodeID {
	i := rng.Intn(size - 1)
	if i >= int(self) {
		i++
	}
	return core.NodeID(i)
}
