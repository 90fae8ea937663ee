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

// SamplingNode exchanges structural samples of the model: each payload
// advertises a sample size and the receiver merges only that fraction of
// the received model's components, bounding per-exchange cost independently
// of total model size.
type SamplingNode struct {
	*GossipNode

	handler model.SamplingHandler
}

// NewSamplingNode ...
func NewSamplingNode(
	idx core.NodeID,
	nodeData data.NodeData,
	roundLen int,
	handler model.SamplingHandler,
	net p2p.Network,
	c cache.Cache,
	syncMode bool,
	rng *rand.Rand,
	logger *logrus.Entry,
) (*SamplingNode, error) {
	base, err := NewGossipNode(idx, nodeData, roundLen, handler, net, c, syncMode, rng, logger)
	if err != nil {
		return nil, err
	}
	base.logger = base.logger.WithField("variant", "sampling")

	return &SamplingNode{
		GossipNode: base,
		handler:    handler,
	}, nil
}

// Send behaves like the base node but PUSH and PUSH_PULL payloads
// additionally carry the node's sample size.
func (n *SamplingNode) Send(t int, peer core.NodeID, protocol core.Protocol) (*core.Message, error) {
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
		payload.SampleSize = n.handler.SampleSize()
		return core.NewMessage(t, n.idx, peer, msgType, payload), nil
	case core.ProtocolPull:
		return core.NewMessage(t, n.idx, peer, core.Pull, nil), nil
	default:
		return nil, common.NewSimErr("node", common.UnsupportedProtocol, protocol.String())
	}
}

// Receive pops the inbound snapshot, draws the structural sample advertised
// by the payload from the received model, and merges only the sampled
// components. Replies advertise this node's own sample size.
func (n *SamplingNode) Receive(t int, msg *core.Message) (*core.Message, error) {
	if msg.Type == core.Push || msg.Type == core.Reply || msg.Type == core.PushPull {
		snap, err := n.popSnapshot(msg.Value.Key)
		if err != nil {
			return nil, err
		}
		sample := model.Sample(msg.Value.SampleSize, len(snap.Params))
		n.handler.MergeSample(snap, n.data.Train, sample)
	}

	if msg.Type == core.Pull || msg.Type == core.PushPull {
		key, err := n.handler.Caching(n.idx)
		if err != nil {
			return nil, err
		}
		payload := core.NewKeyPayload(key)
		payload.SampleSize = n.handler.SampleSize()
		return core.NewMessage(t, n.idx, msg.Sender, core.Reply, payload), nil
	}

	return nil, nil
}

// String ...
func (n *SamplingNode) String() string {
	return fmt.Sprintf("SamplingNode #%d (delta=%d, sample=%.2f)", n.idx, n.delta, n.handler.SampleSize())
}
