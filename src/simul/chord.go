package simul

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/data"
	"github.com/gossiplearn/gossiplearn/src/node"
)

// ChordSimulator drives ChordNodes: a firing node first merges what it has
// accumulated, then pushes its snapshot along every finger. The limit of
// each push is the addressed finger, where the snapshot is merged and
// evicted at that node's next firing.
type ChordSimulator struct {
	nodes        []*node.ChordNode
	dispatcher   *data.Dispatcher
	delta        int
	delay        core.Delay
	dropProb     float64
	samplingEval float64

	cache  cache.Cache
	rng    *rand.Rand
	logger *logrus.Entry

	queue  map[int][]*core.ChordMessage
	report *Report
}

// NewChordSimulator ...
func NewChordSimulator(
	nodes []*node.ChordNode,
	dispatcher *data.Dispatcher,
	delta int,
	delay core.Delay,
	dropProb float64,
	samplingEval float64,
	c cache.Cache,
	rng *rand.Rand,
	logger *logrus.Entry,
) (*ChordSimulator, error) {
	if delta < 1 {
		return nil, common.NewSimErr("simulator", common.InvalidConfig,
			fmt.Sprintf("delta %d, must be >= 1", delta))
	}
	if delay == nil || c == nil || rng == nil {
		return nil, common.NewSimErr("simulator", common.InvalidConfig,
			"nil delay, cache or rng")
	}
	if dropProb < 0 || dropProb >= 1 {
		return nil, common.NewSimErr("simulator", common.InvalidConfig,
			fmt.Sprintf("drop probability %f, must be in [0,1)", dropProb))
	}
	for i, n := range nodes {
		if n.ID() != core.NodeID(i) {
			return nil, common.NewSimErr("simulator", common.InvalidConfig,
				fmt.Sprintf("node at position %d has id %d", i, n.ID()))
		}
	}

	return &ChordSimulator{
		nodes:        nodes,
		dispatcher:   dispatcher,
		delta:        delta,
		delay:        delay,
		dropProb:     dropProb,
		samplingEval: samplingEval,
		cache:        c,
		rng:          rng,
		logger:       logger.WithField("component", "chord-simulator"),
		queue:        map[int][]*core.ChordMessage{},
		report:       NewReport(),
	}, nil
}

// InitNodes ...
func (s *ChordSimulator) InitNodes() {
	for _, n := range s.nodes {
		n.InitModel(true)
	}
}

// Start runs nRounds rounds, asking mixing for each firing node's merge
// weights before its batched merge.
func (s *ChordSimulator) Start(mixing MixingWeights, nRounds int) (*Report, error) {
	total := nRounds * s.delta

	for t := 0; t < total; t++ {
		for _, n := range s.nodes {
			weights := mixing.Weights(n.ID(), n.Pending())
			fired, err := n.TimedOut(t, weights)
			if err != nil {
				return s.report, err
			}
			if !fired {
				continue
			}

			for _, peer := range n.Peers() {
				msg, err := n.Send(t, n.ID(), peer, core.ProtocolPush, peer)
				if err != nil {
					return s.report, err
				}
				s.enqueue(t, msg)
			}
		}

		if err := s.deliver(t); err != nil {
			return s.report, err
		}

		if (t+1)%s.delta == 0 {
			s.evaluate((t + 1) / s.delta)
		}
	}

	return s.report, nil
}

// Report ...
func (s *ChordSimulator) Report() *Report {
	return s.report
}

func (s *ChordSimulator) deliver(t int) error {
	msgs := s.queue[t]
	delete(s.queue, t)

	for _, msg := range msgs {
		if err := s.nodes[msg.Receiver].Receive(t, msg); err != nil {
			return err
		}
	}

	return nil
}

func (s *ChordSimulator) enqueue(t int, msg *core.ChordMessage) {
	if s.dropProb > 0 && s.rng.Float64() < s.dropProb {
		s.report.DroppedMessages++
		releaseKey(s.cache, &msg.Message, s.logger)
		return
	}

	d := s.delay.Get(&msg.Message, s.rng)
	if d < 1 {
		d = 1
	}

	s.queue[t+d] = append(s.queue[t+d], msg)
	s.report.SentMessages++
}

func (s *ChordSimulator) evaluate(round int) {
	evs := make([]evaluator, len(s.nodes))
	for i, n := range s.nodes {
		evs[i] = n
	}
	globalEval(s.report, round, s.dispatcher, evs)
	localEval(s.report, round, s.samplingEval, evs, s.rng)
}
