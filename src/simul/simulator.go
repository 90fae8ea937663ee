package simul

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/data"
	"github.com/gossiplearn/gossiplearn/src/node"
)

// Exchanger is a node as seen by the tick loop. GossipNode and the
// variants that keep its message flow (sampling, partitioning) satisfy it.
type Exchanger interface {
	ID() core.NodeID
	InitModel(localTrain bool)
	TimedOut(t int) bool
	Peer() core.NodeID
	Send(t int, peer core.NodeID, protocol core.Protocol) (*core.Message, error)
	Receive(t int, msg *core.Message) (*core.Message, error)
	Evaluate(ext *data.Dataset) map[string]float64
	HasTest() bool
}

type evaluator interface {
	Evaluate(ext *data.Dataset) map[string]float64
	HasTest() bool
}

// Simulator drives a set of gossip nodes through discrete ticks. Nodes
// wake on their own schedule; the simulator routes their messages through
// a delayed, lossy queue and evaluates the population once per round.
type Simulator struct {
	nodes        []Exchanger
	dispatcher   *data.Dispatcher
	delta        int
	protocol     core.Protocol
	delay        core.Delay
	dropProb     float64
	samplingEval float64

	cache  cache.Cache
	rng    *rand.Rand
	logger *logrus.Entry

	queue  map[int][]*core.Message
	report *Report
}

// NewSimulator returns a Simulator ready for InitNodes and Start. delta is
// the number of ticks per gossip round and sets the evaluation cadence.
func NewSimulator(
	nodes []Exchanger,
	dispatcher *data.Dispatcher,
	delta int,
	protocol core.Protocol,
	delay core.Delay,
	dropProb float64,
	samplingEval float64,
	c cache.Cache,
	rng *rand.Rand,
	logger *logrus.Entry,
) (*Simulator, error) {
	if delta < 1 {
		return nil, common.NewSimErr("simulator", common.InvalidConfig,
			fmt.Sprintf("delta %d, must be >= 1", delta))
	}
	if delay == nil {
		return nil, common.NewSimErr("simulator", common.InvalidConfig, "nil delay")
	}
	if dropProb < 0 || dropProb >= 1 {
		return nil, common.NewSimErr("simulator", common.InvalidConfig,
			fmt.Sprintf("drop probability %f, must be in [0,1)", dropProb))
	}
	if samplingEval < 0 || samplingEval > 1 {
		return nil, common.NewSimErr("simulator", common.InvalidConfig,
			fmt.Sprintf("sampling eval %f, must be in [0,1]", samplingEval))
	}
	if c == nil || rng == nil {
		return nil, common.NewSimErr("simulator", common.InvalidConfig, "nil cache or rng")
	}
	for i, n := range nodes {
		if n.ID() != core.NodeID(i) {
			return nil, common.NewSimErr("simulator", common.InvalidConfig,
				fmt.Sprintf("node at position %d has id %d", i, n.ID()))
		}
	}

	return &Simulator{
		nodes:        nodes,
		dispatcher:   dispatcher,
		delta:        delta,
		protocol:     protocol,
		delay:        delay,
		dropProb:     dropProb,
		samplingEval: samplingEval,
		cache:        c,
		rng:          rng,
		logger:       logger.WithField("component", "simulator"),
		queue:        map[int][]*core.Message{},
		report:       NewReport(),
	}, nil
}

// InitNodes initializes every node's model in ascending id order, training
// each on its own assignment once before any gossip happens.
func (s *Simulator) InitNodes() {
	for _, n := range s.nodes {
		n.InitModel(true)
	}
}

// Start runs nRounds gossip rounds of delta ticks each.
func (s *Simulator) Start(nRounds int) (*Report, error) {
	total := nRounds * s.delta

	for t := 0; t < total; t++ {
		for _, n := range s.nodes {
			if !n.TimedOut(t) {
				continue
			}

			peer := n.Peer()
			msg, err := n.Send(t, peer, s.protocol)
			if err != nil {
				if common.Is(err, common.UnsupportedProtocol) {
					s.report.FailedMessages++
					s.logger.WithFields(logrus.Fields{
						"node":  n.ID(),
						"error": err,
					}).Warning("Send rejected")
					continue
				}
				return s.report, err
			}
			s.enqueue(t, msg)
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

// Report returns the run's counters and evaluation series.
func (s *Simulator) Report() *Report {
	return s.report
}

// deliver hands every message scheduled for tick t to its receiver and
// requeues the replies.
func (s *Simulator) deliver(t int) error {
	msgs := s.queue[t]
	delete(s.queue, t)

	for _, msg := range msgs {
		reply, err := s.nodes[msg.Receiver].Receive(t, msg)
		if err != nil {
			return err
		}
		if reply != nil {
			s.enqueue(t, reply)
		}
	}

	return nil
}

// enqueue schedules a message at least one tick in the future, or drops it.
// A dropped message's snapshot would otherwise sit in the cache forever, so
// its key is released here.
func (s *Simulator) enqueue(t int, msg *core.Message) {
	if s.dropProb > 0 && s.rng.Float64() < s.dropProb {
		s.report.DroppedMessages++
		releaseKey(s.cache, msg, s.logger)
		return
	}

	d := s.delay.Get(msg, s.rng)
	if d < 1 {
		d = 1
	}

	s.queue[t+d] = append(s.queue[t+d], msg)
	s.report.SentMessages++
}

// evaluate scores the population at the end of a round: every node against
// the global held-out set, and a sampled subset against their own splits.
func (s *Simulator) evaluate(round int) {
	evs := make([]evaluator, len(s.nodes))
	for i, n := range s.nodes {
		evs[i] = n
	}
	globalEval(s.report, round, s.dispatcher, evs)
	localEval(s.report, round, s.samplingEval, evs, s.rng)
}

func globalEval(report *Report, round int, dispatcher *data.Dispatcher, nodes []evaluator) {
	ext := dispatcher.EvalSet()
	if ext.Len() == 0 {
		return
	}

	all := make([]map[string]float64, 0, len(nodes))
	for _, n := range nodes {
		all = append(all, n.Evaluate(&ext))
	}
	report.AddGlobalEval(round, meanScores(all))
}

func localEval(report *Report, round int, fraction float64, nodes []evaluator, rng *rand.Rand) {
	if fraction <= 0 {
		return
	}

	withTest := []evaluator{}
	for _, n := range nodes {
		if n.HasTest() {
			withTest = append(withTest, n)
		}
	}
	if len(withTest) == 0 {
		return
	}

	k := int(math.Ceil(fraction * float64(len(withTest))))
	if k > len(withTest) {
		k = len(withTest)
	}
	idx := rng.Perm(len(withTest))[:k]
	sort.Ints(idx)

	all := make([]map[string]float64, 0, k)
	for _, i := range idx {
		all = append(all, withTest[i].Evaluate(nil))
	}
	report.AddLocalEval(round, meanScores(all))
}

// releaseKey pops a dead message's snapshot so the shared cache stays
// bounded. A miss here is a bug elsewhere, so it is logged loudly.
func releaseKey(c cache.Cache, msg *core.Message, logger *logrus.Entry) {
	if msg.Value == nil || msg.Value.Key == "" {
		return
	}
	if _, err := c.Pop(msg.Value.Key); err != nil {
		logger.WithFields(logrus.Fields{
			"key":   msg.Value.Key,
			"error": err,
		}).Error("Releasing dropped message")
	}
}

// All2AllSimulator drives All2AllNodes, whose rounds are collective: a
// timed-out node first merges everything it has heard, then pushes its new
// snapshot to every peer at once.
type All2AllSimulator struct {
	nodes        []*node.All2AllNode
	dispatcher   *data.Dispatcher
	delta        int
	delay        core.Delay
	dropProb     float64
	samplingEval float64

	cache  cache.Cache
	rng    *rand.Rand
	logger *logrus.Entry

	queue  map[int][]*core.Message
	report *Report
}

// NewAll2AllSimulator ...
func NewAll2AllSimulator(
	nodes []*node.All2AllNode,
	dispatcher *data.Dispatcher,
	delta int,
	delay core.Delay,
	dropProb float64,
	samplingEval float64,
	c cache.Cache,
	rng *rand.Rand,
	logger *logrus.Entry,
) (*All2AllSimulator, error) {
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

	return &All2AllSimulator{
		nodes:        nodes,
		dispatcher:   dispatcher,
		delta:        delta,
		delay:        delay,
		dropProb:     dropProb,
		samplingEval: samplingEval,
		cache:        c,
		rng:          rng,
		logger:       logger.WithField("component", "all2all-simulator"),
		queue:        map[int][]*core.Message{},
		report:       NewReport(),
	}, nil
}

// InitNodes ...
func (s *All2AllSimulator) InitNodes() {
	for _, n := range s.nodes {
		n.InitModel(true)
	}
}

// Start runs nRounds rounds, asking mixing for each firing node's merge
// weights before its batched merge.
func (s *All2AllSimulator) Start(mixing MixingWeights, nRounds int) (*Report, error) {
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
				msg, err := n.Send(t, peer, core.ProtocolPush)
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
func (s *All2AllSimulator) Report() *Report {
	return s.report
}

func (s *All2AllSimulator) deliver(t int) error {
	msgs := s.queue[t]
	delete(s.queue, t)

	for _, msg := range msgs {
		if err := s.nodes[msg.Receiver].Receive(t, msg); err != nil {
			return err
		}
	}

	return nil
}

func (s *All2AllSimulator) enqueue(t int, msg *core.Message) {
	if s.dropProb > 0 && s.rng.Float64() < s.dropProb {
		s.report.DroppedMessages++
		releaseKey(s.cache, msg, s.logger)
		return
	}

	d := s.delay.Get(msg, s.rng)
	if d < 1 {
		d = 1
	}

	s.queue[t+d] = append(s.queue[t+d], msg)
	s.report.SentMessages++
}

func (s *All2AllSimulator) evaluate(round int) {
	evs := make([]evaluator, len(s.nodes))
	for i, n := range s.nodes {
		evs[i] = n
	}
	globalEval(s.report, round, s.dispatcher, evs)
	localEval(s.report, round, s.samplingEval, evs, s.rng)
}
