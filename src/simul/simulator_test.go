package simul

import (
	"math/rand"
	"testing"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/data"
	"github.com/gossiplearn/gossiplearn/src/model"
	"github.com/gossiplearn/gossiplearn/src/node"
	"github.com/gossiplearn/gossiplearn/src/p2p"
	"github.com/sirupsen/logrus"
)

// twoClusters builds a linearly separable 2-dim classification set.
func twoClusters(size int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, size)
	y := make([]int, size)
	for i := range X {
		center := -1.0
		if i%2 == 0 {
			center = 1.0
			y[i] = 1
		}
		X[i] = []float64{
			center + rng.NormFloat64()*0.2,
			center + rng.NormFloat64()*0.2,
		}
	}
	return X, y
}

func testDispatcher(t *testing.T, n int, evalOnUser bool, seed int64) *data.Dispatcher {
	X, y := twoClusters(80, seed)
	rng := rand.New(rand.NewSource(seed))
	handler, err := data.NewClassificationDataHandler(X, y, 0.25, rng)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	dispatcher, err := data.NewDispatcher(handler, n, evalOnUser, rng)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return dispatcher
}

func plainExchangers(
	t *testing.T,
	dispatcher *data.Dispatcher,
	net p2p.Network,
	roundLen int,
	c cache.Cache,
	rng *rand.Rand,
	logger *logrus.Entry,
) []Exchanger {
	proto, err := model.NewLinearHandler(model.NewAdaLine(2), model.MergeUpdate, 0.1, 0, c)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	pop, err := node.Generate(dispatcher, net, proto, roundLen, true, c, rng, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	nodes := make([]Exchanger, dispatcher.Size())
	for i := range nodes {
		nodes[i] = pop[core.NodeID(i)]
	}
	return nodes
}

// tickRecorder wraps an Exchanger and records the ticks at which it fired.
type tickRecorder struct {
	Exchanger
	fired []int
}

func (r *tickRecorder) TimedOut(t int) bool {
	out := r.Exchanger.TimedOut(t)
	if out {
		r.fired = append(r.fired, t)
	}
	return out
}

func TestSimulatorFiresOnSchedule(t *testing.T) {
	const (
		n        = 4
		roundLen = 10
	)

	logger := common.NewTestEntry(t, logrus.DebugLevel)
	c := cache.NewInmemCache()
	rng := rand.New(rand.NewSource(7))

	net, err := p2p.NewStaticNetwork(n, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	dispatcher := testDispatcher(t, n, false, 7)
	nodes := plainExchangers(t, dispatcher, net, roundLen, c, rng, logger)

	rec := &tickRecorder{Exchanger: nodes[0]}
	nodes[0] = rec

	sim, err := NewSimulator(nodes, dispatcher, roundLen, core.ProtocolPush,
		core.ConstantDelay(1), 0, 0, c, rng, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	sim.InitNodes()
	if _, err := sim.Start(2); err != nil {
		t.Fatalf("err: %v", err)
	}

	d := nodes[0].(*tickRecorder).Exchanger.(*node.GossipNode).Delta()
	if len(rec.fired) != 2 {
		t.Fatalf("node 0 fired %d times over 2 rounds, want 2 (at %v)", len(rec.fired), rec.fired)
	}
	if rec.fired[0] != d || rec.fired[1] != d+roundLen {
		t.Fatalf("node 0 fired at %v, want [%d %d]", rec.fired, d, d+roundLen)
	}
}

func TestSimulatorRun(t *testing.T) {
	const (
		n        = 4
		roundLen = 10
		nRounds  = 5
	)

	logger := common.NewTestEntry(t, logrus.DebugLevel)
	c := cache.NewInmemCache()
	rng := rand.New(rand.NewSource(13))

	net, err := p2p.NewStaticNetwork(n, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	dispatcher := testDispatcher(t, n, true, 13)
	nodes := plainExchangers(t, dispatcher, net, roundLen, c, rng, logger)

	sim, err := NewSimulator(nodes, dispatcher, roundLen, core.ProtocolPushPull,
		core.UniformDelay{Min: 1, Max: 3}, 0.1, 0.5, c, rng, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	sim.InitNodes()
	report, err := sim.Start(nRounds)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if report.SentMessages == 0 {
		t.Fatal("no messages sent over 5 rounds")
	}
	if got := len(report.GlobalEvaluations()); got != nRounds {
		t.Fatalf("%d global evaluations, want %d", got, nRounds)
	}
	if got := len(report.LocalEvaluations()); got != nRounds {
		t.Fatalf("%d local evaluations, want %d", got, nRounds)
	}

	for _, rs := range report.GlobalEvaluations() {
		acc, ok := rs.Scores["accuracy"]
		if !ok {
			t.Fatalf("round %d scores missing accuracy: %v", rs.Round, rs.Scores)
		}
		if acc < 0 || acc > 1 {
			t.Fatalf("round %d accuracy %f outside [0,1]", rs.Round, acc)
		}
	}

	// Clusters are well separated, so the population should do better
	// than coin flipping by the last round.
	last := report.GlobalEvaluations()[nRounds-1]
	if last.Scores["accuracy"] <= 0.5 {
		t.Fatalf("final accuracy %f, want > 0.5", last.Scores["accuracy"])
	}
}

func TestSimulatorCacheStaysBounded(t *testing.T) {
	const n = 4

	logger := common.NewTestEntry(t, logrus.DebugLevel)
	c := cache.NewInmemCache()
	rng := rand.New(rand.NewSource(21))

	net, err := p2p.NewStaticNetwork(n, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	dispatcher := testDispatcher(t, n, false, 21)
	nodes := plainExchangers(t, dispatcher, net, 5, c, rng, logger)

	sim, err := NewSimulator(nodes, dispatcher, 5, core.ProtocolPush,
		core.ConstantDelay(1), 0.5, 0, c, rng, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	sim.InitNodes()
	report, err := sim.Start(10)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// Every cached snapshot is either delivered or released on drop, so
	// only messages still in flight at the end may hold a key.
	inFlight := 0
	for _, msgs := range sim.queue {
		inFlight += len(msgs)
	}
	if c.Len() != inFlight {
		t.Fatalf("cache holds %d snapshots with %d messages in flight (dropped %d)",
			c.Len(), inFlight, report.DroppedMessages)
	}
}

func TestAll2AllSimulatorRun(t *testing.T) {
	const (
		n        = 3
		roundLen = 4
		nRounds  = 5
	)

	logger := common.NewTestEntry(t, logrus.DebugLevel)
	c := cache.NewInmemCache()
	rng := rand.New(rand.NewSource(29))

	net, err := p2p.NewStaticNetwork(n, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	dispatcher := testDispatcher(t, n, false, 29)

	proto, err := model.NewWeightedLinearHandler(model.NewAdaLine(2), model.MergeUpdate, 0.1, 0, c)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	pop, err := node.GenerateAll2All(dispatcher, net, proto, roundLen, true, c, rng, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	nodes := make([]*node.All2AllNode, n)
	for i := range nodes {
		nodes[i] = pop[core.NodeID(i)]
	}

	sim, err := NewAll2AllSimulator(nodes, dispatcher, roundLen,
		core.ConstantDelay(1), 0, 0, c, rng, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	sim.InitNodes()
	report, err := sim.Start(NewUniformMixing(net), nRounds)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// Every firing node pushes to all n-1 peers.
	if report.SentMessages%(n-1) != 0 {
		t.Fatalf("%d sent messages, want a multiple of %d", report.SentMessages, n-1)
	}
	if got := len(report.GlobalEvaluations()); got != nRounds {
		t.Fatalf("%d global evaluations, want %d", got, nRounds)
	}
}

func TestChordSimulatorRun(t *testing.T) {
	const (
		n        = 8
		roundLen = 5
		nRounds  = 4
	)

	logger := common.NewTestEntry(t, logrus.DebugLevel)
	c := cache.NewInmemCache()
	rng := rand.New(rand.NewSource(31))

	net, err := p2p.NewStaticNetwork(n, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	dispatcher := testDispatcher(t, n, false, 31)

	proto, err := model.NewWeightedLinearHandler(model.NewAdaLine(2), model.MergeUpdate, 0.1, 0, c)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	pop, err := node.GenerateChord(dispatcher, net, proto, roundLen, true, c, rng, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	nodes := make([]*node.ChordNode, n)
	for i := range nodes {
		nodes[i] = pop[core.NodeID(i)]
	}

	sim, err := NewChordSimulator(nodes, dispatcher, roundLen,
		core.ConstantDelay(1), 0, 0, c, rng, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	sim.InitNodes()
	report, err := sim.Start(NewUniformMixing(net), nRounds)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// Fan-out per firing node is the finger table size, log2(8)+1 = 4.
	if report.SentMessages%4 != 0 {
		t.Fatalf("%d sent messages, want a multiple of 4", report.SentMessages)
	}
	if got := len(report.GlobalEvaluations()); got != nRounds {
		t.Fatalf("%d global evaluations, want %d", got, nRounds)
	}
}

func TestUniformMixing(t *testing.T) {
	net, err := p2p.NewStaticNetwork(4, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	w := NewUniformMixing(net).Weights(0, 2)
	if len(w) != 3 {
		t.Fatalf("got %d weights for 2 sources, want 3", len(w))
	}
	sum := 0.0
	for _, wi := range w {
		sum += wi
		if wi != w[0] {
			t.Fatalf("weights not uniform: %v", w)
		}
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("weights sum to %f, want 1", sum)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	logger := common.NewTestEntry(t, logrus.DebugLevel)
	c := cache.NewInmemCache()
	rng := rand.New(rand.NewSource(1))
	dispatcher := testDispatcher(t, 2, false, 1)

	net, err := p2p.NewStaticNetwork(2, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	nodes := plainExchangers(t, dispatcher, net, 10, c, rng, logger)

	if _, err := NewSimulator(nodes, dispatcher, 0, core.ProtocolPush,
		core.ConstantDelay(1), 0, 0, c, rng, logger); !common.Is(err, common.InvalidConfig) {
		t.Fatalf("delta 0: err = %v, want InvalidConfig", err)
	}
	if _, err := NewSimulator(nodes, dispatcher, 10, core.ProtocolPush,
		nil, 0, 0, c, rng, logger); !common.Is(err, common.InvalidConfig) {
		t.Fatalf("nil delay: err = %v, want InvalidConfig", err)
	}
	if _, err := NewSimulator(nodes, dispatcher, 10, core.ProtocolPush,
		core.ConstantDelay(1), 1.0, 0, c, rng, logger); !common.Is(err, common.InvalidConfig) {
		t.Fatalf("drop prob 1: err = %v, want InvalidConfig", err)
	}
}
