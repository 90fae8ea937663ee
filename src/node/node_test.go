package node

import (
	"math/rand"
	"testing"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/data"
	"github.com/gossiplearn/gossiplearn/src/model"
	"github.com/gossiplearn/gossiplearn/src/p2p"
	"github.com/sirupsen/logrus"
)

type testFixture struct {
	net    *p2p.StaticNetwork
	cache  *cache.InmemCache
	logger *logrus.Entry
}

func newFixture(t *testing.T, size int) *testFixture {
	net, err := p2p.NewStaticNetwork(size, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return &testFixture{
		net:    net,
		cache:  cache.NewInmemCache(),
		logger: common.NewTestEntry(t, logrus.DebugLevel),
	}
}

func (f *testFixture) handler(t *testing.T) *model.LinearHandler {
	h, err := model.NewLinearHandler(model.NewAdaLine(2), model.MergeUpdate, 0.1, 0, f.cache)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return h
}

func (f *testFixture) trainData() data.NodeData {
	return data.NodeData{
		Train: data.Dataset{
			X: [][]float64{{1, 0}, {0, 1}, {-1, 0}, {0, -1}},
			Y: []int{1, 1, 0, 0},
		},
	}
}

func (f *testFixture) node(t *testing.T, idx core.NodeID, roundLen int, syncMode bool, seed int64) *GossipNode {
	n, err := NewGossipNode(idx, f.trainData(), roundLen, f.handler(t), f.net, f.cache,
		syncMode, rand.New(rand.NewSource(seed)), f.logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return n
}

func TestSyncTimedOut(t *testing.T) {
	f := newFixture(t, 4)

	const roundLen = 10

	n := f.node(t, 0, roundLen, true, 1)

	d := n.Delta()
	if d < 0 || d >= roundLen {
		t.Fatalf("sync delta %d outside [0, %d)", d, roundLen)
	}

	for tick := 0; tick < 3*roundLen; tick++ {
		want := tick%roundLen == d
		if got := n.TimedOut(tick); got != want {
			t.Fatalf("TimedOut(%d) = %v, want %v (delta %d)", tick, got, want, d)
		}
	}
}

func TestAsyncTimedOut(t *testing.T) {
	f := newFixture(t, 4)

	n := f.node(t, 0, 10, false, 1)

	d := n.Delta()
	if d < 1 {
		t.Fatalf("async delta %d below 1", d)
	}

	for tick := 0; tick < 5*d; tick++ {
		want := tick%d == 0
		if got := n.TimedOut(tick); got != want {
			t.Fatalf("TimedOut(%d) = %v, want %v (delta %d)", tick, got, want, d)
		}
	}
}

func TestDeltaFixedForLifetime(t *testing.T) {
	f := newFixture(t, 4)

	n := f.node(t, 0, 10, true, 3)

	d := n.Delta()
	for tick := 0; tick < 100; tick++ {
		n.TimedOut(tick)
	}
	if n.Delta() != d {
		t.Fatalf("delta changed from %d to %d", d, n.Delta())
	}
}

func TestPeerNeverSelf(t *testing.T) {
	f := newFixture(t, 5)

	n := f.node(t, 2, 10, true, 1)

	for i := 0; i < 200; i++ {
		if p := n.Peer(); p == n.ID() {
			t.Fatal("node picked itself as peer")
		}
	}
}

func TestPeerFallbackOnEmptyNeighbourhood(t *testing.T) {
	// Node 2 is isolated in this topology; the pick must fall back to a
	// uniform choice over all other nodes, not fail.
	topology := [][]float64{
		{0, 1, 0},
		{1, 0, 0},
		{0, 0, 0},
	}
	net, err := p2p.NewStaticNetwork(3, topology)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	f := newFixture(t, 3)

	n, err := NewGossipNode(2, f.trainData(), 10, f.handler(t), net, f.cache,
		true, rand.New(rand.NewSource(1)), f.logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	seen := map[core.NodeID]bool{}
	for i := 0; i < 100; i++ {
		p := n.Peer()
		if p == n.ID() {
			t.Fatal("fallback picked self")
		}
		seen[p] = true
	}
	if len(seen) != 2 {
		t.Fatalf("fallback only reached %d of 2 peers", len(seen))
	}
}

func TestPushRoundtrip(t *testing.T) {
	f := newFixture(t, 2)

	sender := f.node(t, 0, 10, true, 1)
	receiver := f.node(t, 1, 10, true, 2)

	sender.InitModel(true)
	receiver.InitModel(true)

	msg, err := sender.Send(3, receiver.ID(), core.ProtocolPush)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if msg.Type != core.Push || msg.Sender != 0 || msg.Receiver != 1 {
		t.Fatalf("unexpected message %v", msg)
	}
	if f.cache.Len() != 1 {
		t.Fatalf("cache holds %d entries after send", f.cache.Len())
	}

	reply, err := receiver.Receive(4, msg)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reply != nil {
		t.Fatalf("push produced a reply %v", reply)
	}
	if f.cache.Len() != 0 {
		t.Fatalf("cache holds %d entries after receive", f.cache.Len())
	}
}

func TestPullProducesReply(t *testing.T) {
	f := newFixture(t, 2)

	sender := f.node(t, 0, 10, true, 1)
	receiver := f.node(t, 1, 10, true, 2)
	receiver.InitModel(true)

	msg, err := sender.Send(3, receiver.ID(), core.ProtocolPull)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if msg.Value != nil {
		t.Fatal("pull carried a payload")
	}

	reply, err := receiver.Receive(4, msg)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reply == nil || reply.Type != core.Reply {
		t.Fatalf("expected a REPLY, got %v", reply)
	}
	if reply.Receiver != sender.ID() {
		t.Fatalf("reply addressed to %d", reply.Receiver)
	}

	// The reply consumes its own key on delivery.
	sender.InitModel(true)
	if _, err := sender.Receive(5, reply); err != nil {
		t.Fatalf("err: %v", err)
	}
	if f.cache.Len() != 0 {
		t.Fatalf("cache holds %d entries after exchange", f.cache.Len())
	}
}

func TestPushPullMergesThenReplies(t *testing.T) {
	f := newFixture(t, 2)

	sender := f.node(t, 0, 10, true, 1)
	receiver := f.node(t, 1, 10, true, 2)
	sender.InitModel(true)
	receiver.InitModel(true)

	msg, err := sender.Send(3, receiver.ID(), core.ProtocolPushPull)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	reply, err := receiver.Receive(4, msg)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reply == nil || reply.Type != core.Reply {
		t.Fatalf("expected a REPLY, got %v", reply)
	}
	// The pushed key was consumed, the reply key is live.
	if f.cache.Len() != 1 {
		t.Fatalf("cache holds %d entries", f.cache.Len())
	}
}

func TestUnsupportedProtocolFailsBeforeCaching(t *testing.T) {
	f := newFixture(t, 2)

	n := f.node(t, 0, 10, true, 1)

	_, err := n.Send(0, 1, core.Protocol(42))
	if err == nil {
		t.Fatal("expected error")
	}
	if !common.Is(err, common.UnsupportedProtocol) {
		t.Fatalf("expected UnsupportedProtocol, got %v", err)
	}
	if f.cache.Len() != 0 {
		t.Fatal("failed send left a cache entry behind")
	}
}

func TestDoubleDeliveryIsFatal(t *testing.T) {
	f := newFixture(t, 2)

	sender := f.node(t, 0, 10, true, 1)
	receiver := f.node(t, 1, 10, true, 2)
	sender.InitModel(true)
	receiver.InitModel(true)

	msg, err := sender.Send(3, receiver.ID(), core.ProtocolPush)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := receiver.Receive(4, msg); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Delivering the same message twice pops a consumed key.
	_, err = receiver.Receive(5, msg)
	if err == nil {
		t.Fatal("expected cache miss")
	}
	if !common.Is(err, common.CacheMiss) {
		t.Fatalf("expected CacheMiss, got %v", err)
	}
}

func TestEvaluateFallsBackToOwnSplit(t *testing.T) {
	f := newFixture(t, 2)

	nd := f.trainData()
	eval := data.Dataset{X: [][]float64{{1, 1}}, Y: []int{1}}
	nd.Eval = &eval

	n, err := NewGossipNode(0, nd, 10, f.handler(t), f.net, f.cache,
		true, rand.New(rand.NewSource(1)), f.logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	n.InitModel(true)

	if !n.HasTest() {
		t.Fatal("node should report a held-out split")
	}
	scores := n.Evaluate(nil)
	if _, ok := scores["accuracy"]; !ok {
		t.Fatalf("scores %v", scores)
	}

	// Without a held-out split, evaluation on nil yields no scores.
	bare := f.node(t, 1, 10, true, 2)
	bare.InitModel(true)
	if bare.HasTest() {
		t.Fatal("node should not report a held-out split")
	}
	if scores := bare.Evaluate(nil); len(scores) != 0 {
		t.Fatalf("scores %v", scores)
	}
}

func TestInvalidConstruction(t *testing.T) {
	f := newFixture(t, 2)

	_, err := NewGossipNode(0, f.trainData(), 0, f.handler(t), f.net, f.cache,
		true, rand.New(rand.NewSource(1)), f.logger)
	if err == nil {
		t.Fatal("expected config error for round length 0")
	}
	if !common.Is(err, common.InvalidConfig) {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}

	_, err = NewGossipNode(0, f.trainData(), 10, nil, f.net, f.cache,
		true, rand.New(rand.NewSource(1)), f.logger)
	if err == nil {
		t.Fatal("expected config error for nil handler")
	}
}
