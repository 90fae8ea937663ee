package model

import (
	"math/rand"
	"testing"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/data"
)

func linearlySeparable(n int) data.Dataset {
	rng := rand.New(rand.NewSource(7))
	d := data.Dataset{
		X: make([][]float64, n),
		Y: make([]int, n),
	}
	for i := range d.X {
		x0 := rng.Float64()*2 - 1
		x1 := rng.Float64()*2 - 1
		d.X[i] = []float64{x0, x1}
		if x0+x1 > 0 {
			d.Y[i] = 1
		}
	}
	return d
}

func TestUpdateImprovesAccuracy(t *testing.T) {
	d := linearlySeparable(200)

	h, err := NewLinearHandler(NewAdaLine(2), MergeUpdate, 0.1, 0, cache.NewInmemCache())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	h.Init(rand.New(rand.NewSource(1)))

	for i := 0; i < 10; i++ {
		h.Update(d)
	}

	scores := h.Evaluate(d)
	if scores["accuracy"] < 0.9 {
		t.Fatalf("accuracy %f after training", scores["accuracy"])
	}
	if h.NUpdates() != 10 {
		t.Fatalf("n_updates = %d", h.NUpdates())
	}
}

func TestMergeAveragesParams(t *testing.T) {
	c := cache.NewInmemCache()

	h, err := NewLinearHandler(NewAdaLine(3), MergeUpdate, 0.1, 0, c)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	copy(h.net.Params(), []float64{1, 1, 1})

	h.averageParams(&Snapshot{Params: []float64{3, 5, 7}, NUpdates: 4}, nil)

	want := []float64{2, 3, 4}
	for i, w := range want {
		if h.net.Params()[i] != w {
			t.Fatalf("param %d = %f, want %f", i, h.net.Params()[i], w)
		}
	}
	if h.NUpdates() != 4 {
		t.Fatalf("n_updates = %d", h.NUpdates())
	}
}

func TestCachingSnapshotsAreIndependent(t *testing.T) {
	c := cache.NewInmemCache()

	h, err := NewLinearHandler(NewAdaLine(2), MergeUpdate, 0.1, 0, c)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	copy(h.net.Params(), []float64{1, 2})

	key, err := h.Caching(0)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// Mutate after snapshotting; the cached copy must be unaffected.
	h.net.Params()[0] = 99

	value, err := c.Pop(key)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	snap := value.(*Snapshot)
	if snap.Params[0] != 1 || snap.Params[1] != 2 {
		t.Fatalf("snapshot params %v", snap.Params)
	}
}

func TestSampleDeterministic(t *testing.T) {
	a := Sample(0.5, 10)
	b := Sample(0.5, 10)

	if len(a) != 5 {
		t.Fatalf("sample of 0.5 over 10 has %d indices", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample not deterministic: %v vs %v", a, b)
		}
	}
}

func TestPartitionRangesCoverAllParams(t *testing.T) {
	p, err := NewPartition(10, 4)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	covered := 0
	prevEnd := 0
	for pid := 0; pid < p.NParts(); pid++ {
		start, end := p.Range(pid)
		if start != prevEnd {
			t.Fatalf("partition %d starts at %d, want %d", pid, start, prevEnd)
		}
		covered += end - start
		prevEnd = end
	}
	if covered != 10 {
		t.Fatalf("partitions cover %d of 10 params", covered)
	}
}

func TestPartitionMergeTouchesOnlyNamedSlice(t *testing.T) {
	c := cache.NewInmemCache()

	h, err := NewPartitionedLinearHandler(NewAdaLine(4), UpdateMerge, 0.1, 0, 2, c)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	copy(h.net.Params(), []float64{0, 0, 0, 0})

	recv := &Snapshot{Params: []float64{2, 2, 2, 2}}
	h.MergePartition(recv, data.Dataset{}, 1)

	params := h.net.Params()
	if params[0] != 0 || params[1] != 0 {
		t.Fatalf("partition 0 mutated: %v", params)
	}
	if params[2] != 1 || params[3] != 1 {
		t.Fatalf("partition 1 not merged: %v", params)
	}
}

func TestWeightedMergeConvexCombination(t *testing.T) {
	c := cache.NewInmemCache()

	h, err := NewWeightedLinearHandler(NewAdaLine(2), UpdateMerge, 0.1, 0, c)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	copy(h.net.Params(), []float64{3, 3})

	recvs := []*Snapshot{
		{Params: []float64{0, 0}},
		{Params: []float64{6, 6}},
	}
	weights := []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}

	if err := h.MergeWeighted(recvs, data.Dataset{}, weights); err != nil {
		t.Fatalf("err: %v", err)
	}

	for i, p := range h.net.Params() {
		if p < 2.999 || p > 3.001 {
			t.Fatalf("param %d = %f, want 3", i, p)
		}
	}

	// Mismatched weights fail eagerly.
	if err := h.MergeWeighted(recvs, data.Dataset{}, []float64{1}); err == nil {
		t.Fatal("expected weight length error")
	}
}
