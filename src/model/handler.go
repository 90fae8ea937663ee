package model

import (
	"fmt"
	"math/rand"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/data"
)

// CreateModelMode controls how an incoming snapshot is combined with the
// local model and the local training data.
type CreateModelMode uint8

const (
	// Update replaces the local parameters with the received ones, then
	// trains on local data.
	Update CreateModelMode = iota
	// MergeUpdate averages the received parameters into the local ones, then
	// trains on local data.
	MergeUpdate
	// UpdateMerge trains on local data first, then averages.
	UpdateMerge
)

// Snapshot is the opaque, content-addressed copy of a model exchanged via
// cache keys rather than inline payload.
type Snapshot struct {
	Owner    core.NodeID `json:"owner"`
	Params   []float64   `json:"params"`
	NUpdates int         `json:"n_updates"`
}

// Handler owns a node's model and implements the train/merge/evaluate
// contract the protocol engine relies on.
type Handler interface {
	// Init resets the model weights.
	Init(rng *rand.Rand)

	// Update trains the model in place on the given data.
	Update(d data.Dataset)

	// Merge combines a received snapshot with the local model and the local
	// training data, according to the handler's CreateModelMode.
	Merge(recv *Snapshot, d data.Dataset)

	// Caching snapshots the current model into the shared cache and returns
	// the key.
	Caching(owner core.NodeID) (cache.Key, error)

	// Evaluate scores the model against the given data.
	Evaluate(d data.Dataset) map[string]float64

	// Copy returns a handler with identical configuration but independent
	// state.
	Copy() Handler

	// NUpdates returns how many merge/update steps the model has absorbed.
	NUpdates() int
}

// SamplingHandler additionally merges structural samples of the model.
type SamplingHandler interface {
	Handler
	SampleSize() float64
	MergeSample(recv *Snapshot, d data.Dataset, sample []int)
}

// PartitionedHandler additionally merges single named partitions.
type PartitionedHandler interface {
	Handler
	NParts() int
	MergePartition(recv *Snapshot, d data.Dataset, pid int)
}

// WeightedHandler additionally merges several snapshots at once under
// per-source mixing weights.
type WeightedHandler interface {
	Handler
	MergeWeighted(recvs []*Snapshot, d data.Dataset, weights []float64) error
}

// LinearHandler is the Handler over flat-parameter linear nets. All variant
// handlers build on it.
type LinearHandler struct {
	net         Net
	mode        CreateModelMode
	lr          float64
	weightDecay float64
	nUpdates    int
	cache       cache.Cache
}

// NewLinearHandler ...
func NewLinearHandler(net Net, mode CreateModelMode, lr, weightDecay float64, c cache.Cache) (*LinearHandler, error) {
	if net == nil {
		return nil, common.NewSimErr("model", common.InvalidConfig, "nil net")
	}
	if c == nil {
		return nil, common.NewSimErr("model", common.InvalidConfig, "nil cache")
	}
	if lr <= 0 {
		return nil, common.NewSimErr("model", common.InvalidConfig,
			fmt.Sprintf("learning rate %f", lr))
	}
	return &LinearHandler{
		net:         net,
		mode:        mode,
		lr:          lr,
		weightDecay: weightDecay,
		cache:       c,
	}, nil
}

// Init ...
func (h *LinearHandler) Init(rng *rand.Rand) {
	h.net.InitWeights(rng)
	h.nUpdates = 0
}

// Update performs one training pass over d.
func (h *LinearHandler) Update(d data.Dataset) {
	for i := range d.X {
		h.net.Fit(d.X[i], d.Y[i], h.lr, h.weightDecay)
	}
	h.nUpdates++
}

// Merge ...
func (h *LinearHandler) Merge(recv *Snapshot, d data.Dataset) {
	h.mergeAt(recv, d, nil)
}

// mergeAt runs the configured merge mode over the given coordinate indices;
// nil means all coordinates.
func (h *LinearHandler) mergeAt(recv *Snapshot, d data.Dataset, idx []int) {
	switch h.mode {
	case Update:
		h.copyParams(recv, idx)
		h.Update(d)
	case MergeUpdate:
		h.averageParams(recv, idx)
		h.Update(d)
	case UpdateMerge:
		h.Update(d)
		h.averageParams(recv, idx)
	}
}

func (h *LinearHandler) copyParams(recv *Snapshot, idx []int) {
	params := h.net.Params()
	if idx == nil {
		copy(params, recv.Params)
	} else {
		for _, i := range idx {
			params[i] = recv.Params[i]
		}
	}
	if recv.NUpdates > h.nUpdates {
		h.nUpdates = recv.NUpdates
	}
}

func (h *LinearHandler) averageParams(recv *Snapshot, idx []int) {
	params := h.net.Params()
	if idx == nil {
		for i := range params {
			params[i] = (params[i] + recv.Params[i]) / 2
		}
	} else {
		for _, i := range idx {
			params[i] = (params[i] + recv.Params[i]) / 2
		}
	}
	if recv.NUpdates > h.nUpdates {
		h.nUpdates = recv.NUpdates
	}
}

// Caching ...
func (h *LinearHandler) Caching(owner core.NodeID) (cache.Key, error) {
	return h.cache.Put(h.snapshot(owner))
}

func (h *LinearHandler) snapshot(owner core.NodeID) *Snapshot {
	params := make([]float64, len(h.net.Params()))
	copy(params, h.net.Params())
	return &Snapshot{
		Owner:    owner,
		Params:   params,
		NUpdates: h.nUpdates,
	}
}

// Evaluate returns the accuracy and error rate of the model on d.
func (h *LinearHandler) Evaluate(d data.Dataset) map[string]float64 {
	if d.Len() == 0 {
		return map[string]float64{}
	}

	correct := 0
	for i := range d.X {
		if h.net.Predict(d.X[i]) == d.Y[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(d.Len())

	return map[string]float64{
		"accuracy": accuracy,
		"error":    1 - accuracy,
	}
}

// Copy ...
func (h *LinearHandler) Copy() Handler {
	cp := h.copyBase()
	return &cp
}

func (h *LinearHandler) copyBase() LinearHandler {
	return LinearHandler{
		net:         h.net.Copy(),
		mode:        h.mode,
		lr:          h.lr,
		weightDecay: h.weightDecay,
		nUpdates:    h.nUpdates,
		cache:       h.cache,
	}
}

// NUpdates ...
func (h *LinearHandler) NUpdates() int {
	return h.nUpdates
}

// Net exposes the underlying net.
func (h *LinearHandler) Net() Net {
	return h.net
}

// SamplingLinearHandler merges structural samples of the exchanged model,
// bounding per-exchange cost independently of total model size.
type SamplingLinearHandler struct {
	LinearHandler
	sampleSize float64
}

// NewSamplingLinearHandler ...
func NewSamplingLinearHandler(net Net, mode CreateModelMode, lr, weightDecay, sampleSize float64, c cache.Cache) (*SamplingLinearHandler, error) {
	base, err := NewLinearHandler(net, mode, lr, weightDecay, c)
	if err != nil {
		return nil, err
	}
	if sampleSize <= 0 || sampleSize > 1 {
		return nil, common.NewSimErr("model", common.InvalidConfig,
			fmt.Sprintf("sample size %f not in (0,1]", sampleSize))
	}
	return &SamplingLinearHandler{
		LinearHandler: *base,
		sampleSize:    sampleSize,
	}, nil
}

// SampleSize ...
func (h *SamplingLinearHandler) SampleSize() float64 {
	return h.sampleSize
}

// MergeSample merges only the sampled coordinates of the received snapshot.
func (h *SamplingLinearHandler) MergeSample(recv *Snapshot, d data.Dataset, sample []int) {
	h.mergeAt(recv, d, sample)
}

// Copy ...
func (h *SamplingLinearHandler) Copy() Handler {
	return &SamplingLinearHandler{
		LinearHandler: h.copyBase(),
		sampleSize:    h.sampleSize,
	}
}

// PartitionedLinearHandler merges single named partitions of the model,
// leaving all other partitions untouched.
type PartitionedLinearHandler struct {
	LinearHandler
	partition *Partition
}

// NewPartitionedLinearHandler ...
func NewPartitionedLinearHandler(net Net, mode CreateModelMode, lr, weightDecay float64, nParts int, c cache.Cache) (*PartitionedLinearHandler, error) {
	base, err := NewLinearHandler(net, mode, lr, weightDecay, c)
	if err != nil {
		return nil, err
	}
	partition, err := NewPartition(len(net.Params()), nParts)
	if err != nil {
		return nil, err
	}
	return &PartitionedLinearHandler{
		LinearHandler: *base,
		partition:     partition,
	}, nil
}

// NParts ...
func (h *PartitionedLinearHandler) NParts() int {
	return h.partition.NParts()
}

// MergePartition merges only partition pid of the received snapshot.
func (h *PartitionedLinearHandler) MergePartition(recv *Snapshot, d data.Dataset, pid int) {
	start, end := h.partition.Range(pid)
	idx := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		idx = append(idx, i)
	}
	h.mergeAt(recv, d, idx)
}

// Copy ...
func (h *PartitionedLinearHandler) Copy() Handler {
	return &PartitionedLinearHandler{
		LinearHandler: h.copyBase(),
		partition:     h.partition,
	}
}

// WeightedLinearHandler merges batches of snapshots under explicit mixing
// weights, as used by the structured-overlay and all-to-all nodes.
type WeightedLinearHandler struct {
	LinearHandler
}

// NewWeightedLinearHandler ...
func NewWeightedLinearHandler(net Net, mode CreateModelMode, lr, weightDecay float64, c cache.Cache) (*WeightedLinearHandler, error) {
	base, err := NewLinearHandler(net, mode, lr, weightDecay, c)
	if err != nil {
		return nil, err
	}
	return &WeightedLinearHandler{LinearHandler: *base}, nil
}

// MergeWeighted combines the local model with the received snapshots as a
// convex combination. weights[0] applies to the local model, weights[i+1] to
// recvs[i].
func (h *WeightedLinearHandler) MergeWeighted(recvs []*Snapshot, d data.Dataset, weights []float64) error {
	if len(weights) != len(recvs)+1 {
		return common.NewSimErr("model", common.InvalidConfig,
			fmt.Sprintf("%d weights for %d sources", len(weights), len(recvs)+1))
	}

	params := h.net.Params()

	if h.mode == UpdateMerge {
		h.Update(d)
	}

	for i := range params {
		mixed := weights[0] * params[i]
		for j, recv := range recvs {
			mixed += weights[j+1] * recv.Params[i]
		}
		params[i] = mixed
	}

	for _, recv := range recvs {
		if recv.NUpdates > h.nUpdates {
			h.nUpdates = recv.NUpdates
		}
	}

	if h.mode != UpdateMerge {
		h.Update(d)
	}

	return nil
}

// Copy ...
func (h *WeightedLinearHandler) Copy() Handler {
	return &WeightedLinearHandler{LinearHandler: h.copyBase()}
}
