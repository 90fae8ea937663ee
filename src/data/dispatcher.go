package data

import (
	"fmt"
	"math/rand"

	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
)

// Dispatcher assigns data to nodes by shuffling the handler's examples and
// dealing them out uniformly. It is consumed only at node construction.
type Dispatcher struct {
	handler       *ClassificationDataHandler
	n             int
	evalOnUser    bool
	trAssignments [][]int
	teAssignments [][]int
}

// NewDispatcher creates a Dispatcher over n nodes and performs the uniform
// assignment with the supplied generator. When evalOnUser is true each node
// also receives a private slice of the evaluation set; otherwise nodes carry
// no held-out split and evaluation happens on the global evaluation set.
func NewDispatcher(handler *ClassificationDataHandler, n int, evalOnUser bool, rng *rand.Rand) (*Dispatcher, error) {
	if n < 1 {
		return nil, common.NewSimErr("data", common.InvalidConfig,
			fmt.Sprintf("dispatcher needs at least 1 node, got %d", n))
	}
	if handler.Size() < n {
		return nil, common.NewSimErr("data", common.InvalidConfig,
			fmt.Sprintf("%d training examples for %d nodes", handler.Size(), n))
	}

	d := &Dispatcher{
		handler:    handler,
		n:          n,
		evalOnUser: evalOnUser,
	}
	d.Assign(rng)

	return d, nil
}

// Assign shuffles and re-deals the data.
func (d *Dispatcher) Assign(rng *rand.Rand) {
	d.trAssignments = deal(d.handler.Size(), d.n, rng)
	if d.evalOnUser {
		d.teAssignments = deal(d.handler.EvalSize(), d.n, rng)
	} else {
		d.teAssignments = make([][]int, d.n)
	}
}

// SetAssignments installs explicit per-node index assignments instead of the
// uniform deal. teAssignments may be nil.
func (d *Dispatcher) SetAssignments(trAssignments, teAssignments [][]int) error {
	if len(trAssignments) != d.n {
		return common.NewSimErr("data", common.InvalidConfig,
			fmt.Sprintf("%d train assignments for %d nodes", len(trAssignments), d.n))
	}
	if teAssignments != nil && len(teAssignments) != d.n {
		return common.NewSimErr("data", common.InvalidConfig,
			fmt.Sprintf("%d eval assignments for %d nodes", len(teAssignments), d.n))
	}

	d.trAssignments = trAssignments
	if teAssignments != nil {
		d.teAssignments = teAssignments
	} else {
		d.teAssignments = make([][]int, d.n)
	}

	return nil
}

// At returns the data slice of the given node.
func (d *Dispatcher) At(id core.NodeID) NodeData {
	nd := NodeData{
		Train: d.handler.At(d.trAssignments[id], false),
	}
	if idx := d.teAssignments[id]; len(idx) > 0 {
		eval := d.handler.At(idx, true)
		nd.Eval = &eval
	}
	return nd
}

// Size returns the number of nodes served by the dispatcher.
func (d *Dispatcher) Size() int {
	return d.n
}

// EvalSet returns the global held-out split.
func (d *Dispatcher) EvalSet() Dataset {
	return d.handler.EvalSet()
}

// deal shuffles [0, total) and splits it into n near-equal groups.
func deal(total, n int, rng *rand.Rand) [][]int {
	perm := rng.Perm(total)
	groups := make([][]int, n)
	for i, j := range perm {
		groups[i%n] = append(groups[i%n], j)
	}
	return groups
}
