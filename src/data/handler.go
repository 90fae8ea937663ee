package data

import (
	"fmt"
	"math/rand"

	"github.com/gossiplearn/gossiplearn/src/common"
)

// ClassificationDataHandler owns a classification dataset split into a train
// and an evaluation set.
type ClassificationDataHandler struct {
	train Dataset
	eval  Dataset
}

// NewClassificationDataHandler splits (X, y) into train and evaluation sets.
// testSize is the fraction of examples held out for evaluation, drawn with
// the supplied generator.
func NewClassificationDataHandler(X [][]float64, y []int, testSize float64, rng *rand.Rand) (*ClassificationDataHandler, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, common.NewSimErr("data", common.InvalidConfig,
			fmt.Sprintf("%d feature rows for %d labels", len(X), len(y)))
	}
	if testSize < 0 || testSize >= 1 {
		return nil, common.NewSimErr("data", common.InvalidConfig,
			fmt.Sprintf("test size %f not in [0,1)", testSize))
	}

	all := Dataset{X: X, Y: y}
	nTest := int(float64(len(X)) * testSize)

	perm := rng.Perm(len(X))

	return &ClassificationDataHandler{
		train: all.subset(perm[nTest:]),
		eval:  all.subset(perm[:nTest]),
	}, nil
}

// Size returns the number of training examples.
func (h *ClassificationDataHandler) Size() int {
	return h.train.Len()
}

// EvalSize returns the number of held-out examples.
func (h *ClassificationDataHandler) EvalSize() int {
	return h.eval.Len()
}

// TrainSet ...
func (h *ClassificationDataHandler) TrainSet() Dataset {
	return h.train
}

// EvalSet ...
func (h *ClassificationDataHandler) EvalSet() Dataset {
	return h.eval
}

// At returns the rows of the training set (or the evaluation set when
// evalSet is true) at the given indices.
func (h *ClassificationDataHandler) At(idx []int, evalSet bool) Dataset {
	if evalSet {
		return h.eval.subset(idx)
	}
	return h.train.subset(idx)
}
