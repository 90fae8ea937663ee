package data

// Dataset is a plain feature matrix with integer class labels.
type Dataset struct {
	X [][]float64
	Y []int
}

// Len returns the number of examples.
func (d Dataset) Len() int {
	return len(d.X)
}

// Dim returns the number of features, 0 for an empty dataset.
func (d Dataset) Dim() int {
	if len(d.X) == 0 {
		return 0
	}
	return len(d.X[0])
}

// subset returns the rows of d at the given indices.
func (d Dataset) subset(idx []int) Dataset {
	sub := Dataset{
		X: make([][]float64, len(idx)),
		Y: make([]int, len(idx)),
	}
	for i, j := range idx {
		sub.X[i] = d.X[j]
		sub.Y[i] = d.Y[j]
	}
	return sub
}

// NodeData is the slice of the dataset held by a single node. Eval is nil
// when the node holds no held-out split; this is an explicit tag, not a
// runtime type check.
type NodeData struct {
	Train Dataset
	Eval  *Dataset
}

// HasEval reports whether the node holds a held-out split.
func (d NodeData) HasEval() bool {
	return d.Eval != nil && d.Eval.Len() > 0
}
