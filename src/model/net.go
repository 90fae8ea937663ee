package model

import "math/rand"

// Net is a trainable model exposing a flat, mutable parameter view. The
// protocol engine never looks inside a Net; merging operates on the flat
// parameters only.
type Net interface {
	// Params returns the live parameter slice. Mutations are visible to the
	// net.
	Params() []float64

	// InitWeights resets the parameters using the supplied generator.
	InitWeights(rng *rand.Rand)

	// Predict returns the predicted class for a feature vector.
	Predict(x []float64) int

	// Fit performs one stochastic gradient step on a single example.
	Fit(x []float64, y int, lr, weightDecay float64)

	// Copy returns an independent net with the same configuration and
	// parameter values.
	Copy() Net
}

// AdaLine is a linear scorer with zero-initialized weights and a sign
// output, trained with the Widrow-Hoff delta rule. It is the classic model
// for gossip learning with linear models on fully distributed data.
type AdaLine struct {
	weights []float64
}

// NewAdaLine ...
func NewAdaLine(dim int) *AdaLine {
	return &AdaLine{weights: make([]float64, dim)}
}

// Params ...
func (a *AdaLine) Params() []float64 {
	return a.weights
}

// InitWeights resets all weights to zero. AdaLine starts from the origin
// regardless of the generator.
func (a *AdaLine) InitWeights(rng *rand.Rand) {
	for i := range a.weights {
		a.weights[i] = 0
	}
}

// Predict ...
func (a *AdaLine) Predict(x []float64) int {
	if dot(a.weights, x) >= 0 {
		return 1
	}
	return 0
}

// Fit applies the delta rule with labels mapped to {-1, +1}.
func (a *AdaLine) Fit(x []float64, y int, lr, weightDecay float64) {
	target := float64(2*y - 1)
	err := target - dot(a.weights, x)
	for i := range a.weights {
		a.weights[i] += lr * (err*x[i] - weightDecay*a.weights[i])
	}
}

// Copy ...
func (a *AdaLine) Copy() Net {
	w := make([]float64, len(a.weights))
	copy(w, a.weights)
	return &AdaLine{weights: w}
}

// LogisticRegression is a binary logistic model. The last parameter is the
// bias term.
type LogisticRegression struct {
	params []float64 //dim weights + bias
}

// NewLogisticRegression ...
func NewLogisticRegression(dim int) *LogisticRegression {
	return &LogisticRegression{params: make([]float64, dim+1)}
}

// Params ...
func (l *LogisticRegression) Params() []float64 {
	return l.params
}

// InitWeights draws small uniform weights and a zero bias.
func (l *LogisticRegression) InitWeights(rng *rand.Rand) {
	for i := 0; i < len(l.params)-1; i++ {
		l.params[i] = (rng.Float64() - 0.5) * 0.02
	}
	l.params[len(l.params)-1] = 0
}

func (l *LogisticRegression) logit(x []float64) float64 {
	z := l.params[len(l.params)-1]
	z += dot(l.params[:len(l.params)-1], x)
	return sigmoid(z)
}

// Predict ...
func (l *LogisticRegression) Predict(x []float64) int {
	if l.logit(x) >= 0.5 {
		return 1
	}
	return 0
}

// Fit performs one SGD step on the log loss.
func (l *LogisticRegression) Fit(x []float64, y int, lr, weightDecay float64) {
	grad := l.logit(x) - float64(y)
	n := len(l.params) - 1
	for i := 0; i < n; i++ {
		l.params[i] -= lr * (grad*x[i] + weightDecay*l.params[i])
	}
	l.params[n] -= lr * grad
}

// Copy ...
func (l *LogisticRegression) Copy() Net {
	p := make([]float64, len(l.params))
	copy(p, l.params)
	return &LogisticRegression{params: p}
}
