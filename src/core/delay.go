package core

import "math/rand"

// Delay decides how many ticks a message spends in flight before the
// simulator delivers it.
type Delay interface {
	Get(msg *Message, rng *rand.Rand) int
}

// ConstantDelay delays every message by the same number of ticks.
type ConstantDelay int

// Get ...
func (d ConstantDelay) Get(msg *Message, rng *rand.Rand) int {
	return int(d)
}

// UniformDelay draws a delay uniformly from [Min, Max].
type UniformDelay struct {
	Min int
	Max int
}

// Get ...
func (d UniformDelay) Get(msg *Message, rng *rand.Rand) int {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + rng.Intn(d.Max-d.Min+1)
}
