package simul

// RoundScores is an evaluation snapshot taken at the end of a round.
type RoundScores struct {
	Round  int
	Scores map[string]float64
}

// Report accumulates what happened during a simulation run.
type Report struct {
	SentMessages    int
	FailedMessages  int
	DroppedMessages int

	globalEvals []RoundScores
	localEvals  []RoundScores
}

// NewReport ...
func NewReport() *Report {
	return &Report{}
}

// AddGlobalEval records scores against the global held-out set.
func (r *Report) AddGlobalEval(round int, scores map[string]float64) {
	r.globalEvals = append(r.globalEvals, RoundScores{Round: round, Scores: scores})
}

// AddLocalEval records mean scores against the nodes' own held-out splits.
func (r *Report) AddLocalEval(round int, scores map[string]float64) {
	r.localEvals = append(r.localEvals, RoundScores{Round: round, Scores: scores})
}

// GlobalEvaluations ...
func (r *Report) GlobalEvaluations() []RoundScores {
	return r.globalEvals
}

// LocalEvaluations ...
func (r *Report) LocalEvaluations() []RoundScores {
	return r.localEvals
}

// meanScores averages a set of score maps key by key.
func meanScores(all []map[string]float64) map[string]float64 {
	mean := map[string]float64{}
	if len(all) == 0 {
		return mean
	}

	counts := map[string]int{}
	for _, scores := range all {
		for name, score := range scores {
			mean[name] += score
			counts[name]++
		}
	}
	for name := range mean {
		mean[name] /= float64(counts[name])
	}

	return mean
}
