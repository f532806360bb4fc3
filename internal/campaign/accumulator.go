package campaign

import "github.com/cwbudde/platefit/internal/store"

// Accumulator collects statistics across the campaign's committed steps.
type Accumulator struct {
	summaries []store.StepSummary
	costs     []float64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add records one committed step and its trial costs.
func (a *Accumulator) Add(result *store.StepResult) {
	a.summaries = append(a.summaries, result.Summary)
	for _, trial := range result.Trials {
		a.costs = append(a.costs, trial.Cost)
	}
}

// Steps returns the number of committed steps recorded.
func (a *Accumulator) Steps() int {
	return len(a.summaries)
}

// Summaries returns the per-step summaries in commit order.
func (a *Accumulator) Summaries() []store.StepSummary {
	return a.summaries
}

// MeanCost returns the mean cost over every trial of every recorded
// step, or zero when nothing has been recorded.
func (a *Accumulator) MeanCost() float64 {
	if len(a.costs) == 0 {
		return 0
	}
	var sum float64
	for _, c := range a.costs {
		sum += c
	}
	return sum / float64(len(a.costs))
}

// BestCosts returns the winning cost of each recorded step in order.
func (a *Accumulator) BestCosts() []float64 {
	best := make([]float64, len(a.summaries))
	for i, s := range a.summaries {
		best[i] = s.BestCost
	}
	return best
}
