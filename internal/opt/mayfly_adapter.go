package opt

import (
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external mayfly library to conform to the
// Optimizer interface. Mayfly performs a population-based global search,
// so the starting point only seeds the trial RNG; per-dimension bounds are
// handled by normalizing the search box to [0, 1] (the library accepts
// scalar bounds only).
type MayflyAdapter struct {
	popSize int
	seed    int64
	stop    StopCondition
}

// NewMayfly creates a mayfly optimizer adapter.
func NewMayfly(popSize int, seed int64, stop StopCondition) *MayflyAdapter {
	return &MayflyAdapter{
		popSize: popSize,
		seed:    seed,
		stop:    stop,
	}
}

// Run executes the mayfly optimization over the normalized unit box.
func (m *MayflyAdapter) Run(eval func([]float64) float64, x0, lower, upper []float64) ([]float64, float64, int) {
	dim := len(x0)
	evals := 0

	denormalize := func(z []float64) []float64 {
		x := make([]float64, dim)
		for i := range z {
			x[i] = lower[i] + z[i]*(upper[i]-lower[i])
		}
		return x
	}

	budget := 0
	if m.stop.Mode == StopModeMaxIter {
		budget = m.stop.MaxEvals
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(z []float64) float64 {
		// One mayfly iteration evaluates the whole population, so the
		// evaluation budget is enforced here, not via the iteration count.
		if budget > 0 && evals >= budget {
			return math.Inf(1)
		}
		evals++
		return eval(denormalize(z))
	}
	config.ProblemSize = dim
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	if budget > 0 {
		pop := m.popSize
		if pop < 1 {
			pop = 1
		}
		config.MaxIterations = (budget + pop - 1) / pop
	} else {
		config.MaxIterations = 100
	}

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the starting point if the optimization fails.
		return append([]float64{}, x0...), eval(x0), evals + 1
	}

	return denormalize(result.GlobalBest.Position), result.GlobalBest.Cost, evals
}
