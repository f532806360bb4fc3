package opt

import (
	"math"
	"sort"
)

// NelderMead is a bounded derivative-free simplex minimizer. It honors the
// configured stop condition exactly: in "max_iter" mode no more than
// MaxEvals objective evaluations are performed; in "threshold" mode it
// stops once both the relative function change and the relative parameter
// spread of the simplex fall below the configured tolerances.
type NelderMead struct {
	stop StopCondition

	// maxIterationsCap bounds threshold-mode runs that never converge.
	maxIterationsCap int
}

// NewNelderMead creates a simplex optimizer with the given stop condition.
func NewNelderMead(stop StopCondition) *NelderMead {
	return &NelderMead{
		stop:             stop,
		maxIterationsCap: 500,
	}
}

type vertex struct {
	x    []float64
	cost float64
}

// Run executes the simplex search from x0 within [lower, upper].
func (nm *NelderMead) Run(eval func([]float64) float64, x0, lower, upper []float64) ([]float64, float64, int) {
	dim := len(x0)

	evals := 0
	bestX := append([]float64{}, x0...)
	bestCost := math.Inf(1)

	budget := math.MaxInt
	if nm.stop.Mode == StopModeMaxIter && nm.stop.MaxEvals > 0 {
		budget = nm.stop.MaxEvals
	}

	boundedEval := func(x []float64) (float64, bool) {
		if evals >= budget {
			return 0, false
		}
		clamped := clampToBounds(x, lower, upper)
		cost := eval(clamped)
		evals++
		if cost < bestCost {
			bestCost = cost
			bestX = append([]float64{}, clamped...)
		}
		return cost, true
	}

	// Initial simplex: x0 plus one perturbed vertex per dimension.
	simplex := make([]vertex, 0, dim+1)
	c0, ok := boundedEval(x0)
	if !ok {
		return bestX, bestCost, evals
	}
	simplex = append(simplex, vertex{x: clampToBounds(x0, lower, upper), cost: c0})
	for i := 0; i < dim; i++ {
		p := append([]float64{}, x0...)
		step := 0.05 * (upper[i] - lower[i])
		if step == 0 {
			step = 0.05
		}
		if p[i]+step > upper[i] {
			p[i] -= step
		} else {
			p[i] += step
		}
		cost, ok := boundedEval(p)
		if !ok {
			return bestX, bestCost, evals
		}
		simplex = append(simplex, vertex{x: clampToBounds(p, lower, upper), cost: cost})
	}

	const (
		alpha = 1.0 // reflection
		gamma = 2.0 // expansion
		rho   = 0.5 // contraction
		sigma = 0.5 // shrink
	)

	for iter := 0; iter < nm.maxIterationsCap; iter++ {
		sort.Slice(simplex, func(i, j int) bool { return simplex[i].cost < simplex[j].cost })

		if nm.stop.Mode == StopModeThreshold && nm.converged(simplex) {
			break
		}
		if evals >= budget {
			break
		}

		// Centroid of all but the worst vertex.
		centroid := make([]float64, dim)
		for _, v := range simplex[:dim] {
			for i := range centroid {
				centroid[i] += v.x[i] / float64(dim)
			}
		}
		worst := simplex[dim]

		reflected := make([]float64, dim)
		for i := range reflected {
			reflected[i] = centroid[i] + alpha*(centroid[i]-worst.x[i])
		}
		rCost, ok := boundedEval(reflected)
		if !ok {
			break
		}

		switch {
		case rCost < simplex[0].cost:
			// Try expanding further in the same direction.
			expanded := make([]float64, dim)
			for i := range expanded {
				expanded[i] = centroid[i] + gamma*(reflected[i]-centroid[i])
			}
			eCost, ok := boundedEval(expanded)
			if ok && eCost < rCost {
				simplex[dim] = vertex{x: clampToBounds(expanded, lower, upper), cost: eCost}
			} else {
				simplex[dim] = vertex{x: clampToBounds(reflected, lower, upper), cost: rCost}
			}
			if !ok {
				sort.Slice(simplex, func(i, j int) bool { return simplex[i].cost < simplex[j].cost })
				return bestX, bestCost, evals
			}
		case rCost < simplex[dim-1].cost:
			simplex[dim] = vertex{x: clampToBounds(reflected, lower, upper), cost: rCost}
		default:
			contracted := make([]float64, dim)
			for i := range contracted {
				contracted[i] = centroid[i] + rho*(worst.x[i]-centroid[i])
			}
			cCost, ok := boundedEval(contracted)
			if !ok {
				break
			}
			if cCost < worst.cost {
				simplex[dim] = vertex{x: clampToBounds(contracted, lower, upper), cost: cCost}
			} else {
				// Shrink toward the best vertex.
				stop := false
				for i := 1; i <= dim; i++ {
					for j := range simplex[i].x {
						simplex[i].x[j] = simplex[0].x[j] + sigma*(simplex[i].x[j]-simplex[0].x[j])
					}
					cost, ok := boundedEval(simplex[i].x)
					if !ok {
						stop = true
						break
					}
					simplex[i].cost = cost
				}
				if stop {
					break
				}
			}
		}
	}

	return bestX, bestCost, evals
}

// converged checks the relative function and parameter spread of the
// sorted simplex against the threshold tolerances.
func (nm *NelderMead) converged(simplex []vertex) bool {
	best, worst := simplex[0], simplex[len(simplex)-1]
	fSpread := math.Abs(worst.cost - best.cost)
	fScale := math.Max(math.Abs(best.cost), math.Abs(worst.cost))
	if fScale == 0 {
		fScale = 1
	}
	if fSpread/fScale > nm.stop.FTolRel {
		return false
	}
	for i := range best.x {
		xSpread := math.Abs(worst.x[i] - best.x[i])
		xScale := math.Max(math.Abs(best.x[i]), math.Abs(worst.x[i]))
		if xScale == 0 {
			xScale = 1
		}
		if xSpread/xScale > nm.stop.XTolRel {
			return false
		}
	}
	return true
}

func clampToBounds(x, lower, upper []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = math.Max(lower[i], math.Min(upper[i], x[i]))
	}
	return out
}
