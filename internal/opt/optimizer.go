package opt

// StopCondition controls how a trial optimization terminates.
type StopCondition struct {
	// Mode is "threshold" (relative-tolerance convergence) or "max_iter"
	// (fixed evaluation budget).
	Mode string

	// MaxEvals is the evaluation budget when Mode is "max_iter".
	MaxEvals int

	// FTolRel and XTolRel are the relative function-change and
	// parameter-change tolerances when Mode is "threshold".
	FTolRel float64
	XTolRel float64
}

// Supported stop modes.
const (
	StopModeThreshold = "threshold"
	StopModeMaxIter   = "max_iter"
)

// ThresholdStop returns the default tight-tolerance stop condition.
func ThresholdStop() StopCondition {
	return StopCondition{
		Mode:    StopModeThreshold,
		FTolRel: 1e-6,
		XTolRel: 1e-8,
	}
}

// MaxIterStop returns a fixed-budget stop condition.
func MaxIterStop(maxEvals int) StopCondition {
	return StopCondition{
		Mode:     StopModeMaxIter,
		MaxEvals: maxEvals,
	}
}

// Optimizer defines a derivative-free minimization algorithm.
type Optimizer interface {
	// Run minimizes eval starting from x0 within [lower, upper] bounds.
	// Returns the best parameters found, their cost, and the number of
	// objective evaluations performed.
	Run(eval func([]float64) float64, x0, lower, upper []float64) ([]float64, float64, int)
}
