// Package dispatch fans independent optimization trials out across
// execution strategies: in-process serial, a shared-memory worker pool,
// and launcher-driven multi-process distribution over a shared directory.
package dispatch

import "context"

// Trial is one starting parameter vector to optimize.
type Trial struct {
	Index  int
	Params []float64
}

// Result is the outcome of one trial optimization.
type Result struct {
	Index  int       `json:"index"`
	Params []float64 `json:"params"`
	Cost   float64   `json:"cost"`
	Evals  int       `json:"evals"`
}

// TrialFunc runs one trial to completion. Implementations construct their
// own objective evaluator so concurrent trials share no loaded state.
type TrialFunc func(ctx context.Context, trial Trial) (Result, error)

// Dispatcher runs a batch of independent trials. On success the returned
// slice holds exactly one result per submitted trial; ordering may differ
// from submission order. A nil, nil return means this process is a
// non-coordinating worker and the results were handed to the coordinator.
type Dispatcher interface {
	Dispatch(ctx context.Context, trials []Trial, run TrialFunc) ([]Result, error)
}

// Partition splits n trials across p ranks near-evenly: every rank gets
// n/p trials and the remainder goes to the earliest ranks, one extra each.
// Ranks beyond n receive empty partitions. The returned slice has exactly
// p entries of [start, end) index pairs.
func Partition(n, p int) [][2]int {
	parts := make([][2]int, p)
	base := n / p
	rem := n % p
	start := 0
	for rank := 0; rank < p; rank++ {
		size := base
		if rank < rem {
			size++
		}
		parts[rank] = [2]int{start, start + size}
		start += size
	}
	return parts
}
