package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Distributed partitions trials across launcher-started processes that
// share a filesystem. Every rank evaluates its own partition; non-zero
// ranks write their results to the exchange directory and rank 0 gathers
// all rank files, concatenating per-rank sub-results in rank order. A
// failing rank drops an error marker which aborts the coordinator's
// gather instead of stalling it.
type Distributed struct {
	rank        int
	nprocs      int
	exchangeDir string

	// GatherTimeout bounds how long the coordinator waits for worker
	// rank files before giving up.
	GatherTimeout time.Duration
	pollInterval  time.Duration
}

// NewDistributed creates a distributed dispatcher for this process rank.
func NewDistributed(rank, nprocs int, exchangeDir string) (*Distributed, error) {
	if nprocs < 1 {
		return nil, fmt.Errorf("nprocs must be at least 1, got %d", nprocs)
	}
	if rank < 0 || rank >= nprocs {
		return nil, fmt.Errorf("rank %d outside [0, %d)", rank, nprocs)
	}
	if err := os.MkdirAll(exchangeDir, 0755); err != nil {
		return nil, fmt.Errorf("creating exchange directory: %w", err)
	}
	return &Distributed{
		rank:          rank,
		nprocs:        nprocs,
		exchangeDir:   exchangeDir,
		GatherTimeout: 12 * time.Hour,
		pollInterval:  250 * time.Millisecond,
	}, nil
}

// IsCoordinator reports whether this process selects results and mutates
// the shared rotation state.
func (d *Distributed) IsCoordinator() bool {
	return d.rank == 0
}

// Dispatch evaluates this rank's partition. Rank 0 additionally gathers
// every other rank's results and returns the full batch; other ranks
// return nil, nil after publishing theirs.
func (d *Distributed) Dispatch(ctx context.Context, trials []Trial, run TrialFunc) ([]Result, error) {
	parts := Partition(len(trials), d.nprocs)
	start, end := parts[d.rank][0], parts[d.rank][1]

	local := make([]Result, 0, end-start)
	for _, trial := range trials[start:end] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := run(ctx, trial)
		if err != nil {
			d.writeError(err)
			return nil, err
		}
		local = append(local, result)
	}

	if !d.IsCoordinator() {
		if err := d.writeResults(local); err != nil {
			return nil, err
		}
		slog.Debug("Worker rank published results", "rank", d.rank, "count", len(local))
		return nil, nil
	}

	gathered := make([]Result, 0, len(trials))
	gathered = append(gathered, local...)
	for rank := 1; rank < d.nprocs; rank++ {
		results, err := d.awaitRank(ctx, rank)
		if err != nil {
			return nil, err
		}
		gathered = append(gathered, results...)
	}
	if len(gathered) != len(trials) {
		return nil, fmt.Errorf("gather produced %d results for %d trials", len(gathered), len(trials))
	}
	return gathered, nil
}

func (d *Distributed) resultPath(rank int) string {
	return filepath.Join(d.exchangeDir, fmt.Sprintf("rank_%d.json", rank))
}

func (d *Distributed) errorPath(rank int) string {
	return filepath.Join(d.exchangeDir, fmt.Sprintf("rank_%d.error", rank))
}

func (d *Distributed) writeResults(results []Result) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("serializing rank results: %w", err)
	}
	return atomicWrite(d.resultPath(d.rank), data)
}

func (d *Distributed) writeError(cause error) {
	if err := atomicWrite(d.errorPath(d.rank), []byte(cause.Error())); err != nil {
		slog.Error("Failed to publish rank error marker", "rank", d.rank, "error", err)
	}
}

// awaitRank polls for one rank's result file, aborting on error markers
// from any rank or on timeout.
func (d *Distributed) awaitRank(ctx context.Context, rank int) ([]Result, error) {
	deadline := time.Now().Add(d.GatherTimeout)
	for {
		if data, err := os.ReadFile(d.resultPath(rank)); err == nil {
			var results []Result
			if err := json.Unmarshal(data, &results); err != nil {
				return nil, fmt.Errorf("parsing rank %d results: %w", rank, err)
			}
			return results, nil
		}
		for r := 1; r < d.nprocs; r++ {
			if msg, err := os.ReadFile(d.errorPath(r)); err == nil {
				return nil, fmt.Errorf("rank %d failed: %s", r, msg)
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for rank %d results", rank)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// SignalStepComplete publishes the coordinator's end-of-step barrier and
// clears the per-step exchange files so the next step starts clean.
func (d *Distributed) SignalStepComplete(age float64) error {
	for rank := 1; rank < d.nprocs; rank++ {
		os.Remove(d.resultPath(rank))
	}
	return atomicWrite(d.barrierPath(age), []byte("done"))
}

// WaitStepComplete blocks a worker rank until the coordinator has
// committed the rotation state for the given age. The next step's
// evaluators may only read state written after this barrier.
func (d *Distributed) WaitStepComplete(ctx context.Context, age float64) error {
	deadline := time.Now().Add(d.GatherTimeout)
	for {
		if _, err := os.Stat(d.barrierPath(age)); err == nil {
			return nil
		}
		if msg, err := os.ReadFile(d.errorPath(0)); err == nil {
			return fmt.Errorf("coordinator failed: %s", msg)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for step %.2f Ma commit", age)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// PublishCompletedSteps shares the coordinator's set of already-committed
// step ages, so every rank skips the same steps on resume. Publishing an
// empty set clears any leftover file from a previous run in the same
// exchange directory.
func (d *Distributed) PublishCompletedSteps(ages []float64) error {
	if ages == nil {
		ages = []float64{}
	}
	data, err := json.Marshal(ages)
	if err != nil {
		return fmt.Errorf("serializing completed steps: %w", err)
	}
	return atomicWrite(d.completedPath(), data)
}

// CompletedSteps returns the step ages published by the coordinator,
// empty when none were published. Only meaningful after the setup
// barrier has been passed.
func (d *Distributed) CompletedSteps() ([]float64, error) {
	data, err := os.ReadFile(d.completedPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading completed steps: %w", err)
	}
	var ages []float64
	if err := json.Unmarshal(data, &ages); err != nil {
		return nil, fmt.Errorf("parsing completed steps: %w", err)
	}
	return ages, nil
}

func (d *Distributed) completedPath() string {
	return filepath.Join(d.exchangeDir, "completed.json")
}

// SignalSetupComplete publishes the one-time barrier raised after the
// coordinator has seeded the rotation state, before any trials run.
func (d *Distributed) SignalSetupComplete() error {
	return atomicWrite(filepath.Join(d.exchangeDir, "setup.done"), []byte("done"))
}

// WaitSetupComplete blocks a worker rank until the coordinator has
// finished seeding the rotation state.
func (d *Distributed) WaitSetupComplete(ctx context.Context) error {
	deadline := time.Now().Add(d.GatherTimeout)
	marker := filepath.Join(d.exchangeDir, "setup.done")
	for {
		if _, err := os.Stat(marker); err == nil {
			return nil
		}
		if msg, err := os.ReadFile(d.errorPath(0)); err == nil {
			return fmt.Errorf("coordinator failed: %s", msg)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for rotation state setup")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

func (d *Distributed) barrierPath(age float64) string {
	return filepath.Join(d.exchangeDir, fmt.Sprintf("step_%.2f.done", age))
}

// atomicWrite writes via a temp file and rename so readers never observe
// a partial file.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}
