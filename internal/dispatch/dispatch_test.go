package dispatch

import (
	"context"
	"errors"
	"testing"
)

// sumTrial returns the sum of the trial parameters as its cost.
func sumTrial(ctx context.Context, trial Trial) (Result, error) {
	var sum float64
	for _, v := range trial.Params {
		sum += v
	}
	return Result{Index: trial.Index, Params: trial.Params, Cost: sum, Evals: 1}, nil
}

func makeTrials(n int) []Trial {
	trials := make([]Trial, n)
	for i := range trials {
		trials[i] = Trial{Index: i, Params: []float64{float64(i), 1, 2}}
	}
	return trials
}

func TestPartitionEvenSplit(t *testing.T) {
	parts := Partition(9, 3)

	expected := [][2]int{{0, 3}, {3, 6}, {6, 9}}
	for i, part := range parts {
		if part != expected[i] {
			t.Errorf("Partition %d: expected %v, got %v", i, expected[i], part)
		}
	}
}

func TestPartitionRemainderToEarliestRanks(t *testing.T) {
	// 10 trials over 3 ranks: sizes 4, 3, 3.
	parts := Partition(10, 3)

	sizes := []int{4, 3, 3}
	covered := 0
	for i, part := range parts {
		if part[0] != covered {
			t.Errorf("Partition %d starts at %d, expected %d", i, part[0], covered)
		}
		if got := part[1] - part[0]; got != sizes[i] {
			t.Errorf("Partition %d: expected size %d, got %d", i, sizes[i], got)
		}
		covered = part[1]
	}
	if covered != 10 {
		t.Errorf("Partitions cover %d trials, expected 10", covered)
	}
}

func TestPartitionMoreRanksThanTrials(t *testing.T) {
	parts := Partition(2, 4)

	if len(parts) != 4 {
		t.Fatalf("Expected 4 partitions, got %d", len(parts))
	}
	total := 0
	for i, part := range parts {
		size := part[1] - part[0]
		if size < 0 {
			t.Errorf("Partition %d has negative size", i)
		}
		total += size
	}
	if total != 2 {
		t.Errorf("Partitions cover %d trials, expected 2", total)
	}
	// Late ranks get empty partitions.
	if parts[2][1]-parts[2][0] != 0 || parts[3][1]-parts[3][0] != 0 {
		t.Errorf("Expected empty partitions for the last two ranks, got %v", parts)
	}
}

func TestSerialDispatch(t *testing.T) {
	results, err := NewSerial().Dispatch(context.Background(), makeTrials(5), sumTrial)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(results) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("Result %d has index %d", i, r.Index)
		}
		if expected := float64(i) + 3; r.Cost != expected {
			t.Errorf("Result %d: expected cost %f, got %f", i, expected, r.Cost)
		}
	}
}

func TestPoolMatchesSerial(t *testing.T) {
	trials := makeTrials(20)

	serial, err := NewSerial().Dispatch(context.Background(), trials, sumTrial)
	if err != nil {
		t.Fatalf("Serial dispatch failed: %v", err)
	}
	pooled, err := NewPool(4).Dispatch(context.Background(), trials, sumTrial)
	if err != nil {
		t.Fatalf("Pool dispatch failed: %v", err)
	}

	if len(pooled) != len(serial) {
		t.Fatalf("Result counts differ: %d vs %d", len(pooled), len(serial))
	}
	for i := range serial {
		if pooled[i].Index != serial[i].Index || pooled[i].Cost != serial[i].Cost {
			t.Errorf("Result %d differs between pool and serial", i)
		}
	}
}

func TestPoolAbortsOnTrialError(t *testing.T) {
	boom := errors.New("trial exploded")
	failing := func(ctx context.Context, trial Trial) (Result, error) {
		if trial.Index == 7 {
			return Result{}, boom
		}
		return sumTrial(ctx, trial)
	}

	_, err := NewPool(3).Dispatch(context.Background(), makeTrials(20), failing)
	if err == nil {
		t.Fatal("Expected an error from the failing trial")
	}
	if !errors.Is(err, boom) {
		t.Errorf("Expected the root-cause trial error, got %v", err)
	}
}

func TestSerialStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewSerial().Dispatch(ctx, makeTrials(3), sumTrial); err == nil {
		t.Errorf("Expected a context error after cancellation")
	}
}

func TestDistributedSingleProcess(t *testing.T) {
	dist, err := NewDistributed(0, 1, t.TempDir())
	if err != nil {
		t.Fatalf("NewDistributed failed: %v", err)
	}
	if !dist.IsCoordinator() {
		t.Error("Rank 0 should be the coordinator")
	}

	results, err := dist.Dispatch(context.Background(), makeTrials(4), sumTrial)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(results) != 4 {
		t.Errorf("Expected 4 results, got %d", len(results))
	}
}

func TestDistributedWorkerAndCoordinator(t *testing.T) {
	dir := t.TempDir()
	trials := makeTrials(5)

	worker, err := NewDistributed(1, 2, dir)
	if err != nil {
		t.Fatalf("NewDistributed failed: %v", err)
	}
	// The worker publishes its partition and reports no results.
	results, err := worker.Dispatch(context.Background(), trials, sumTrial)
	if err != nil {
		t.Fatalf("Worker dispatch failed: %v", err)
	}
	if results != nil {
		t.Errorf("Worker rank should return nil results")
	}

	coordinator, err := NewDistributed(0, 2, dir)
	if err != nil {
		t.Fatalf("NewDistributed failed: %v", err)
	}
	results, err = coordinator.Dispatch(context.Background(), trials, sumTrial)
	if err != nil {
		t.Fatalf("Coordinator dispatch failed: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("Expected all 5 gathered results, got %d", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("Gathered result %d has index %d", i, r.Index)
		}
	}

	// The end-of-step barrier releases the waiting worker.
	if err := coordinator.SignalStepComplete(50); err != nil {
		t.Fatalf("SignalStepComplete failed: %v", err)
	}
	if err := worker.WaitStepComplete(context.Background(), 50); err != nil {
		t.Errorf("WaitStepComplete failed: %v", err)
	}
}

func TestNewDistributedValidatesRank(t *testing.T) {
	if _, err := NewDistributed(3, 2, t.TempDir()); err == nil {
		t.Errorf("Expected error for rank outside [0, nprocs)")
	}
	if _, err := NewDistributed(0, 0, t.TempDir()); err == nil {
		t.Errorf("Expected error for zero nprocs")
	}
}

func TestDistributedCompletedStepsBroadcast(t *testing.T) {
	dir := t.TempDir()
	coordinator, err := NewDistributed(0, 2, dir)
	if err != nil {
		t.Fatalf("NewDistributed failed: %v", err)
	}
	worker, err := NewDistributed(1, 2, dir)
	if err != nil {
		t.Fatalf("NewDistributed failed: %v", err)
	}

	// Nothing published yet: the worker sees an empty set.
	ages, err := worker.CompletedSteps()
	if err != nil {
		t.Fatalf("CompletedSteps failed: %v", err)
	}
	if len(ages) != 0 {
		t.Errorf("Expected no completed steps before publishing, got %v", ages)
	}

	if err := coordinator.PublishCompletedSteps([]float64{50, 40}); err != nil {
		t.Fatalf("PublishCompletedSteps failed: %v", err)
	}
	ages, err = worker.CompletedSteps()
	if err != nil {
		t.Fatalf("CompletedSteps failed: %v", err)
	}
	if len(ages) != 2 || ages[0] != 50 || ages[1] != 40 {
		t.Errorf("Expected completed steps [50 40], got %v", ages)
	}

	// Publishing an empty set clears a stale file from a previous run.
	if err := coordinator.PublishCompletedSteps(nil); err != nil {
		t.Fatalf("PublishCompletedSteps failed: %v", err)
	}
	ages, err = worker.CompletedSteps()
	if err != nil {
		t.Fatalf("CompletedSteps failed: %v", err)
	}
	if len(ages) != 0 {
		t.Errorf("Expected the completed set cleared, got %v", ages)
	}
}
