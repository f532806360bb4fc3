package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/platefit/internal/dispatch"
)

func testStepResult(runID string, startAge float64) *StepResult {
	trials := []dispatch.Result{
		{Index: 0, Params: []float64{10, 20, 5}, Cost: 3.5, Evals: 5},
		{Index: 1, Params: []float64{-40, 12, 8}, Cost: 1.25, Evals: 5},
	}
	return &StepResult{
		RunID:     runID,
		StartAge:  startAge,
		EndAge:    startAge - 10,
		Trials:    trials,
		BestIndex: 1,
		Summary: StepSummary{
			BestCost:  1.25,
			MeanCost:  2.375,
			PoleLon:   12,
			PoleLat:   -40,
			Angle:     8,
			TrialRuns: 2,
		},
		Config: StepConfig{
			RefPlateID:   701,
			SearchType:   "Random",
			SearchRadius: 60,
			Models:       2,
			StopMode:     "max_iter",
			MaxIter:      5,
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestSaveAndLoadStep(t *testing.T) {
	fs, err := NewFSResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSResultStore failed: %v", err)
	}

	saved := testStepResult("run-1", 50)
	if err := fs.SaveStep("run-1", saved); err != nil {
		t.Fatalf("SaveStep failed: %v", err)
	}

	loaded, err := fs.LoadStep("run-1", 50)
	if err != nil {
		t.Fatalf("LoadStep failed: %v", err)
	}
	if loaded.RunID != saved.RunID || loaded.StartAge != saved.StartAge {
		t.Errorf("Loaded bundle identity mismatch")
	}
	if len(loaded.Trials) != 2 {
		t.Fatalf("Expected 2 trials, got %d", len(loaded.Trials))
	}
	if loaded.Trials[1].Cost != 1.25 {
		t.Errorf("Expected trial cost 1.25, got %f", loaded.Trials[1].Cost)
	}
	if loaded.BestIndex != 1 {
		t.Errorf("Expected best index 1, got %d", loaded.BestIndex)
	}
	if loaded.Summary.PoleLat != -40 {
		t.Errorf("Expected pole latitude -40, got %f", loaded.Summary.PoleLat)
	}
}

func TestLoadStepNotFound(t *testing.T) {
	fs, err := NewFSResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSResultStore failed: %v", err)
	}

	_, err = fs.LoadStep("missing", 40)
	if err == nil {
		t.Fatal("Expected an error for a missing bundle")
	}
	if !errors.Is(err, &NotFoundError{}) {
		t.Errorf("Expected a NotFoundError, got %v", err)
	}

	// A missing step at start age 0 is still a step error, not a missing
	// run: 0 Ma is a valid campaign age.
	_, err = fs.LoadStep("missing", 0)
	if err == nil {
		t.Fatal("Expected an error for a missing bundle at 0 Ma")
	}
	if !strings.Contains(err.Error(), "step result not found") || !strings.Contains(err.Error(), "0 Ma") {
		t.Errorf("Expected a step-not-found message naming 0 Ma, got %q", err.Error())
	}
}

func TestListStepsOldestFirst(t *testing.T) {
	fs, err := NewFSResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSResultStore failed: %v", err)
	}

	// Save out of order; listing restores campaign order.
	for _, age := range []float64{30, 50, 40} {
		if err := fs.SaveStep("run-1", testStepResult("run-1", age)); err != nil {
			t.Fatalf("SaveStep failed: %v", err)
		}
	}

	infos, err := fs.ListSteps("run-1")
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(infos))
	}
	expected := []float64{50, 40, 30}
	for i, info := range infos {
		if info.StartAge != expected[i] {
			t.Errorf("Step %d: expected start age %f, got %f", i, expected[i], info.StartAge)
		}
	}
}

func TestListRunsAndDeleteRun(t *testing.T) {
	fs, err := NewFSResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSResultStore failed: %v", err)
	}

	fs.SaveStep("alpha", testStepResult("alpha", 50))
	fs.SaveStep("beta", testStepResult("beta", 50))

	runs, err := fs.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0] != "alpha" || runs[1] != "beta" {
		t.Errorf("Expected sorted runs [alpha beta], got %v", runs)
	}

	if err := fs.DeleteRun("alpha"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	runs, _ = fs.ListRuns()
	if len(runs) != 1 || runs[0] != "beta" {
		t.Errorf("Expected [beta] after deletion, got %v", runs)
	}

	if err := fs.DeleteRun("alpha"); !errors.Is(err, &NotFoundError{}) {
		t.Errorf("Expected a NotFoundError deleting a missing run, got %v", err)
	}
}

func TestSaveStepOverwrites(t *testing.T) {
	fs, err := NewFSResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSResultStore failed: %v", err)
	}

	first := testStepResult("run-1", 50)
	if err := fs.SaveStep("run-1", first); err != nil {
		t.Fatalf("SaveStep failed: %v", err)
	}

	second := testStepResult("run-1", 50)
	second.Summary.BestCost = 0.5
	if err := fs.SaveStep("run-1", second); err != nil {
		t.Fatalf("SaveStep overwrite failed: %v", err)
	}

	loaded, err := fs.LoadStep("run-1", 50)
	if err != nil {
		t.Fatalf("LoadStep failed: %v", err)
	}
	if loaded.Summary.BestCost != 0.5 {
		t.Errorf("Expected overwritten best cost 0.5, got %f", loaded.Summary.BestCost)
	}
}

func TestStepResultValidation(t *testing.T) {
	valid := testStepResult("run-1", 50)
	if err := valid.Validate(); err != nil {
		t.Errorf("Valid bundle rejected: %v", err)
	}

	noRun := testStepResult("", 50)
	if err := noRun.Validate(); err == nil {
		t.Errorf("Expected validation error for an empty run ID")
	}

	badIndex := testStepResult("run-1", 50)
	badIndex.BestIndex = 5
	if err := badIndex.Validate(); err == nil {
		t.Errorf("Expected validation error for an out-of-range best index")
	}

	inverted := testStepResult("run-1", 50)
	inverted.EndAge = 60
	if err := inverted.Validate(); err == nil {
		t.Errorf("Expected validation error for an inverted age interval")
	}

	var verr *ValidationError
	if err := noRun.Validate(); !errors.As(err, &verr) {
		t.Errorf("Expected a ValidationError, got %v", err)
	}
}
