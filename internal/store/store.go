package store

import "fmt"

// ResultStore defines persistence for per-step trial result bundles.
// Implementations must be safe for concurrent readers and handle a single
// writer gracefully.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return a NotFoundError if the requested step bundle doesn't exist
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type ResultStore interface {
	// SaveStep atomically saves the result bundle for one time step of a
	// run. An existing bundle for the same (runID, age) is overwritten.
	SaveStep(runID string, result *StepResult) error

	// LoadStep retrieves the bundle for the given run and start age.
	// Returns a NotFoundError if no bundle exists.
	LoadStep(runID string, startAge float64) (*StepResult, error)

	// ListSteps returns metadata for every committed step of a run,
	// sorted by start age descending (oldest first, the campaign order).
	// The slice is empty when the run has no committed steps.
	ListSteps(runID string) ([]StepInfo, error)

	// ListRuns returns the IDs of all runs with at least one committed step.
	ListRuns() ([]string, error)

	// DeleteRun removes every bundle of the given run.
	// Returns a NotFoundError if the run doesn't exist.
	DeleteRun(runID string) error
}

// NotFoundError represents a missing step bundle or run. Step is true
// when a specific step bundle is missing; Age alone cannot distinguish
// the cases since 0 Ma is a valid start age.
// Use errors.Is(err, &NotFoundError{}) to check for it.
type NotFoundError struct {
	RunID string
	Age   float64
	Step  bool
}

func (e *NotFoundError) Error() string {
	if e.RunID == "" {
		return "result not found"
	}
	if e.Step {
		return fmt.Sprintf("step result not found: %s at %g Ma", e.RunID, e.Age)
	}
	return "run not found: " + e.RunID
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ValidationError reports an invalid field in a step bundle.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
