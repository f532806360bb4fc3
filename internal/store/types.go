package store

import (
	"time"

	"github.com/cwbudde/platefit/internal/dispatch"
)

// StepConfig is the snapshot of the search parameters a step ran with,
// kept with the bundle so downstream analysis can reproduce it.
type StepConfig struct {
	RefPlateID   int     `json:"refPlateId"`
	SearchType   string  `json:"searchType"`
	SearchRadius float64 `json:"searchRadius"`
	Models       int     `json:"models"`
	StopMode     string  `json:"stopMode"`
	MaxIter      int     `json:"maxIter,omitempty"`
}

// StepSummary is the selected-best outcome of one time step.
type StepSummary struct {
	BestCost  float64 `json:"bestCost"`
	MeanCost  float64 `json:"meanCost"`
	PoleLon   float64 `json:"poleLon"`
	PoleLat   float64 `json:"poleLat"`
	Angle     float64 `json:"angle"`
	TrialRuns int     `json:"trialRuns"`
}

// StepResult is the serialized bundle for one time step: every trial's
// (parameters, cost) pair plus the selected best.
type StepResult struct {
	RunID     string            `json:"runId"`
	StartAge  float64           `json:"startAge"`
	EndAge    float64           `json:"endAge"`
	Trials    []dispatch.Result `json:"trials"`
	BestIndex int               `json:"bestIndex"`
	Summary   StepSummary       `json:"summary"`
	Config    StepConfig        `json:"config"`
	Timestamp time.Time         `json:"timestamp"`
}

// StepInfo is bundle metadata without the trial payload, for listings.
type StepInfo struct {
	RunID     string    `json:"runId"`
	StartAge  float64   `json:"startAge"`
	EndAge    float64   `json:"endAge"`
	BestCost  float64   `json:"bestCost"`
	Trials    int       `json:"trials"`
	Timestamp time.Time `json:"timestamp"`
}

// ToInfo converts a full bundle to its listing metadata.
func (r *StepResult) ToInfo() StepInfo {
	return StepInfo{
		RunID:     r.RunID,
		StartAge:  r.StartAge,
		EndAge:    r.EndAge,
		BestCost:  r.Summary.BestCost,
		Trials:    len(r.Trials),
		Timestamp: r.Timestamp,
	}
}

// Validate checks the bundle invariants before persisting.
func (r *StepResult) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.Trials) == 0 {
		return &ValidationError{Field: "Trials", Reason: "cannot be empty"}
	}
	if r.BestIndex < 0 || r.BestIndex >= len(r.Trials) {
		return &ValidationError{Field: "BestIndex", Reason: "outside trial range"}
	}
	if r.StartAge <= r.EndAge {
		return &ValidationError{Field: "StartAge", Reason: "must be older than EndAge"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	for _, trial := range r.Trials {
		if len(trial.Params) != 3 {
			return &ValidationError{Field: "Trials", Reason: "trial params must be (lon, lat, angle)"}
		}
		if trial.Cost < 0 {
			return &ValidationError{Field: "Trials", Reason: "cost cannot be negative"}
		}
	}
	return nil
}
