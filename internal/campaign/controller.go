package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/platefit/internal/config"
	"github.com/cwbudde/platefit/internal/dispatch"
	"github.com/cwbudde/platefit/internal/objective"
	"github.com/cwbudde/platefit/internal/rotation"
	"github.com/cwbudde/platefit/internal/store"
)

// Controller runs a full optimization campaign: it seeds the rotation
// state once, then executes every time step oldest to youngest so each
// committed result is visible to all younger steps.
type Controller struct {
	cfg         *config.Config
	rotations   *store.RotationStore
	results     store.ResultStore
	dispatcher  dispatch.Dispatcher
	distributed *dispatch.Distributed // nil outside distributed mode
	runID       string
	resume      bool
}

// NewController wires a campaign over the given stores and dispatcher.
// Pass the same value as dispatcher and distributed when running in
// distributed mode; leave distributed nil otherwise.
func NewController(cfg *config.Config, rotations *store.RotationStore, results store.ResultStore, dispatcher dispatch.Dispatcher, distributed *dispatch.Distributed, runID string, resume bool) *Controller {
	return &Controller{
		cfg:         cfg,
		rotations:   rotations,
		results:     results,
		dispatcher:  dispatcher,
		distributed: distributed,
		runID:       runID,
		resume:      resume,
	}
}

// Run executes the campaign and returns the accumulated per-step
// summaries. Only the coordinator mutates shared state; worker ranks
// evaluate their trial partitions and block on the per-step barrier.
func (c *Controller) Run(ctx context.Context) (*Accumulator, error) {
	started := time.Now()
	ages := c.cfg.AgeRange()
	acc := NewAccumulator()

	slog.Info("Starting campaign",
		"run", c.runID,
		"model", c.cfg.ModelName,
		"startAge", c.cfg.Ages.Start,
		"endAge", c.cfg.Ages.End,
		"interval", c.cfg.Ages.Interval,
		"steps", len(ages))

	completed, err := c.prepare(ctx, ages)
	if err != nil {
		return nil, err
	}

	driver := NewStepDriver(c.cfg, c.rotations, c.results, c.dispatcher, c.runID)
	for _, age := range ages {
		if _, done := completed[age]; done {
			slog.Info("Skipping committed step", "age", age)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := driver.Run(ctx, age)
		if err != nil {
			return nil, err
		}

		if c.distributed != nil {
			if c.distributed.IsCoordinator() {
				if err := c.distributed.SignalStepComplete(age); err != nil {
					return nil, err
				}
			} else if err := c.distributed.WaitStepComplete(ctx, age); err != nil {
				return nil, err
			}
		}
		if result != nil {
			acc.Add(result)
		}
	}

	if c.isCoordinator() {
		slog.Info("Campaign complete",
			"run", c.runID,
			"steps", acc.Steps(),
			"meanCost", acc.MeanCost(),
			"elapsed", time.Since(started).Round(time.Second).String())
	}
	return acc, nil
}

// prepare seeds the rotation state (or restores progress on resume) and
// returns the set of ages already committed in a prior run. In
// distributed mode the coordinator publishes that set before raising the
// setup barrier, so every rank skips exactly the same steps.
func (c *Controller) prepare(ctx context.Context, ages []float64) (map[float64]struct{}, error) {
	completed := map[float64]struct{}{}

	if !c.isCoordinator() {
		if err := c.distributed.WaitSetupComplete(ctx); err != nil {
			return nil, err
		}
		resumed, err := c.distributed.CompletedSteps()
		if err != nil {
			return nil, err
		}
		for _, age := range resumed {
			completed[age] = struct{}{}
		}
		return completed, nil
	}

	var resumed []float64
	if c.resume {
		steps, err := c.results.ListSteps(c.runID)
		if err != nil {
			return nil, fmt.Errorf("listing committed steps: %w", err)
		}
		for _, step := range steps {
			completed[step.StartAge] = struct{}{}
			resumed = append(resumed, step.StartAge)
		}
		slog.Info("Resuming run", "run", c.runID, "committedSteps", len(completed))
	} else if err := c.seedRotationState(ages); err != nil {
		return nil, err
	}

	if c.distributed != nil {
		if err := c.distributed.PublishCompletedSteps(resumed); err != nil {
			return nil, err
		}
		if err := c.distributed.SignalSetupComplete(); err != nil {
			return nil, err
		}
	}
	return completed, nil
}

// seedRotationState replaces the bookkeeping-link sequence with identity
// samples at present day and at every campaign age, so each step finds a
// sample to optimize and untouched ages contribute nothing.
func (c *Controller) seedRotationState(ages []float64) error {
	sequences, err := c.rotations.Load()
	if err != nil {
		return err
	}

	seq, err := objective.BookkeepingSequence(sequences)
	if err != nil {
		return err
	}

	samples := []rotation.TimeSample{{
		Time:     0,
		Rotation: rotation.Identity(),
		Enabled:  true,
		Comment:  "present day",
	}}
	for i := len(ages) - 1; i >= 0; i-- {
		samples = append(samples, rotation.TimeSample{
			Time:     ages[i],
			Rotation: rotation.Identity(),
			Enabled:  true,
		})
	}
	seq.Samples = samples
	seq.SortSamples()

	slog.Info("Seeded rotation state",
		"file", c.rotations.Path(),
		"samples", len(samples))
	return c.rotations.Save(sequences)
}

func (c *Controller) isCoordinator() bool {
	return c.distributed == nil || c.distributed.IsCoordinator()
}
