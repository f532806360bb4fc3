// Package campaign drives the per-age optimization steps: seed
// generation, trial dispatch, best-candidate selection and the rotation
// state update that carries each result forward to younger steps.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/cwbudde/platefit/internal/config"
	"github.com/cwbudde/platefit/internal/dispatch"
	"github.com/cwbudde/platefit/internal/objective"
	"github.com/cwbudde/platefit/internal/opt"
	"github.com/cwbudde/platefit/internal/rotation"
	"github.com/cwbudde/platefit/internal/store"
)

// StepDriver runs one time step end to end. It is reused across steps so
// the reference-plate switch between consecutive steps can widen the
// search region.
type StepDriver struct {
	cfg        *config.Config
	rotations  *store.RotationStore
	results    store.ResultStore
	dispatcher dispatch.Dispatcher
	runID      string

	prevRefPlateID int // 0 until the first step completes
}

// NewStepDriver wires a driver over the durable rotation state, the
// result store and the chosen dispatch strategy.
func NewStepDriver(cfg *config.Config, rotations *store.RotationStore, results store.ResultStore, dispatcher dispatch.Dispatcher, runID string) *StepDriver {
	return &StepDriver{
		cfg:        cfg,
		rotations:  rotations,
		results:    results,
		dispatcher: dispatcher,
		runID:      runID,
	}
}

// Run executes the step that optimizes the interval [age, age-interval].
// On non-coordinating distributed ranks it returns (nil, nil) after the
// local trial partition has been evaluated.
func (d *StepDriver) Run(ctx context.Context, age float64) (*store.StepResult, error) {
	endAge := age - d.cfg.Ages.Interval
	if endAge < d.cfg.Ages.End {
		endAge = d.cfg.Ages.End
	}

	refBand, err := d.cfg.ReferenceAt(age)
	if err != nil {
		return nil, err
	}

	radius := d.cfg.Search.Radius
	models := d.cfg.Search.Models
	if d.prevRefPlateID != 0 && refBand.PlateID != d.prevRefPlateID && d.cfg.Search.ExpandRadiusOnRefPlateSwitch {
		models = ScaledModelCount(models, radius, 90)
		radius = 90
		slog.Info("Reference plate switched, widening search region",
			"age", age,
			"previousPlate", d.prevRefPlateID,
			"plate", refBand.PlateID,
			"radius", radius,
			"models", models)
	}

	refPole, err := d.referencePole(refBand, age)
	if err != nil {
		return nil, err
	}
	lower, upper := SeedBounds(refPole, radius, d.cfg.Search.RotationUncertainty)

	seeds := d.seeds(age, refPole, radius, models)
	trials := make([]dispatch.Trial, len(seeds))
	for i, seed := range seeds {
		trials[i] = dispatch.Trial{Index: i, Params: seed}
	}

	stepCtx := objective.StepContext{
		StartAge:                   age,
		EndAge:                     endAge,
		Interval:                   d.cfg.Ages.Interval,
		RefPlateID:                 refBand.PlateID,
		RotationFile:               d.rotations.Path(),
		NNRRotationFile:            d.cfg.DataPath(d.cfg.Data.NNRRotationFile),
		TrenchDir:                  d.cfg.DataPath(d.cfg.Data.TrenchDir),
		HotspotFile:                d.cfg.DataPath(d.cfg.Data.HotspotFile),
		FractureZoneFile:           d.cfg.DataPath(d.cfg.Data.FractureZoneFile),
		ContinentPointsFile:        d.cfg.DataPath(d.cfg.Data.ContinentPointsFile),
		IncludeChains:              d.cfg.Data.IncludeChains,
		UseTrailAgeUncertainty:     d.cfg.Data.UseTrailAgeUncertainty,
		TrailAgeUncertaintyEllipse: d.cfg.Data.TrailAgeUncertaintyEllipse,
		Terms:                      d.cfg.TermsAt(age),
	}

	slog.Info("Dispatching trials",
		"age", age,
		"refPlate", refBand.PlateID,
		"trials", len(trials),
		"radius", radius,
		"searchType", d.cfg.Search.Type)

	results, err := d.dispatcher.Dispatch(ctx, trials, d.trialFunc(stepCtx, lower, upper))
	if err != nil {
		return nil, fmt.Errorf("step at %.1f Ma: %w", age, err)
	}
	d.prevRefPlateID = refBand.PlateID
	if results == nil {
		// Non-coordinating rank: selection and the state update belong
		// to rank 0.
		return nil, nil
	}

	bestIndex := selectBest(results)
	best := results[bestIndex]

	if err := d.updateRotationState(best.Params, age, refBand.PlateID); err != nil {
		return nil, err
	}

	result := d.stepResult(age, endAge, refBand.PlateID, radius, models, results, bestIndex)
	if err := d.results.SaveStep(d.runID, result); err != nil {
		return nil, fmt.Errorf("persisting step at %.1f Ma: %w", age, err)
	}

	slog.Info("Step complete",
		"age", age,
		"bestCost", result.Summary.BestCost,
		"meanCost", result.Summary.MeanCost,
		"poleLon", result.Summary.PoleLon,
		"poleLat", result.Summary.PoleLat,
		"angle", result.Summary.Angle)

	return result, nil
}

// referencePole resolves the seed-region center: the reference plate's
// rotation at this age taken from the override rotation file when the
// schedule names one, from the current rotation state when
// auto-calculation is on, or the fixed configured pole otherwise.
func (d *StepDriver) referencePole(refBand config.ReferenceBand, age float64) (ReferencePole, error) {
	if !d.cfg.Search.AutoCalcRefPole && refBand.RotationFile == "" {
		p := d.cfg.Search.RefPole
		return ReferencePole{Lon: p.Lon, Lat: p.Lat, Angle: p.Angle}, nil
	}

	var sequences []*rotation.Sequence
	var err error
	if refBand.RotationFile != "" {
		var data []byte
		path := d.cfg.DataPath(refBand.RotationFile)
		data, err = os.ReadFile(path)
		if err != nil {
			return ReferencePole{}, fmt.Errorf("reading reference rotation file: %w", err)
		}
		sequences, err = rotation.ParseRot(data)
	} else {
		sequences, err = d.rotations.Load()
	}
	if err != nil {
		return ReferencePole{}, err
	}

	rot, err := rotation.NewModel(sequences).Rotation(age, refBand.PlateID, rotation.AnchorPlate)
	if err != nil {
		return ReferencePole{}, fmt.Errorf("resolving reference pole at %.1f Ma: %w", age, err)
	}
	lat, lon, angle := rot.Pole()
	return ReferencePole{Lon: lon, Lat: lat, Angle: angle}, nil
}

func (d *StepDriver) seeds(age float64, refPole ReferencePole, radius float64, models int) [][]float64 {
	if d.cfg.Search.Type == "Uniform" {
		return UniformSeeds(models, refPole, radius, d.cfg.Search.RotationUncertainty)
	}
	rng := rand.New(rand.NewSource(d.cfg.Seed + int64(math.Round(age*1000))))
	return RandomSeeds(rng, models, refPole, radius, d.cfg.Search.RotationUncertainty)
}

// trialFunc builds the per-trial work unit: a fresh evaluator over the
// current rotation state, minimized with the configured algorithm. An
// evaluation error is not a bad candidate: the first one is captured and
// fails the whole trial, so the dispatcher aborts the step instead of
// committing an infinite-cost result.
func (d *StepDriver) trialFunc(stepCtx objective.StepContext, lower, upper []float64) dispatch.TrialFunc {
	return func(ctx context.Context, trial dispatch.Trial) (dispatch.Result, error) {
		evaluator, err := objective.NewEvaluator(stepCtx)
		if err != nil {
			return dispatch.Result{}, err
		}
		var evalErr error
		eval := func(x []float64) float64 {
			if evalErr != nil {
				return math.Inf(1)
			}
			if err := ctx.Err(); err != nil {
				evalErr = err
				return math.Inf(1)
			}
			cost, err := evaluator.Evaluate(x)
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			return cost
		}

		bestX, bestCost, evals := d.newOptimizer(trial.Index).Run(eval, trial.Params, lower, upper)
		if evalErr != nil {
			return dispatch.Result{}, fmt.Errorf("trial %d: %w", trial.Index, evalErr)
		}
		return dispatch.Result{
			Index:  trial.Index,
			Params: bestX,
			Cost:   bestCost,
			Evals:  evals,
		}, nil
	}
}

func (d *StepDriver) newOptimizer(trialIndex int) opt.Optimizer {
	stop := d.stopCondition()
	if d.cfg.Algorithm.Name == "mayfly" {
		return opt.NewMayfly(d.cfg.Algorithm.Population, d.cfg.Seed+int64(trialIndex), stop)
	}
	return opt.NewNelderMead(stop)
}

func (d *StepDriver) stopCondition() opt.StopCondition {
	if d.cfg.Stop.Condition == opt.StopModeMaxIter {
		return opt.MaxIterStop(d.cfg.Stop.MaxIter)
	}
	return opt.ThresholdStop()
}

// updateRotationState commits the winning candidate: the bookkeeping-link
// rotation is recomputed against a fresh read of the durable state so the
// decomposition sees exactly what younger steps will see.
func (d *StepDriver) updateRotationState(params []float64, age float64, refPlateID int) error {
	sequences, err := d.rotations.Load()
	if err != nil {
		return err
	}

	candidate := objective.CandidateFromParams(params)
	link, err := objective.DecomposeCandidate(rotation.NewModel(sequences), candidate, age, refPlateID)
	if err != nil {
		return err
	}

	seq, err := objective.BookkeepingSequence(sequences)
	if err != nil {
		return err
	}
	sample := seq.SampleAt(age)
	if sample == nil {
		return fmt.Errorf("no bookkeeping rotation sample at %.2f Ma", age)
	}
	sample.Rotation = link

	return d.rotations.Save(sequences)
}

func (d *StepDriver) stepResult(age, endAge float64, refPlateID int, radius float64, models int, results []dispatch.Result, bestIndex int) *store.StepResult {
	best := results[bestIndex]
	lat, lon, angle := objective.CandidateFromParams(best.Params).Pole()

	var sum float64
	for _, r := range results {
		sum += r.Cost
	}

	return &store.StepResult{
		RunID:     d.runID,
		StartAge:  age,
		EndAge:    endAge,
		Trials:    results,
		BestIndex: bestIndex,
		Summary: store.StepSummary{
			BestCost:  best.Cost,
			MeanCost:  sum / float64(len(results)),
			PoleLon:   lon,
			PoleLat:   lat,
			Angle:     angle,
			TrialRuns: len(results),
		},
		Config: store.StepConfig{
			RefPlateID:   refPlateID,
			SearchType:   d.cfg.Search.Type,
			SearchRadius: radius,
			Models:       models,
			StopMode:     d.cfg.Stop.Condition,
			MaxIter:      d.cfg.Stop.MaxIter,
		},
		Timestamp: time.Now().UTC(),
	}
}

// selectBest returns the index of the lowest-cost result, earliest index
// winning ties so selection is deterministic.
func selectBest(results []dispatch.Result) int {
	best := 0
	for i, r := range results {
		if r.Cost < results[best].Cost {
			best = i
		}
	}
	return best
}
