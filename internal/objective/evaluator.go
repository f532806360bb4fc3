package objective

import (
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/platefit/internal/geodata"
	"github.com/cwbudde/platefit/internal/rotation"
)

// Scaling constants equalizing the order of magnitude between cost terms,
// tuned against reference runs of the workflow.
const (
	fractureZoneScale    = 10.0
	netRotationScale     = 1000.0 / 4.0
	trenchMigrationScale = 3.0
	hotspotScale         = 1.0 / 8.0
)

// Evaluator computes the weighted misfit of a candidate reference-plate
// rotation at a fixed time step. Construction loads and caches all
// per-step invariant inputs once, so the many calls issued by a trial
// optimizer avoid re-parsing.
type Evaluator struct {
	ctx StepContext

	// originalModel is the pristine pre-optimization rotation model; the
	// circuit decomposition is always computed against it to avoid
	// feedback from the candidate being evaluated.
	originalModel *rotation.Model

	// updatedModel shares samples with updatedSequences; mutating
	// optSample is immediately visible to it.
	updatedModel *rotation.Model
	optSample    *rotation.TimeSample

	nnrModel        *rotation.Model
	trenchSegments  []geodata.TrenchSegment
	hotspotTrails   []geodata.HotspotTrail
	fracturePicks   []geodata.FracturePick
	continentPoints []geodata.ContinentPoint

	evalCount int
}

// NewEvaluator loads the rotation state and every enabled data set for the
// given step context.
func NewEvaluator(ctx StepContext) (*Evaluator, error) {
	data, err := os.ReadFile(ctx.RotationFile)
	if err != nil {
		return nil, fmt.Errorf("reading rotation file: %w", err)
	}
	original, err := rotation.ParseRot(data)
	if err != nil {
		return nil, fmt.Errorf("parsing rotation file: %w", err)
	}

	updated := rotation.CloneSequences(original)
	optSample, err := findBookkeepingSample(updated, ctx.StartAge)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		ctx:           ctx,
		originalModel: rotation.NewModel(original),
		updatedModel:  rotation.NewModel(updated),
		optSample:     optSample,
	}

	if ctx.Terms.NetRotation.Enabled {
		nnrData, err := os.ReadFile(ctx.NNRRotationFile)
		if err != nil {
			return nil, fmt.Errorf("reading no-net-rotation file: %w", err)
		}
		nnrSequences, err := rotation.ParseRot(nnrData)
		if err != nil {
			return nil, fmt.Errorf("parsing no-net-rotation file: %w", err)
		}
		e.nnrModel = rotation.NewModel(nnrSequences)
	}
	if ctx.Terms.TrenchMigration.Enabled {
		segments, err := geodata.LoadTrenchSegments(ctx.TrenchDir, ctx.StartAge)
		if err != nil {
			return nil, err
		}
		e.trenchSegments = segments
	}
	if ctx.Terms.HotspotTrails.Enabled {
		trails, err := geodata.LoadHotspotTrails(ctx.HotspotFile, ctx.IncludeChains)
		if err != nil {
			return nil, err
		}
		e.hotspotTrails = trails
	}
	if ctx.Terms.FractureZones.Enabled {
		picks, err := geodata.LoadFracturePicks(ctx.FractureZoneFile)
		if err != nil {
			return nil, err
		}
		e.fracturePicks = picks
	}
	if ctx.Terms.PlateVelocity.Enabled {
		points, err := geodata.LoadContinentPoints(ctx.ContinentPointsFile)
		if err != nil {
			return nil, err
		}
		e.continentPoints = points
	}

	return e, nil
}

// BookkeepingSequence locates the single (bookkeeping rel anchor)
// sequence in the rotation state. Zero or multiple bookkeeping sequences
// violate the rotation-state invariant and are fatal.
func BookkeepingSequence(sequences []*rotation.Sequence) (*rotation.Sequence, error) {
	var found *rotation.Sequence
	for _, seq := range sequences {
		if seq.MovingPlate == BookkeepingPlate && seq.FixedPlate == rotation.AnchorPlate {
			if found != nil {
				return nil, fmt.Errorf("rotation state holds multiple %03d-%03d sequences, expected exactly one",
					BookkeepingPlate, rotation.AnchorPlate)
			}
			found = seq
		}
	}
	if found == nil {
		return nil, fmt.Errorf("rotation state holds no %03d-%03d sequence", BookkeepingPlate, rotation.AnchorPlate)
	}
	return found, nil
}

func findBookkeepingSample(sequences []*rotation.Sequence, age float64) (*rotation.TimeSample, error) {
	found, err := BookkeepingSequence(sequences)
	if err != nil {
		return nil, err
	}
	sample := found.SampleAt(age)
	if sample == nil {
		return nil, fmt.Errorf("no %03d-%03d rotation sample at %.2f Ma", BookkeepingPlate, rotation.AnchorPlate, age)
	}
	return sample, nil
}

// DecomposeCandidate converts a candidate (reference plate rel anchor)
// rotation into the bookkeeping-link rotation that encodes it, using the
// pristine pre-optimization model:
//
//	R(0->t, anchor->ref) = R(0->t, anchor->bk) * R(0->t, bk->ref)
//	R(0->t, anchor->bk)  = candidate * inverse(R(0->t, bk->ref))
func DecomposeCandidate(model *rotation.Model, candidate rotation.FiniteRotation, age float64, refPlateID int) (rotation.FiniteRotation, error) {
	refRelBookkeeping, err := model.Rotation(age, refPlateID, BookkeepingPlate)
	if err != nil {
		return rotation.Identity(), fmt.Errorf("resolving reference plate %d circuit: %w", refPlateID, err)
	}
	return candidate.Compose(refRelBookkeeping.Inverse()), nil
}

// CandidateFromParams builds the candidate finite rotation from a
// (longitude, latitude, angle) parameter vector, folding out-of-range
// poles back onto the sphere.
func CandidateFromParams(x []float64) rotation.FiniteRotation {
	lat, lon := rotation.CheckLatLon(x[1], x[0])
	return rotation.NewFiniteRotation(lat, lon, x[2])
}

// subCost is an optional cost contribution: disabled and degenerate terms
// report ok=false and are omitted from the sum, never zero-filled.
type subCost struct {
	value float64
	ok    bool
}

// Evaluate returns the combined weighted cost of the parameter vector
// x = (longitude, latitude, angle degrees).
func (e *Evaluator) Evaluate(x []float64) (float64, error) {
	e.evalCount++

	candidate := CandidateFromParams(x)
	newBookkeeping, err := DecomposeCandidate(e.originalModel, candidate, e.ctx.StartAge, e.ctx.RefPlateID)
	if err != nil {
		return 0, err
	}

	// Mutate only this evaluator's private copy of the bookkeeping sample;
	// the shared durable state is untouched.
	e.optSample.Rotation = newBookkeeping

	fz, err := e.fractureZoneCost()
	if err != nil {
		return 0, err
	}
	nr, err := e.netRotationCost()
	if err != nil {
		return 0, err
	}
	tm, err := e.trenchMigrationCost()
	if err != nil {
		return 0, err
	}
	hs, err := e.hotspotCost()
	if err != nil {
		return 0, err
	}
	pv := e.plateVelocityCost()

	total := 0.0
	if fz.ok {
		total += fz.value * fractureZoneScale
	}
	if nr.ok {
		total += nr.value * netRotationScale
	}
	if tm.ok {
		total += tm.value * trenchMigrationScale
	}
	if hs.ok {
		total += hs.value * hotspotScale
	}
	if pv.ok {
		total += pv.value
	}
	return total, nil
}

// EvalCount returns the number of Evaluate calls made so far.
func (e *Evaluator) EvalCount() int {
	return e.evalCount
}

func (e *Evaluator) fractureZoneCost() (subCost, error) {
	params := e.ctx.Terms.FractureZones
	if !params.Enabled {
		return subCost{}, nil
	}
	skews, err := geodata.FractureZoneSkews(e.updatedModel, e.fracturePicks, e.ctx.StartAge, e.ctx.EndAge)
	if err != nil {
		return subCost{}, err
	}
	if len(skews) == 0 {
		return subCost{}, nil
	}
	raw := geodata.Median(skews) + geodata.Std(skews)
	return weighted(raw, params), nil
}

func (e *Evaluator) netRotationCost() (subCost, error) {
	params := e.ctx.Terms.NetRotation
	if !params.Enabled {
		return subCost{}, nil
	}
	var timesteps []float64
	for t := e.ctx.EndAge; t <= e.ctx.StartAge; t += 2 {
		timesteps = append(timesteps, t)
	}
	rates, err := geodata.NetRotationRates(e.updatedModel, e.nnrModel, timesteps, e.ctx.RefPlateID)
	if err != nil {
		return subCost{}, err
	}
	if len(rates) == 0 {
		return subCost{}, nil
	}
	raw := (geodata.SumAbs(rates) + geodata.MeanAbs(rates)) / 2
	return weighted(raw, params), nil
}

func (e *Evaluator) trenchMigrationCost() (subCost, error) {
	params := e.ctx.Terms.TrenchMigration
	if !params.Enabled {
		return subCost{}, nil
	}
	if len(e.trenchSegments) == 0 {
		// Zero resolved trenches at this step: degenerate, omitted.
		return subCost{}, nil
	}
	orth, err := geodata.TrenchOrthogonalVelocities(e.updatedModel, e.trenchSegments, e.ctx.StartAge, e.ctx.StartAge-e.ctx.Interval)
	if err != nil {
		return subCost{}, err
	}
	raw := geodata.MeanAbs(orth) + geodata.Std(orth)
	return weighted(raw, params), nil
}

func (e *Evaluator) hotspotCost() (subCost, error) {
	params := e.ctx.Terms.HotspotTrails
	if !params.Enabled {
		return subCost{}, nil
	}
	misfits, err := geodata.HotspotMisfits(e.updatedModel, e.hotspotTrails, e.ctx.StartAge,
		e.ctx.UseTrailAgeUncertainty, e.ctx.TrailAgeUncertaintyEllipse)
	if err != nil {
		return subCost{}, err
	}
	if len(misfits) == 0 {
		return subCost{}, nil
	}
	raw := geodata.Median(misfits) + geodata.Std(misfits)
	return weighted(raw, params), nil
}

func (e *Evaluator) plateVelocityCost() subCost {
	params := e.ctx.Terms.PlateVelocity
	if !params.Enabled {
		return subCost{}
	}
	raw, ok := geodata.PlateVelocityRMS(e.updatedModel, e.continentPoints, e.ctx.StartAge, e.ctx.EndAge)
	if !ok {
		return subCost{}
	}
	return weighted(raw, params)
}

// weighted applies the restriction penalty and the inverse weight to a raw
// statistic. Non-finite statistics are treated as degenerate.
func weighted(raw float64, params TermParams) subCost {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return subCost{}
	}
	if b := params.Bounds; b != nil {
		// Reflect statistics outside the restricted range so the violation
		// distance shows up as added cost.
		if raw < b.Min {
			raw = 2*b.Min - raw
		} else if raw > b.Max {
			raw = 2*raw - b.Max
		}
	}
	weight := params.Weight
	if weight == 0 {
		weight = 1
	}
	return subCost{value: raw / weight, ok: true}
}
