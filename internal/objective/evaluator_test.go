package objective

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/platefit/internal/geodata"
	"github.com/cwbudde/platefit/internal/rotation"
)

// The test model rotates plate 701 ten degrees about the north pole over
// the last 10 Myr, behind an identity bookkeeping link.
const testModelRot = `005 0.0 90.0 0.0 0.0 000
005 10.0 90.0 0.0 0.0 000
701 0.0 90.0 0.0 0.0 005
701 10.0 90.0 0.0 10.0 005
`

const testNNRRot = `701 0.0 90.0 0.0 0.0 000
701 10.0 90.0 0.0 0.0 000
`

func writeTempRot(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func testStepContext(t *testing.T, terms Terms) StepContext {
	t.Helper()
	return StepContext{
		StartAge:        10,
		EndAge:          0,
		Interval:        10,
		RefPlateID:      701,
		RotationFile:    writeTempRot(t, "model.rot", testModelRot),
		NNRRotationFile: writeTempRot(t, "nnr.rot", testNNRRot),
		Terms:           terms,
	}
}

func TestNewEvaluatorRequiresBookkeepingSequence(t *testing.T) {
	ctx := testStepContext(t, Terms{})
	ctx.RotationFile = writeTempRot(t, "nobk.rot", testNNRRot)

	if _, err := NewEvaluator(ctx); err == nil {
		t.Errorf("Expected error for a model without a bookkeeping sequence")
	}
}

func TestNewEvaluatorRequiresSampleAtStartAge(t *testing.T) {
	ctx := testStepContext(t, Terms{})
	ctx.StartAge = 7 // no exact sample at 7 Ma

	if _, err := NewEvaluator(ctx); err == nil {
		t.Errorf("Expected error for a missing bookkeeping sample at the step age")
	}
}

func TestDecomposeRecomposeCandidate(t *testing.T) {
	sequences, err := rotation.ParseRot([]byte(testModelRot))
	if err != nil {
		t.Fatalf("ParseRot failed: %v", err)
	}
	model := rotation.NewModel(sequences)

	candidate := rotation.NewFiniteRotation(40, -60, 8)
	link, err := DecomposeCandidate(model, candidate, 10, 701)
	if err != nil {
		t.Fatalf("DecomposeCandidate failed: %v", err)
	}

	// Installing the link must make the reference plate's absolute
	// rotation equal the candidate.
	seq, err := BookkeepingSequence(sequences)
	if err != nil {
		t.Fatalf("BookkeepingSequence failed: %v", err)
	}
	seq.SampleAt(10).Rotation = link

	recomposed, err := model.Rotation(10, 701, rotation.AnchorPlate)
	if err != nil {
		t.Fatalf("Rotation failed: %v", err)
	}
	if !recomposed.Equivalent(candidate, 1e-10) {
		t.Errorf("Recomposed rotation does not match the candidate")
	}
}

func TestCandidateFromParamsFoldsPole(t *testing.T) {
	// x = (lon, lat, angle) with a latitude over the pole.
	folded := CandidateFromParams([]float64{10, 95, 5})
	direct := rotation.NewFiniteRotation(85, -170, 5)

	if !folded.Equivalent(direct, 1e-12) {
		t.Errorf("Out-of-range pole was not folded onto the sphere")
	}
}

func TestEvaluateAllTermsDisabled(t *testing.T) {
	e, err := NewEvaluator(testStepContext(t, Terms{}))
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	cost, err := e.Evaluate([]float64{0, 90, 5})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if cost != 0 {
		t.Errorf("Expected zero cost with every term disabled, got %f", cost)
	}
	if e.EvalCount() != 1 {
		t.Errorf("Expected eval count 1, got %d", e.EvalCount())
	}
}

func TestEvaluateNetRotationCost(t *testing.T) {
	terms := Terms{NetRotation: TermParams{Enabled: true, Weight: 1}}
	e, err := NewEvaluator(testStepContext(t, terms))
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	// A candidate matching the no-net-rotation frame exactly: plate 701
	// absolute rotation becomes identity at every timestep.
	still, err := e.Evaluate([]float64{0, 90, 0})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if still > 1e-6 {
		t.Errorf("Expected near-zero cost for the no-net-rotation candidate, got %f", still)
	}

	// A 20 degree candidate doubles the plate's rotation: the frame
	// diverges at 2 degrees/Myr across five 2-Myr intervals, so the raw
	// statistic is (10 + 2) / 2 = 6, scaled by 1000/4.
	spinning, err := e.Evaluate([]float64{0, 90, 20})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if math.Abs(spinning-1500) > 1e-6 {
		t.Errorf("Expected cost 1500, got %f", spinning)
	}
	if e.EvalCount() != 2 {
		t.Errorf("Expected eval count 2, got %d", e.EvalCount())
	}
}

func TestEvaluateAppliesWeightAndBounds(t *testing.T) {
	terms := Terms{NetRotation: TermParams{Enabled: true, Weight: 2}}
	e, err := NewEvaluator(testStepContext(t, terms))
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	halved, err := e.Evaluate([]float64{0, 90, 20})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if math.Abs(halved-750) > 1e-6 {
		t.Errorf("Expected weight 2 to halve the cost to 750, got %f", halved)
	}

	// A lower bound above the raw statistic reflects the violation back
	// into the cost: raw 6 against [100, 200] becomes 194.
	bounded := Terms{NetRotation: TermParams{
		Enabled: true,
		Weight:  1,
		Bounds:  &Restriction{Min: 100, Max: 200},
	}}
	eb, err := NewEvaluator(testStepContext(t, bounded))
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	reflected, err := eb.Evaluate([]float64{0, 90, 20})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if math.Abs(reflected-194*250) > 1e-6 {
		t.Errorf("Expected reflected cost %f, got %f", 194*250.0, reflected)
	}
}

func TestEvaluateOmitsDegenerateTrenchTerm(t *testing.T) {
	terms := Terms{
		NetRotation:     TermParams{Enabled: true, Weight: 1},
		TrenchMigration: TermParams{Enabled: true, Weight: 1},
	}
	ctx := testStepContext(t, terms)

	// An age step with no resolved trench segments.
	ctx.TrenchDir = t.TempDir()
	trenchFile := filepath.Join(ctx.TrenchDir, geodata.TrenchFilename(ctx.StartAge))
	if err := os.WriteFile(trenchFile, []byte("[]"), 0644); err != nil {
		t.Fatalf("Failed to write trench file: %v", err)
	}

	e, err := NewEvaluator(ctx)
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	cost, err := e.Evaluate([]float64{0, 90, 20})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// The degenerate term is omitted, not zero-filled: the total is the
	// net rotation cost alone.
	if math.Abs(cost-1500) > 1e-6 {
		t.Errorf("Expected the net rotation cost 1500 alone, got %f", cost)
	}
}

func TestEvaluateLeavesDurableStateUntouched(t *testing.T) {
	ctx := testStepContext(t, Terms{})
	before, err := os.ReadFile(ctx.RotationFile)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	e, err := NewEvaluator(ctx)
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	if _, err := e.Evaluate([]float64{30, 40, 5}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	after, err := os.ReadFile(ctx.RotationFile)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(before) != string(after) {
		t.Errorf("Evaluate must never write the shared rotation file")
	}
}
