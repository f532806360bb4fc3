package rotation

import (
	"math"
	"testing"
)

func testModel() *Model {
	// Anchor 0 <- bookkeeping 5 <- plate 701.
	bookkeeping := &Sequence{
		MovingPlate: 5,
		FixedPlate:  0,
		Samples: []TimeSample{
			{Time: 0, Rotation: Identity(), Enabled: true},
			{Time: 100, Rotation: NewFiniteRotation(90, 0, 30), Enabled: true},
		},
	}
	plate := &Sequence{
		MovingPlate: 701,
		FixedPlate:  5,
		Samples: []TimeSample{
			{Time: 0, Rotation: Identity(), Enabled: true},
			{Time: 100, Rotation: NewFiniteRotation(90, 0, 20), Enabled: true},
		},
	}
	return NewModel([]*Sequence{bookkeeping, plate})
}

func TestSequenceRotationAtInterpolates(t *testing.T) {
	seq := &Sequence{
		MovingPlate: 701,
		FixedPlate:  0,
		Samples: []TimeSample{
			{Time: 0, Rotation: Identity(), Enabled: true},
			{Time: 100, Rotation: NewFiniteRotation(90, 0, 40), Enabled: true},
		},
	}

	rot, err := seq.RotationAt(50)
	if err != nil {
		t.Fatalf("RotationAt failed: %v", err)
	}
	if math.Abs(rot.AngleDegrees()-20) > 1e-9 {
		t.Errorf("Expected 20 degree rotation at the midpoint, got %f", rot.AngleDegrees())
	}
}

func TestSequenceRotationAtOutsideRange(t *testing.T) {
	seq := &Sequence{
		MovingPlate: 701,
		FixedPlate:  0,
		Samples: []TimeSample{
			{Time: 10, Rotation: Identity(), Enabled: true},
			{Time: 50, Rotation: NewFiniteRotation(0, 0, 5), Enabled: true},
		},
	}

	if _, err := seq.RotationAt(60); err == nil {
		t.Errorf("Expected error outside the sampled range")
	}
	if _, err := seq.RotationAt(5); err == nil {
		t.Errorf("Expected error before the first sample")
	}
}

func TestModelCircuitComposition(t *testing.T) {
	m := testModel()

	// Plate 701 rel anchor composes both links: 30 + 20 degrees about the
	// same pole.
	rot, err := m.Rotation(100, 701, 0)
	if err != nil {
		t.Fatalf("Rotation failed: %v", err)
	}
	if math.Abs(rot.AngleDegrees()-50) > 1e-9 {
		t.Errorf("Expected 50 degree composed rotation, got %f", rot.AngleDegrees())
	}
}

func TestModelRelativeRotation(t *testing.T) {
	m := testModel()

	// 701 rel 5 strips the bookkeeping link.
	rot, err := m.Rotation(100, 701, 5)
	if err != nil {
		t.Fatalf("Rotation failed: %v", err)
	}
	if math.Abs(rot.AngleDegrees()-20) > 1e-9 {
		t.Errorf("Expected 20 degree relative rotation, got %f", rot.AngleDegrees())
	}
}

func TestModelUnknownPlate(t *testing.T) {
	m := testModel()
	if _, err := m.Rotation(50, 999, 0); err == nil {
		t.Errorf("Expected error for a plate with no sequence")
	}
}

func TestModelSeesSampleMutation(t *testing.T) {
	m := testModel()

	// Mutating a held sample pointer must be visible to circuit lookups.
	seq := m.Sequences()[0]
	smp := seq.SampleAt(100)
	if smp == nil {
		t.Fatal("Expected a sample at 100 Ma")
	}
	smp.Rotation = NewFiniteRotation(90, 0, 60)

	rot, err := m.Rotation(100, 5, 0)
	if err != nil {
		t.Fatalf("Rotation failed: %v", err)
	}
	if math.Abs(rot.AngleDegrees()-60) > 1e-9 {
		t.Errorf("Expected mutated 60 degree rotation, got %f", rot.AngleDegrees())
	}
}

func TestCloneSequencesIsolatesMutation(t *testing.T) {
	original := testModel().Sequences()
	clone := CloneSequences(original)

	clone[0].Samples[1].Rotation = NewFiniteRotation(0, 0, 1)

	if !original[0].Samples[1].Rotation.Equivalent(NewFiniteRotation(90, 0, 30), 1e-12) {
		t.Errorf("Mutating the clone leaked into the original")
	}
}
