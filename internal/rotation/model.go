package rotation

import (
	"fmt"
	"sort"
)

// AnchorPlate is the fixed root of every plate circuit.
const AnchorPlate = 0

// TimeSample is one dated rotation in a sequence. Time is in Ma (millions
// of years before present).
type TimeSample struct {
	Time     float64
	Rotation FiniteRotation
	Enabled  bool
	Comment  string
}

// Sequence is the time-sampled rotation of a moving plate relative to a
// fixed plate. Samples are kept sorted by time ascending.
type Sequence struct {
	MovingPlate int
	FixedPlate  int
	Samples     []TimeSample
}

// SortSamples restores the time ordering invariant after edits.
func (s *Sequence) SortSamples() {
	sort.SliceStable(s.Samples, func(i, j int) bool {
		return s.Samples[i].Time < s.Samples[j].Time
	})
}

// SampleAt returns a pointer to the enabled sample at exactly the given
// time, or nil if none exists.
func (s *Sequence) SampleAt(time float64) *TimeSample {
	for i := range s.Samples {
		if s.Samples[i].Enabled && s.Samples[i].Time == time {
			return &s.Samples[i]
		}
	}
	return nil
}

// RotationAt interpolates the sequence at the given time. The time must be
// covered by the enabled samples.
func (s *Sequence) RotationAt(time float64) (FiniteRotation, error) {
	var enabled []TimeSample
	for _, smp := range s.Samples {
		if smp.Enabled {
			enabled = append(enabled, smp)
		}
	}
	if len(enabled) == 0 {
		return Identity(), fmt.Errorf("sequence %d rel %d has no enabled samples", s.MovingPlate, s.FixedPlate)
	}
	if time < enabled[0].Time || time > enabled[len(enabled)-1].Time {
		return Identity(), fmt.Errorf("time %.2f outside sequence %d rel %d range [%.2f, %.2f]",
			time, s.MovingPlate, s.FixedPlate, enabled[0].Time, enabled[len(enabled)-1].Time)
	}
	for i := range enabled {
		if enabled[i].Time == time {
			return enabled[i].Rotation, nil
		}
		if enabled[i].Time > time {
			lo, hi := enabled[i-1], enabled[i]
			f := (time - lo.Time) / (hi.Time - lo.Time)
			return lo.Rotation.Interpolate(hi.Rotation, f), nil
		}
	}
	return enabled[len(enabled)-1].Rotation, nil
}

// Covers reports whether the enabled samples span the given time.
func (s *Sequence) Covers(time float64) bool {
	first, last := -1, -1
	for i := range s.Samples {
		if !s.Samples[i].Enabled {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return false
	}
	return time >= s.Samples[first].Time && time <= s.Samples[last].Time
}

// Model resolves plate-circuit rotations over a set of sequences.
type Model struct {
	sequences []*Sequence
	byMoving  map[int][]*Sequence
}

// NewModel builds a model over the given sequences. The sequences are
// referenced, not copied: mutating a sample through a held pointer is
// visible to subsequent lookups, which is what the evaluator relies on.
func NewModel(sequences []*Sequence) *Model {
	m := &Model{
		sequences: sequences,
		byMoving:  make(map[int][]*Sequence),
	}
	for _, seq := range sequences {
		m.byMoving[seq.MovingPlate] = append(m.byMoving[seq.MovingPlate], seq)
	}
	return m
}

// Sequences returns the underlying sequences.
func (m *Model) Sequences() []*Sequence {
	return m.sequences
}

// Rotation returns the rotation of movingPlate relative to fixedPlate at
// the given time, composed through the plate circuit:
//
//	R(moving rel fixed) = inverse(Rabs(fixed)) * Rabs(moving)
func (m *Model) Rotation(time float64, movingPlate, fixedPlate int) (FiniteRotation, error) {
	absMoving, err := m.absoluteRotation(time, movingPlate, make(map[int]bool))
	if err != nil {
		return Identity(), err
	}
	if fixedPlate == AnchorPlate {
		return absMoving, nil
	}
	absFixed, err := m.absoluteRotation(time, fixedPlate, make(map[int]bool))
	if err != nil {
		return Identity(), err
	}
	return absFixed.Inverse().Compose(absMoving), nil
}

// absoluteRotation composes the circuit from a plate down to the anchor.
func (m *Model) absoluteRotation(time float64, plate int, visited map[int]bool) (FiniteRotation, error) {
	if plate == AnchorPlate {
		return Identity(), nil
	}
	if visited[plate] {
		return Identity(), fmt.Errorf("plate circuit cycle at plate %d", plate)
	}
	visited[plate] = true

	seq := m.sequenceCovering(plate, time)
	if seq == nil {
		return Identity(), fmt.Errorf("no rotation sequence for plate %d at %.2f Ma", plate, time)
	}
	rel, err := seq.RotationAt(time)
	if err != nil {
		return Identity(), err
	}
	parent, err := m.absoluteRotation(time, seq.FixedPlate, visited)
	if err != nil {
		return Identity(), err
	}
	return parent.Compose(rel), nil
}

func (m *Model) sequenceCovering(movingPlate int, time float64) *Sequence {
	for _, seq := range m.byMoving[movingPlate] {
		if seq.Covers(time) {
			return seq
		}
	}
	return nil
}

// CloneSequences deep-copies a sequence slice, so one copy can be mutated
// while the other stays pristine.
func CloneSequences(sequences []*Sequence) []*Sequence {
	out := make([]*Sequence, len(sequences))
	for i, seq := range sequences {
		cp := &Sequence{
			MovingPlate: seq.MovingPlate,
			FixedPlate:  seq.FixedPlate,
			Samples:     make([]TimeSample, len(seq.Samples)),
		}
		copy(cp.Samples, seq.Samples)
		out[i] = cp
	}
	return out
}
