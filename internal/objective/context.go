package objective

// BookkeepingPlate is the intermediate plate whose rotation to the anchor
// stores the optimized absolute rotation, leaving every other plate-circuit
// link untouched.
const BookkeepingPlate = 5

// Restriction bounds the acceptable range of a cost term's raw statistic.
// Statistics outside the range incur a violation penalty.
type Restriction struct {
	Min float64
	Max float64
}

// TermParams configures one cost term for a time step. Weight is an
// inverse weight: the raw statistic is divided by it.
type TermParams struct {
	Enabled bool
	Weight  float64
	Bounds  *Restriction
}

// Terms holds the per-step configuration of every cost term.
type Terms struct {
	FractureZones   TermParams
	NetRotation     TermParams
	TrenchMigration TermParams
	HotspotTrails   TermParams
	PlateVelocity   TermParams
}

// StepContext bundles everything a trial needs to evaluate cost at one
// age. It is constructed once per time step and passed by value to every
// worker; it is never mutated during the step.
type StepContext struct {
	StartAge float64
	EndAge   float64
	Interval float64

	RefPlateID int

	// RotationFile is the durable rotation state as committed by the
	// previous (older) step. Every evaluator reads it fresh from storage.
	RotationFile string

	// NNRRotationFile is the no-net-rotation reference model. Needed only
	// when the net-rotation term is enabled.
	NNRRotationFile string

	// TrenchDir holds the per-age resolved trench files.
	TrenchDir string

	HotspotFile         string
	FractureZoneFile    string
	ContinentPointsFile string

	IncludeChains              []string
	UseTrailAgeUncertainty     bool
	TrailAgeUncertaintyEllipse float64

	Terms Terms
}
