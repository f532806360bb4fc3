// Package config loads and validates the YAML campaign configuration,
// including the age-dependent cost-term and reference-plate schedules.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cwbudde/platefit/internal/objective"
	"github.com/cwbudde/platefit/internal/opt"
	"gopkg.in/yaml.v3"
)

// Ages delimits the campaign time range in Ma.
type Ages struct {
	Start    float64 `yaml:"start"`
	End      float64 `yaml:"end"`
	Interval float64 `yaml:"interval"`
}

// Pole is a fixed reference pole used when auto-calculation is off.
type Pole struct {
	Lon   float64 `yaml:"lon"`
	Lat   float64 `yaml:"lat"`
	Angle float64 `yaml:"angle"`
}

// Search configures seed generation for every time step.
type Search struct {
	// Type selects the sampling strategy: "Random" (spherical cap draw)
	// or "Uniform" (tiled cap grid, for refinement passes).
	Type                string  `yaml:"type"`
	Radius              float64 `yaml:"radius"`
	RotationUncertainty float64 `yaml:"rotation_uncertainty"`
	Models              int     `yaml:"models"`

	// ExpandRadiusOnRefPlateSwitch widens the search to 90 degrees and
	// scales the model count whenever the reference plate changes
	// between steps.
	ExpandRadiusOnRefPlateSwitch bool `yaml:"expand_radius_on_ref_plate_switch"`

	AutoCalcRefPole bool `yaml:"auto_calc_ref_pole"`
	RefPole         Pole `yaml:"ref_pole"`
}

// Stop configures trial termination.
type Stop struct {
	Condition string `yaml:"condition"` // "threshold" or "max_iter"
	MaxIter   int    `yaml:"max_iter"`
}

// Algorithm selects the trial optimizer.
type Algorithm struct {
	Name       string `yaml:"name"` // "nelder-mead" or "mayfly"
	Population int    `yaml:"population"`
}

// TermBand is one age band of a cost-term schedule. A band applies to
// every age less than or equal to MaxAge; lookup picks the first matching
// band.
type TermBand struct {
	MaxAge  float64     `yaml:"max_age"`
	Enabled bool        `yaml:"enabled"`
	Weight  float64     `yaml:"weight"`
	Bounds  *[2]float64 `yaml:"bounds,omitempty"`
}

// TermSchedules holds the banded schedule of every cost term.
type TermSchedules struct {
	FractureZones   []TermBand `yaml:"fracture_zones"`
	NetRotation     []TermBand `yaml:"net_rotation"`
	TrenchMigration []TermBand `yaml:"trench_migration"`
	HotspotTrails   []TermBand `yaml:"hotspot_trails"`
	PlateVelocity   []TermBand `yaml:"plate_velocity"`
}

// ReferenceBand is one age band of the reference-plate schedule. An empty
// RotationFile means the no-net-rotation model is the frame reference.
type ReferenceBand struct {
	MaxAge       float64 `yaml:"max_age"`
	PlateID      int     `yaml:"plate_id"`
	RotationFile string  `yaml:"rotation_file"`
}

// Data locates every input data set, relative to Dir.
type Data struct {
	Dir                 string   `yaml:"dir"`
	RotationFile        string   `yaml:"rotation_file"`
	NNRRotationFile     string   `yaml:"nnr_rotation_file"`
	TrenchDir           string   `yaml:"trench_dir"`
	HotspotFile         string   `yaml:"hotspot_file"`
	FractureZoneFile    string   `yaml:"fracture_zone_file"`
	ContinentPointsFile string   `yaml:"continent_points_file"`
	IncludeChains       []string `yaml:"include_chains"`

	UseTrailAgeUncertainty     bool    `yaml:"use_trail_age_uncertainty"`
	TrailAgeUncertaintyEllipse float64 `yaml:"trail_age_uncertainty_ellipse"`
}

// Parallel sets the default execution strategy.
type Parallel struct {
	Mode    string `yaml:"mode"` // "none", "pool" or "distributed"
	Workers int    `yaml:"workers"`
}

// Config is the full campaign configuration document.
type Config struct {
	ModelName string          `yaml:"model_name"`
	Ages      Ages            `yaml:"ages"`
	Search    Search          `yaml:"search"`
	Stop      Stop            `yaml:"stop"`
	Algorithm Algorithm       `yaml:"algorithm"`
	Seed      int64           `yaml:"seed"`
	Terms     TermSchedules   `yaml:"terms"`
	Reference []ReferenceBand `yaml:"reference"`
	Data      Data            `yaml:"data"`
	Parallel  Parallel        `yaml:"parallel"`
}

// Load reads, parses and validates a campaign configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses and validates a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Ages.Interval == 0 {
		cfg.Ages.Interval = 10
	}
	if cfg.Search.Type == "" {
		cfg.Search.Type = "Random"
	}
	if cfg.Search.Radius == 0 {
		cfg.Search.Radius = 60
	}
	if cfg.Search.RotationUncertainty == 0 {
		cfg.Search.RotationUncertainty = 30
	}
	if cfg.Search.Models == 0 {
		cfg.Search.Models = 100
	}
	if cfg.Stop.Condition == "" {
		cfg.Stop.Condition = opt.StopModeThreshold
	}
	if cfg.Stop.MaxIter == 0 {
		cfg.Stop.MaxIter = 5
	}
	if cfg.Algorithm.Name == "" {
		cfg.Algorithm.Name = "nelder-mead"
	}
	if cfg.Algorithm.Population == 0 {
		cfg.Algorithm.Population = 30
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.Parallel.Mode == "" {
		cfg.Parallel.Mode = "none"
	}
	if cfg.Parallel.Workers == 0 {
		cfg.Parallel.Workers = 4
	}
	if cfg.Data.TrailAgeUncertaintyEllipse == 0 {
		cfg.Data.TrailAgeUncertaintyEllipse = 1
	}
}

func validate(cfg *Config) error {
	if cfg.Ages.Start <= cfg.Ages.End {
		return fmt.Errorf("ages.start (%.1f) must be older than ages.end (%.1f)", cfg.Ages.Start, cfg.Ages.End)
	}
	if cfg.Ages.Interval <= 0 {
		return fmt.Errorf("ages.interval must be positive")
	}
	if cfg.Search.Type != "Random" && cfg.Search.Type != "Uniform" {
		return fmt.Errorf("search.type must be Random or Uniform, got %q", cfg.Search.Type)
	}
	if cfg.Search.Radius <= 0 || cfg.Search.Radius > 90 {
		return fmt.Errorf("search.radius must be in (0, 90], got %.1f", cfg.Search.Radius)
	}
	if cfg.Search.Models < 1 {
		return fmt.Errorf("search.models must be at least 1")
	}
	if cfg.Stop.Condition != opt.StopModeThreshold && cfg.Stop.Condition != opt.StopModeMaxIter {
		return fmt.Errorf("stop.condition must be threshold or max_iter, got %q", cfg.Stop.Condition)
	}
	if cfg.Stop.Condition == opt.StopModeMaxIter && cfg.Stop.MaxIter < 1 {
		return fmt.Errorf("stop.max_iter must be at least 1")
	}
	if cfg.Algorithm.Name != "nelder-mead" && cfg.Algorithm.Name != "mayfly" {
		return fmt.Errorf("algorithm.name must be nelder-mead or mayfly, got %q", cfg.Algorithm.Name)
	}
	switch cfg.Parallel.Mode {
	case "none", "pool", "distributed":
	default:
		return fmt.Errorf("parallel.mode must be none, pool or distributed, got %q", cfg.Parallel.Mode)
	}
	if len(cfg.Reference) == 0 {
		return fmt.Errorf("reference schedule cannot be empty")
	}
	if cfg.Data.RotationFile == "" {
		return fmt.Errorf("data.rotation_file is required")
	}
	for age := cfg.Ages.Start; age > cfg.Ages.End; age -= cfg.Ages.Interval {
		if _, err := cfg.ReferenceAt(age); err != nil {
			return err
		}
	}
	return nil
}

// TermsAt resolves every cost-term schedule at the given age.
func (cfg *Config) TermsAt(age float64) objective.Terms {
	return objective.Terms{
		FractureZones:   lookupTerm(cfg.Terms.FractureZones, age),
		NetRotation:     lookupTerm(cfg.Terms.NetRotation, age),
		TrenchMigration: lookupTerm(cfg.Terms.TrenchMigration, age),
		HotspotTrails:   lookupTerm(cfg.Terms.HotspotTrails, age),
		PlateVelocity:   lookupTerm(cfg.Terms.PlateVelocity, age),
	}
}

func lookupTerm(bands []TermBand, age float64) objective.TermParams {
	for _, band := range bands {
		if age <= band.MaxAge {
			params := objective.TermParams{
				Enabled: band.Enabled,
				Weight:  band.Weight,
			}
			if params.Weight == 0 {
				params.Weight = 1
			}
			if band.Bounds != nil {
				params.Bounds = &objective.Restriction{Min: band.Bounds[0], Max: band.Bounds[1]}
			}
			return params
		}
	}
	return objective.TermParams{Enabled: false, Weight: 1}
}

// ReferenceAt resolves the reference plate and optional override rotation
// file at the given age.
func (cfg *Config) ReferenceAt(age float64) (ReferenceBand, error) {
	for _, band := range cfg.Reference {
		if age <= band.MaxAge {
			return band, nil
		}
	}
	return ReferenceBand{}, fmt.Errorf("no reference plate configured for age %.1f Ma", age)
}

// DataPath resolves a data file path relative to the data directory.
func (cfg *Config) DataPath(name string) string {
	if name == "" || cfg.Data.Dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.Data.Dir, name)
}

// AgeRange returns the campaign ages oldest first: each step at age t
// optimizes the interval [t, t-interval] and must complete before the
// next younger step starts.
func (cfg *Config) AgeRange() []float64 {
	var ages []float64
	for age := cfg.Ages.Start; age > cfg.Ages.End; age -= cfg.Ages.Interval {
		ages = append(ages, age)
	}
	return ages
}
