package geodata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TrenchFilename returns the per-age resolved trench file name, matching
// the naming used by the trench pre-resolution step.
func TrenchFilename(age float64) string {
	return fmt.Sprintf("trenches_%dMa.json", int(age))
}

// LoadTrenchSegments reads the resolved trench file for one age from the
// given directory.
func LoadTrenchSegments(dir string, age float64) ([]TrenchSegment, error) {
	path := filepath.Join(dir, TrenchFilename(age))
	var segments []TrenchSegment
	if err := loadJSON(path, &segments); err != nil {
		return nil, fmt.Errorf("loading trench segments: %w", err)
	}
	return segments, nil
}

// LoadHotspotTrails reads the hotspot trail catalogue. When includeChains
// is non-empty, only the named chains are returned.
func LoadHotspotTrails(path string, includeChains []string) ([]HotspotTrail, error) {
	var trails []HotspotTrail
	if err := loadJSON(path, &trails); err != nil {
		return nil, fmt.Errorf("loading hotspot trails: %w", err)
	}
	if len(includeChains) == 0 {
		return trails, nil
	}
	include := make(map[string]bool, len(includeChains))
	for _, name := range includeChains {
		include[name] = true
	}
	var filtered []HotspotTrail
	for _, trail := range trails {
		if include[trail.Name] {
			filtered = append(filtered, trail)
		}
	}
	return filtered, nil
}

// LoadFracturePicks reads the fracture-zone pick file.
func LoadFracturePicks(path string) ([]FracturePick, error) {
	var picks []FracturePick
	if err := loadJSON(path, &picks); err != nil {
		return nil, fmt.Errorf("loading fracture zone picks: %w", err)
	}
	return picks, nil
}

// LoadContinentPoints reads the continental grid point file.
func LoadContinentPoints(path string) ([]ContinentPoint, error) {
	var points []ContinentPoint
	if err := loadJSON(path, &points); err != nil {
		return nil, fmt.Errorf("loading continent points: %w", err)
	}
	return points, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
