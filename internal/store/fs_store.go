package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSResultStore implements ResultStore on the filesystem. Bundles live in
// <baseDir>/runs/<runID>/steps/age_<age>/result.json.
//
// Thread-safety: atomic temp-file + rename writes, no locks needed under
// the campaign's single-writer discipline.
type FSResultStore struct {
	baseDir string
}

// NewFSResultStore creates a filesystem result store rooted at baseDir,
// creating it if needed.
func NewFSResultStore(baseDir string) (*FSResultStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSResultStore{baseDir: baseDir}, nil
}

func (fs *FSResultStore) runDir(runID string) string {
	return filepath.Join(fs.baseDir, "runs", runID)
}

func (fs *FSResultStore) stepPath(runID string, startAge float64) string {
	return filepath.Join(fs.runDir(runID), "steps", fmt.Sprintf("age_%g", startAge), "result.json")
}

// SaveStep atomically writes the bundle for one step.
func (fs *FSResultStore) SaveStep(runID string, result *StepResult) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	if err := result.Validate(); err != nil {
		return fmt.Errorf("invalid step result: %w", err)
	}

	path := fs.stepPath(runID, result.StartAge)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create step directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize step result: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp result file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename result file: %w", err)
	}

	slog.Debug("Step result saved", "run_id", runID, "start_age", result.StartAge, "path", path)
	return nil
}

// LoadStep reads one step bundle.
func (fs *FSResultStore) LoadStep(runID string, startAge float64) (*StepResult, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := fs.stepPath(runID, startAge)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID, Age: startAge, Step: true}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	var result StepResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize step result: %w", err)
	}
	return &result, nil
}

// ListSteps returns the metadata of every committed step, oldest first.
func (fs *FSResultStore) ListSteps(runID string) ([]StepInfo, error) {
	stepsDir := filepath.Join(fs.runDir(runID), "steps")
	entries, err := os.ReadDir(stepsDir)
	if os.IsNotExist(err) {
		return []StepInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read steps directory: %w", err)
	}

	var infos []StepInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var age float64
		if _, err := fmt.Sscanf(entry.Name(), "age_%g", &age); err != nil {
			continue
		}
		result, err := fs.LoadStep(runID, age)
		if err != nil {
			slog.Warn("Failed to load step result for listing", "run_id", runID, "age", age, "error", err)
			continue
		}
		infos = append(infos, result.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].StartAge > infos[j].StartAge })
	return infos, nil
}

// ListRuns returns all run IDs with committed data.
func (fs *FSResultStore) ListRuns() ([]string, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")
	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var runs []string
	for _, entry := range entries {
		if entry.IsDir() {
			runs = append(runs, entry.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}

// DeleteRun removes a run and all its step bundles.
func (fs *FSResultStore) DeleteRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	dir := fs.runDir(runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}
	slog.Debug("Run deleted", "run_id", runID, "path", dir)
	return nil
}
