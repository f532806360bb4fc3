package store

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cwbudde/platefit/internal/rotation"
)

// RotationStore is the durable rotation state shared by every process of
// a campaign. Reads always come fresh from disk so a process never
// observes another process's in-memory mutations; writes rewrite the whole
// file atomically. The coordinating process is the only writer, and it
// writes exactly once per time step.
type RotationStore struct {
	path string
}

// NewRotationStore wraps the rotation file at the given path.
func NewRotationStore(path string) *RotationStore {
	return &RotationStore{path: path}
}

// Path returns the location of the durable rotation file.
func (rs *RotationStore) Path() string {
	return rs.path
}

// Load reads and parses the full rotation state from disk.
func (rs *RotationStore) Load() ([]*rotation.Sequence, error) {
	data, err := os.ReadFile(rs.path)
	if err != nil {
		return nil, fmt.Errorf("reading rotation state: %w", err)
	}
	sequences, err := rotation.ParseRot(data)
	if err != nil {
		return nil, fmt.Errorf("parsing rotation state: %w", err)
	}
	return sequences, nil
}

// Save atomically rewrites the full rotation state.
func (rs *RotationStore) Save(sequences []*rotation.Sequence) error {
	data := rotation.FormatRot(sequences)
	tempPath := rs.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("writing temp rotation state: %w", err)
	}
	if err := os.Rename(tempPath, rs.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("committing rotation state: %w", err)
	}
	slog.Debug("Rotation state committed", "path", rs.path, "sequences", len(sequences))
	return nil
}
