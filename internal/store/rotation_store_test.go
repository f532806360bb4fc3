package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/platefit/internal/rotation"
)

func TestRotationStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.rot")
	content := "005 0.0 90.0 0.0 0.0 000\n005 50.0 30.0 40.0 10.0 000\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rs := NewRotationStore(path)
	sequences, err := rs.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(sequences) != 1 {
		t.Fatalf("Expected 1 sequence, got %d", len(sequences))
	}

	// Mutate and persist.
	sequences[0].Samples[1].Rotation = rotation.NewFiniteRotation(45, -100, 7)
	if err := rs.Save(sequences); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A fresh load observes the committed mutation.
	reloaded, err := rs.Load()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	got := reloaded[0].Samples[1].Rotation
	if !got.Equivalent(rotation.NewFiniteRotation(45, -100, 7), 1e-5) {
		t.Errorf("Reloaded rotation does not match the saved mutation")
	}
}

func TestRotationStoreLoadIsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.rot")
	if err := os.WriteFile(path, []byte("005 0.0 90.0 0.0 0.0 000\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rs := NewRotationStore(path)
	first, err := rs.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Mutating a previously loaded copy must not affect later loads.
	first[0].Samples[0].Rotation = rotation.NewFiniteRotation(0, 0, 90)

	second, err := rs.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !second[0].Samples[0].Rotation.Equivalent(rotation.Identity(), 1e-9) {
		t.Errorf("Load returned stale in-memory state instead of re-reading the file")
	}
}

func TestRotationStoreMissingFile(t *testing.T) {
	rs := NewRotationStore(filepath.Join(t.TempDir(), "missing.rot"))
	if _, err := rs.Load(); err == nil {
		t.Errorf("Expected an error for a missing rotation file")
	}
}
