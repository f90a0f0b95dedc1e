package ml

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func fittedArtifact(t *testing.T) *Artifact {
	t.Helper()
	features, labels := separableSet()

	scaler := NewStandardScaler()
	if err := scaler.Fit(features); err != nil {
		t.Fatalf("fit scaler: %v", err)
	}
	scaled, err := scaler.TransformBatch(features)
	if err != nil {
		t.Fatalf("scale: %v", err)
	}

	forest := NewRandomForest(ForestParams{Trees: 5, MaxDepth: 3, Seed: 42, Workers: 1})
	if err := forest.Fit(scaled, labels); err != nil {
		t.Fatalf("fit forest: %v", err)
	}

	return &Artifact{
		Stage:     StageDetector,
		Channels:  []string{"xmeas_1", "xmeas_2"},
		Scaler:    scaler,
		Forest:    forest,
		TrainedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestArtifactSaveLoadRoundTrip(t *testing.T) {
	artifact := fittedArtifact(t)
	path := filepath.Join(t.TempDir(), "models", "detector.model")

	if err := Save(artifact, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".manifest.json"); err != nil {
		t.Fatalf("manifest sidecar missing: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Stage != StageDetector {
		t.Fatalf("unexpected stage %q", loaded.Stage)
	}

	sample := []float64{-2, 0.5}
	want, err := artifact.Predict(sample)
	if err != nil {
		t.Fatalf("predict original: %v", err)
	}
	got, err := loaded.Predict(sample)
	if err != nil {
		t.Fatalf("predict loaded: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("loaded artifact predicts differently (-want +got):\n%s", diff)
	}
}

func TestArtifactLoadDetectsTampering(t *testing.T) {
	artifact := fittedArtifact(t)
	path := filepath.Join(t.TempDir(), "detector.model")
	if err := Save(artifact, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	payload[len(payload)/2] ^= 0xff
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("rewrite payload: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected hash mismatch error")
	}
}

func TestArtifactLoadToleratesMissingManifest(t *testing.T) {
	artifact := fittedArtifact(t)
	path := filepath.Join(t.TempDir(), "detector.model")
	if err := Save(artifact, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.Remove(path + ".manifest.json"); err != nil {
		t.Fatalf("remove manifest: %v", err)
	}

	if _, err := Load(path); err != nil {
		t.Fatalf("load without manifest: %v", err)
	}
}

func TestArtifactSaveRejectsIncomplete(t *testing.T) {
	if err := Save(&Artifact{Stage: StageDetector}, filepath.Join(t.TempDir(), "x.model")); err == nil {
		t.Fatalf("expected error for artifact without scaler and forest")
	}
}
