package ml

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Stage names the two cascade positions an artifact can be trained for.
type Stage string

const (
	StageDetector      Stage = "detector"
	StageDiagnostician Stage = "diagnostician"
)

// Artifact bundles a fitted scaler and classifier for one cascade stage.
// It is immutable once trained: the serving process loads it read-only and
// replaces it only through an explicit retraining pass.
type Artifact struct {
	Stage     Stage
	Channels  []string
	Scaler    *StandardScaler
	Forest    *RandomForest
	TrainedAt time.Time
}

// Manifest is the JSON sidecar written next to each artifact, versioning it
// by training timestamp and content hash.
type Manifest struct {
	Stage     Stage     `json:"stage"`
	TrainedAt time.Time `json:"trained_at"`
	SHA256    string    `json:"sha256"`
	Channels  int       `json:"channels"`
	Trees     int       `json:"trees"`
}

// Predict scales the raw vector and runs the stage classifier.
func (a *Artifact) Predict(values []float64) (Prediction, error) {
	scaled, err := a.Scaler.Transform(values)
	if err != nil {
		return Prediction{}, fmt.Errorf("%s: %w", a.Stage, err)
	}
	return a.Forest.Predict(scaled)
}

// PredictBatch scales and classifies a row-major matrix.
func (a *Artifact) PredictBatch(rows [][]float64) ([]Prediction, error) {
	scaled, err := a.Scaler.TransformBatch(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Stage, err)
	}
	return a.Forest.PredictBatch(scaled)
}

// Fingerprint returns the content hash of the encoded artifact.
func (a *Artifact) Fingerprint() (string, error) {
	payload, err := a.encode()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func (a *Artifact) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, fmt.Errorf("encode %s artifact: %w", a.Stage, err)
	}
	return buf.Bytes(), nil
}

// Save writes the artifact and its manifest sidecar.
func Save(artifact *Artifact, path string) error {
	if artifact == nil || artifact.Forest == nil || artifact.Scaler == nil {
		return fmt.Errorf("save artifact: incomplete artifact")
	}
	payload, err := artifact.encode()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	sum := sha256.Sum256(payload)
	manifest := Manifest{
		Stage:     artifact.Stage,
		TrainedAt: artifact.TrainedAt,
		SHA256:    hex.EncodeToString(sum[:]),
		Channels:  len(artifact.Channels),
		Trees:     len(artifact.Forest.Roots),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath(path), data, 0o644); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// Load reads an artifact and, when a manifest sidecar exists, verifies the
// payload hash against it. A corrupt or missing artifact is a fatal
// configuration problem for the caller.
func Load(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", path, err)
	}

	if manifest, err := readManifest(manifestPath(path)); err == nil {
		sum := sha256.Sum256(payload)
		if got := hex.EncodeToString(sum[:]); got != manifest.SHA256 {
			return nil, fmt.Errorf("load artifact %s: hash mismatch (manifest %s, payload %s)", path, manifest.SHA256, got)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var artifact Artifact
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if artifact.Forest == nil || artifact.Scaler == nil {
		return nil, fmt.Errorf("load artifact %s: incomplete payload", path)
	}
	return &artifact, nil
}

func manifestPath(path string) string {
	return path + ".manifest.json"
}

func readManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return manifest, nil
}
