// Package engine contains the cascaded classification engine and the
// streaming event detector that turns per-sample decisions into operator
// events.
package engine

import (
	"log/slog"
	"time"

	"github.com/tepstack/tep-sentinel/internal/config"
	"github.com/tepstack/tep-sentinel/internal/dataset"
	"github.com/tepstack/tep-sentinel/internal/ml"
	"github.com/tepstack/tep-sentinel/internal/models"
	"github.com/tepstack/tep-sentinel/internal/utils"
)

// Trainer fits the two cascade stages from a partitioned training set.
type Trainer struct {
	logger *slog.Logger
	cfg    config.TrainingConfig
}

// NewTrainer constructs a Trainer.
func NewTrainer(logger *slog.Logger, cfg config.TrainingConfig) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{logger: logger, cfg: cfg}
}

// TrainDetector fits the binary normal-vs-faulty stage on every training
// sample. A single-class training set aborts the job: a degenerate detector
// must never be produced silently.
func (t *Trainer) TrainDetector(train []models.SimulationRun) (*ml.Artifact, error) {
	const op = "engine.TrainDetector"

	features, labels := dataset.Flatten(train)
	if len(features) == 0 {
		return nil, utils.TrainingDataError(op, "no training samples", nil)
	}

	binary := make([]int, len(labels))
	faulty := 0
	for i, label := range labels {
		if label != models.NormalLabel {
			binary[i] = 1
			faulty++
		}
	}
	if faulty == 0 || faulty == len(labels) {
		return nil, utils.TrainingDataError(op, "training set contains a single class", nil)
	}

	t.logger.Info("training detector",
		slog.Int("samples", len(features)),
		slog.Int("faulty", faulty),
		slog.Int("trees", t.cfg.Detector.Trees))

	return t.fitStage(ml.StageDetector, t.cfg.Detector, features, binary)
}

// TrainDiagnostician fits the multiclass fault-identification stage on
// faulty-labelled samples only. Zero faulty samples aborts training.
func (t *Trainer) TrainDiagnostician(train []models.SimulationRun) (*ml.Artifact, error) {
	const op = "engine.TrainDiagnostician"

	all, labels := dataset.Flatten(train)
	features := make([][]float64, 0, len(all))
	faultLabels := make([]int, 0, len(labels))
	for i, label := range labels {
		if label == models.NormalLabel {
			continue
		}
		features = append(features, all[i])
		faultLabels = append(faultLabels, label)
	}
	if len(features) == 0 {
		return nil, utils.TrainingDataError(op, "no faulty samples in training set", nil)
	}

	t.logger.Info("training diagnostician",
		slog.Int("samples", len(features)),
		slog.Int("trees", t.cfg.Diagnostician.Trees))

	return t.fitStage(ml.StageDiagnostician, t.cfg.Diagnostician, features, faultLabels)
}

func (t *Trainer) fitStage(stage ml.Stage, forestCfg config.ForestConfig, features [][]float64, labels []int) (*ml.Artifact, error) {
	scaler := ml.NewStandardScaler()
	if err := scaler.Fit(features); err != nil {
		return nil, utils.TrainingDataError("engine.fitStage", string(stage)+" scaler fit failed", err)
	}
	scaled, err := scaler.TransformBatch(features)
	if err != nil {
		return nil, err
	}

	forest := ml.NewRandomForest(ml.ForestParams{
		Trees:    forestCfg.Trees,
		MaxDepth: forestCfg.MaxDepth,
		Seed:     t.cfg.Seed,
		Workers:  t.cfg.Workers,
	})
	if err := forest.Fit(scaled, labels); err != nil {
		return nil, utils.TrainingDataError("engine.fitStage", string(stage)+" forest fit failed", err)
	}

	return &ml.Artifact{
		Stage:     stage,
		Channels:  models.SensorChannels(),
		Scaler:    scaler,
		Forest:    forest,
		TrainedAt: time.Now().UTC(),
	}, nil
}
