package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tepstack/tep-sentinel/internal/dataset"
	"github.com/tepstack/tep-sentinel/internal/engine"
	"github.com/tepstack/tep-sentinel/internal/ml"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the detector and diagnostician on the labelled dataset",
	RunE:  runTrain,
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	runs, err := dataset.LoadRuns(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	logger.Info("dataset loaded", slog.Int("runs", len(runs)), slog.String("dir", cfg.Data.Dir))

	train, eval, err := dataset.Partition(runs, cfg.Training.EvalFraction, cfg.Training.Seed)
	if err != nil {
		return fmt.Errorf("partition dataset: %w", err)
	}
	logger.Info("dataset partitioned",
		slog.Int("train_runs", len(train)),
		slog.Int("eval_runs", len(eval)))

	trainer := engine.NewTrainer(logger, cfg.Training)

	detector, err := trainer.TrainDetector(train)
	if err != nil {
		return fmt.Errorf("train detector: %w", err)
	}
	if err := ml.Save(detector, cfg.Models.DetectorPath()); err != nil {
		return fmt.Errorf("save detector: %w", err)
	}
	logger.Info("detector saved", slog.String("path", cfg.Models.DetectorPath()))

	diagnostician, err := trainer.TrainDiagnostician(train)
	if err != nil {
		return fmt.Errorf("train diagnostician: %w", err)
	}
	if err := ml.Save(diagnostician, cfg.Models.DiagnosticianPath()); err != nil {
		return fmt.Errorf("save diagnostician: %w", err)
	}
	logger.Info("diagnostician saved", slog.String("path", cfg.Models.DiagnosticianPath()))

	fmt.Fprintf(cmd.OutOrStdout(), "Trained on %d runs (%d held out for evaluation)\n", len(train), len(eval))
	return nil
}
