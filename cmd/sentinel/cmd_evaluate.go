package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tepstack/tep-sentinel/internal/dataset"
	"github.com/tepstack/tep-sentinel/internal/engine"
	"github.com/tepstack/tep-sentinel/internal/evaluation"
	"github.com/tepstack/tep-sentinel/internal/ml"
)

var evaluateFlags struct {
	force bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the trained cascade on the held-out partition",
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().BoolVar(&evaluateFlags.force, "force", false, "Overwrite an existing report")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	if !evaluateFlags.force {
		if _, err := os.Stat(cfg.Report.Path); err == nil {
			return fmt.Errorf("report already exists at %s (use --force to overwrite)", cfg.Report.Path)
		}
	}

	detector, err := ml.Load(cfg.Models.DetectorPath())
	if err != nil {
		return fmt.Errorf("load detector: %w", err)
	}
	diagnostician, err := ml.Load(cfg.Models.DiagnosticianPath())
	if err != nil {
		return fmt.Errorf("load diagnostician: %w", err)
	}

	cascade, err := engine.NewCascade(detector, diagnostician)
	if err != nil {
		return err
	}

	runs, err := dataset.LoadRuns(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	_, eval, err := dataset.Partition(runs, cfg.Training.EvalFraction, cfg.Training.Seed)
	if err != nil {
		return fmt.Errorf("partition dataset: %w", err)
	}

	evaluator := evaluation.NewEvaluator(logger, cascade, cfg.Stream)
	report, err := evaluator.Evaluate(eval)
	if err != nil {
		return fmt.Errorf("evaluate cascade: %w", err)
	}

	if err := evaluation.WriteReport(report, cfg.Report.Path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("report written",
		slog.String("path", cfg.Report.Path),
		slog.Float64("accuracy", report.Accuracy))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Evaluated %d runs (%d samples)\n", report.EvaluatedRuns, report.EvaluatedSamples)
	fmt.Fprintf(out, "Accuracy:             %.4f\n", report.Accuracy)
	fmt.Fprintf(out, "Mean detection delay: %.1f steps (%.0f min)\n", report.MeanDetectionDelaySteps, report.MeanDetectionDelayMin)
	fmt.Fprintf(out, "Mean diagnosis delay: %.1f steps (%.0f min)\n", report.MeanDiagnosisDelaySteps, report.MeanDiagnosisDelayMin)
	fmt.Fprintf(out, "Report: %s\n", cfg.Report.Path)
	return nil
}
