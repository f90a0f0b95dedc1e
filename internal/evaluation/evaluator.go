// Package evaluation scores a trained cascade against held-out runs and
// persists the metrics artifact consumed by the dashboard.
package evaluation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tepstack/tep-sentinel/internal/config"
	"github.com/tepstack/tep-sentinel/internal/engine"
	"github.com/tepstack/tep-sentinel/internal/models"
)

// Evaluator computes static classification metrics from raw cascade
// decisions and delay statistics from replayed event streams. Given fixed
// inputs its output is deterministic.
type Evaluator struct {
	logger    *slog.Logger
	cascade   *engine.Cascade
	streamCfg config.StreamConfig
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(logger *slog.Logger, cascade *engine.Cascade, streamCfg config.StreamConfig) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{logger: logger, cascade: cascade, streamCfg: streamCfg}
}

// Evaluate runs the cascade over every evaluation sample and every
// evaluation run's stream, producing the full metrics report.
func (e *Evaluator) Evaluate(runs []models.SimulationRun) (models.MetricsReport, error) {
	if len(runs) == 0 {
		return models.MetricsReport{}, fmt.Errorf("evaluate: no evaluation runs")
	}

	report := models.MetricsReport{
		PerClass:  make(map[int]models.ClassMetrics),
		CreatedAt: time.Now().UTC(),
	}

	counts := newConfusionCounts()
	var delays delayAccumulator

	for _, run := range runs {
		decisions := make([]models.CascadeDecision, len(run.Samples))
		for i, sample := range run.Samples {
			decision, err := e.cascade.Infer(sample.Values)
			if err != nil {
				return models.MetricsReport{}, fmt.Errorf("run %s step %d: %w", run.ID, sample.Step, err)
			}
			decisions[i] = decision
			counts.observe(sample.Label, decision.FaultID)
		}

		if run.FaultID != models.NormalLabel {
			if err := e.replayStream(run, decisions, &delays); err != nil {
				return models.MetricsReport{}, err
			}
		}
		report.EvaluatedSamples += len(run.Samples)
	}

	counts.fill(&report)
	delays.fill(&report)
	report.EvaluatedRuns = len(runs)

	e.logger.Info("evaluation complete",
		slog.Int("runs", report.EvaluatedRuns),
		slog.Int("samples", report.EvaluatedSamples),
		slog.Float64("accuracy", report.Accuracy),
		slog.Float64("mean_detection_delay_steps", report.MeanDetectionDelaySteps))

	return report, nil
}

// replayStream feeds one faulty run through a fresh event detector and
// accumulates detection/diagnosis delays relative to the true onset.
func (e *Evaluator) replayStream(run models.SimulationRun, decisions []models.CascadeDecision, delays *delayAccumulator) error {
	detector, err := engine.NewEventDetector(e.streamCfg)
	if err != nil {
		return err
	}

	onset := run.OnsetStep()
	detected := false
	diagnosed := false
	for i, sample := range run.Samples {
		events, err := detector.Feed(sample.Step, decisions[i])
		if err != nil {
			return fmt.Errorf("replay run %s: %w", run.ID, err)
		}
		for _, event := range events {
			switch event.Kind {
			case models.EventDetection:
				if !detected && onset >= 0 && event.AnnouncedStep >= onset {
					detected = true
					delays.detection(float64(event.AnnouncedStep - onset))
				}
			case models.EventDiagnosis:
				if !diagnosed && onset >= 0 && event.FaultID == run.FaultID && event.AnnouncedStep >= onset {
					diagnosed = true
					delays.diagnosis(float64(event.AnnouncedStep - onset))
				}
			}
		}
	}
	return nil
}

// confusionCounts tracks one-vs-rest tallies over the label set {0..20}.
type confusionCounts struct {
	tp      map[int]int
	fp      map[int]int
	fn      map[int]int
	support map[int]int
	correct int
	total   int
}

func newConfusionCounts() *confusionCounts {
	return &confusionCounts{
		tp:      make(map[int]int),
		fp:      make(map[int]int),
		fn:      make(map[int]int),
		support: make(map[int]int),
	}
}

func (c *confusionCounts) observe(truth, predicted int) {
	c.total++
	c.support[truth]++
	if truth == predicted {
		c.correct++
		c.tp[truth]++
		return
	}
	c.fp[predicted]++
	c.fn[truth]++
}

func (c *confusionCounts) fill(report *models.MetricsReport) {
	for class := models.NormalLabel; class <= models.MaxFaultID; class++ {
		tp := float64(c.tp[class])
		fp := float64(c.fp[class])
		fn := float64(c.fn[class])

		var precision, recall, f1 float64
		if tp+fp > 0 {
			precision = tp / (tp + fp)
		}
		if tp+fn > 0 {
			recall = tp / (tp + fn)
		}
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		report.PerClass[class] = models.ClassMetrics{
			Precision: precision,
			Recall:    recall,
			F1:        f1,
			Support:   c.support[class],
		}
	}
	if c.total > 0 {
		report.Accuracy = float64(c.correct) / float64(c.total)
	}
}

type delayAccumulator struct {
	detectionSum   float64
	detectionCount int
	diagnosisSum   float64
	diagnosisCount int
}

func (d *delayAccumulator) detection(steps float64) {
	d.detectionSum += steps
	d.detectionCount++
}

func (d *delayAccumulator) diagnosis(steps float64) {
	d.diagnosisSum += steps
	d.diagnosisCount++
}

func (d *delayAccumulator) fill(report *models.MetricsReport) {
	report.DetectedRuns = d.detectionCount
	report.DiagnosedRuns = d.diagnosisCount
	if d.detectionCount > 0 {
		report.MeanDetectionDelaySteps = d.detectionSum / float64(d.detectionCount)
		report.MeanDetectionDelayMin = report.MeanDetectionDelaySteps * models.SamplePeriodMinutes
	}
	if d.diagnosisCount > 0 {
		report.MeanDiagnosisDelaySteps = d.diagnosisSum / float64(d.diagnosisCount)
		report.MeanDiagnosisDelayMin = report.MeanDiagnosisDelaySteps * models.SamplePeriodMinutes
	}
}
