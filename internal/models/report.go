package models

import "time"

// ClassMetrics holds one-vs-rest classification scores for a single label.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// MetricsReport is the persisted evaluation artifact consumed by the
// dashboard. Per-class keys cover the full label set {0..20}; delays are
// averaged over evaluation runs that contain a genuine fault.
type MetricsReport struct {
	PerClass map[int]ClassMetrics `json:"per_class"`
	Accuracy float64              `json:"accuracy"`

	MeanDetectionDelaySteps float64 `json:"mean_detection_delay_steps"`
	MeanDiagnosisDelaySteps float64 `json:"mean_diagnosis_delay_steps"`
	MeanDetectionDelayMin   float64 `json:"mean_detection_delay_min"`
	MeanDiagnosisDelayMin   float64 `json:"mean_diagnosis_delay_min"`

	EvaluatedSamples int       `json:"evaluated_samples"`
	EvaluatedRuns    int       `json:"evaluated_runs"`
	DetectedRuns     int       `json:"detected_runs"`
	DiagnosedRuns    int       `json:"diagnosed_runs"`
	CreatedAt        time.Time `json:"created_at"`
}
