package engine

import (
	"fmt"

	"github.com/tepstack/tep-sentinel/internal/ml"
	"github.com/tepstack/tep-sentinel/internal/models"
)

// Stage is one trained cascade position. Implementations must be immutable
// after training and safe for concurrent Predict calls.
type Stage interface {
	Predict(values []float64) (ml.Prediction, error)
}

// Cascade composes the detector and diagnostician into one decision function.
// The diagnostician only runs on detector-positive samples; a detector false
// negative makes diagnosis for that sample unreachable, which is the point
// of the cascade.
type Cascade struct {
	detector      Stage
	diagnostician Stage
}

// NewCascade wires the two stages. Both must be present.
func NewCascade(detector, diagnostician Stage) (*Cascade, error) {
	if detector == nil {
		return nil, fmt.Errorf("cascade: detector stage is nil")
	}
	if diagnostician == nil {
		return nil, fmt.Errorf("cascade: diagnostician stage is nil")
	}
	return &Cascade{detector: detector, diagnostician: diagnostician}, nil
}

// Infer classifies one raw sensor vector. The returned decision holds a
// fault id only when the detector reports a fault.
func (c *Cascade) Infer(values []float64) (models.CascadeDecision, error) {
	detection, err := c.detector.Predict(values)
	if err != nil {
		return models.CascadeDecision{}, fmt.Errorf("detector stage: %w", err)
	}

	decision := models.CascadeDecision{
		IsFaulty:           detection.Label != 0,
		DetectorConfidence: detection.Confidence,
	}
	if !decision.IsFaulty {
		return decision, nil
	}

	diagnosis, err := c.diagnostician.Predict(values)
	if err != nil {
		return models.CascadeDecision{}, fmt.Errorf("diagnostician stage: %w", err)
	}
	decision.FaultID = diagnosis.Label
	decision.DiagnosisConfidence = diagnosis.Confidence
	return decision, nil
}

// InferBatch classifies a row-major matrix of raw sensor vectors.
func (c *Cascade) InferBatch(rows [][]float64) ([]models.CascadeDecision, error) {
	decisions := make([]models.CascadeDecision, len(rows))
	for i, row := range rows {
		decision, err := c.Infer(row)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		decisions[i] = decision
	}
	return decisions, nil
}
