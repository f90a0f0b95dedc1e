package engine

import (
	"errors"
	"testing"

	"github.com/tepstack/tep-sentinel/internal/ml"
)

type fakeStage struct {
	pred  ml.Prediction
	err   error
	calls int
}

func (f *fakeStage) Predict(values []float64) (ml.Prediction, error) {
	f.calls++
	return f.pred, f.err
}

func TestCascadeSkipsDiagnosticianOnNormal(t *testing.T) {
	detector := &fakeStage{pred: ml.Prediction{Label: 0, Confidence: 0.97}}
	diagnostician := &fakeStage{pred: ml.Prediction{Label: 4, Confidence: 0.9}}

	cascade, err := NewCascade(detector, diagnostician)
	if err != nil {
		t.Fatalf("new cascade: %v", err)
	}

	decision, err := cascade.Infer([]float64{1, 2, 3})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if decision.IsFaulty {
		t.Fatalf("expected normal decision")
	}
	if decision.FaultID != 0 {
		t.Fatalf("normal decision must carry no fault id, got %d", decision.FaultID)
	}
	if diagnostician.calls != 0 {
		t.Fatalf("diagnostician ran %d times on a normal sample", diagnostician.calls)
	}
	if decision.DetectorConfidence != 0.97 {
		t.Fatalf("unexpected detector confidence %g", decision.DetectorConfidence)
	}
}

func TestCascadeRunsDiagnosticianOnFault(t *testing.T) {
	detector := &fakeStage{pred: ml.Prediction{Label: 1, Confidence: 0.88}}
	diagnostician := &fakeStage{pred: ml.Prediction{Label: 13, Confidence: 0.71}}

	cascade, err := NewCascade(detector, diagnostician)
	if err != nil {
		t.Fatalf("new cascade: %v", err)
	}

	decision, err := cascade.Infer([]float64{1, 2, 3})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if !decision.IsFaulty || decision.FaultID != 13 {
		t.Fatalf("expected fault 13, got %+v", decision)
	}
	if diagnostician.calls != 1 {
		t.Fatalf("diagnostician should run exactly once, ran %d times", diagnostician.calls)
	}
	if decision.DiagnosisConfidence != 0.71 {
		t.Fatalf("unexpected diagnosis confidence %g", decision.DiagnosisConfidence)
	}
}

func TestCascadePropagatesStageErrors(t *testing.T) {
	stageErr := errors.New("boom")

	cascade, err := NewCascade(&fakeStage{err: stageErr}, &fakeStage{})
	if err != nil {
		t.Fatalf("new cascade: %v", err)
	}
	if _, err := cascade.Infer([]float64{1}); !errors.Is(err, stageErr) {
		t.Fatalf("expected wrapped stage error, got %v", err)
	}
}

func TestNewCascadeRequiresBothStages(t *testing.T) {
	if _, err := NewCascade(nil, &fakeStage{}); err == nil {
		t.Fatalf("expected error for nil detector")
	}
	if _, err := NewCascade(&fakeStage{}, nil); err == nil {
		t.Fatalf("expected error for nil diagnostician")
	}
}
