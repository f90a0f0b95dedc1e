package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tepstack/tep-sentinel/internal/cache"
	"github.com/tepstack/tep-sentinel/internal/config"
	"github.com/tepstack/tep-sentinel/internal/engine"
	"github.com/tepstack/tep-sentinel/internal/evaluation"
	"github.com/tepstack/tep-sentinel/internal/ml"
	"github.com/tepstack/tep-sentinel/internal/models"
	"github.com/tepstack/tep-sentinel/internal/utils"
)

// constStage always answers with the same label.
type constStage struct {
	label      int
	confidence float64
}

func (s constStage) Predict([]float64) (ml.Prediction, error) {
	return ml.Prediction{Label: s.label, Confidence: s.confidence}, nil
}

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		StabilizationSamples: 0,
		PersistenceThreshold: 2,
		DiagnosisWindow:      3,
		DiagnosisMajority:    0.6,
	}
}

func newService(t *testing.T, detector, diagnostician engine.Stage, reportPath string) *MonitorService {
	t.Helper()
	cascade, err := engine.NewCascade(detector, diagnostician)
	if err != nil {
		t.Fatalf("new cascade: %v", err)
	}
	return NewMonitorService(nil, cascade, testStreamConfig(), cache.NewMemoryProvider(), config.Default().Cache, reportPath)
}

func fullSensorPayload(value float64) map[string]float64 {
	sensors := make(map[string]float64, models.ChannelCount)
	for _, channel := range models.SensorChannels() {
		sensors[channel] = value
	}
	return sensors
}

func TestPredictNormal(t *testing.T) {
	svc := newService(t, constStage{label: 0, confidence: 0.96}, constStage{label: 4, confidence: 0.9}, "")

	resp, err := svc.Predict(context.Background(), models.PredictRequest{Sensors: fullSensorPayload(1)})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if resp.IsFaulty || resp.FaultID != nil {
		t.Fatalf("expected normal response, got %+v", resp)
	}
	if resp.Status != "Normal Operation" {
		t.Fatalf("unexpected status %q", resp.Status)
	}
}

func TestPredictFaulty(t *testing.T) {
	svc := newService(t, constStage{label: 1, confidence: 0.9}, constStage{label: 13, confidence: 0.8}, "")

	resp, err := svc.Predict(context.Background(), models.PredictRequest{Sensors: fullSensorPayload(1)})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !resp.IsFaulty || resp.FaultID == nil || *resp.FaultID != 13 {
		t.Fatalf("expected fault 13, got %+v", resp)
	}
	if resp.DiagnosisConfidence != 0.8 {
		t.Fatalf("unexpected diagnosis confidence %g", resp.DiagnosisConfidence)
	}
}

func TestPredictRejectsPartialPayload(t *testing.T) {
	svc := newService(t, constStage{}, constStage{}, "")

	sensors := fullSensorPayload(1)
	delete(sensors, "xmeas_17")
	if _, err := svc.Predict(context.Background(), models.PredictRequest{Sensors: sensors}); !utils.IsCode(err, utils.CodeValidation) {
		t.Fatalf("expected validation error for missing channel, got %v", err)
	}

	if _, err := svc.Predict(context.Background(), models.PredictRequest{}); !utils.IsCode(err, utils.CodeValidation) {
		t.Fatalf("expected validation error for empty payload, got %v", err)
	}
}

func TestPredictRejectsUnknownChannel(t *testing.T) {
	svc := newService(t, constStage{}, constStage{}, "")

	sensors := fullSensorPayload(1)
	sensors["xmeas_99"] = 5
	if _, err := svc.Predict(context.Background(), models.PredictRequest{Sensors: sensors}); !utils.IsCode(err, utils.CodeValidation) {
		t.Fatalf("expected validation error for unknown channel, got %v", err)
	}
}

func TestServiceNotReady(t *testing.T) {
	svc := NewMonitorService(nil, nil, testStreamConfig(), nil, config.CacheConfig{}, "")
	if svc.Ready() {
		t.Fatalf("service without artifacts must not be ready")
	}

	ctx := context.Background()
	if _, err := svc.Predict(ctx, models.PredictRequest{Sensors: fullSensorPayload(1)}); !utils.IsCode(err, utils.CodeConfiguration) {
		t.Fatalf("expected configuration error from Predict, got %v", err)
	}
	if _, err := svc.StartSession(ctx, models.StartSessionRequest{}); !utils.IsCode(err, utils.CodeConfiguration) {
		t.Fatalf("expected configuration error from StartSession, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc := newService(t, constStage{label: 1, confidence: 0.9}, constStage{label: 4, confidence: 0.85}, "")
	ctx := context.Background()

	opened, err := svc.StartSession(ctx, models.StartSessionRequest{})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if opened.SessionID == "" {
		t.Fatalf("empty session id")
	}

	// Persistence threshold 2: first faulty sample raises nothing.
	resp, err := svc.Feed(ctx, opened.SessionID, models.FeedRequest{Step: 0, Sensors: fullSensorPayload(1)})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("expected no events on first sample, got %v", resp.Events)
	}
	if resp.Phase != models.PhaseSuspect {
		t.Fatalf("expected SUSPECT phase, got %s", resp.Phase)
	}

	resp, err = svc.Feed(ctx, opened.SessionID, models.FeedRequest{Step: 1, Sensors: fullSensorPayload(1)})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Kind != models.EventDetection {
		t.Fatalf("expected detection event, got %v", resp.Events)
	}
	if resp.FaultID == nil || *resp.FaultID != 4 {
		t.Fatalf("expected per-sample fault id 4, got %+v", resp.FaultID)
	}

	if err := svc.EndSession(ctx, opened.SessionID); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if err := svc.EndSession(ctx, opened.SessionID); !utils.IsCode(err, utils.CodeSessionNotFound) {
		t.Fatalf("expected session not found on double close, got %v", err)
	}
}

func TestSessionKnobOverrides(t *testing.T) {
	svc := newService(t, constStage{label: 1, confidence: 0.9}, constStage{label: 4, confidence: 0.85}, "")
	ctx := context.Background()

	persistence := 1
	opened, err := svc.StartSession(ctx, models.StartSessionRequest{PersistenceThreshold: &persistence})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	resp, err := svc.Feed(ctx, opened.SessionID, models.FeedRequest{Step: 0, Sensors: fullSensorPayload(1)})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(resp.Events) == 0 || resp.Events[0].Kind != models.EventDetection {
		t.Fatalf("persistence override not applied, got %v", resp.Events)
	}
}

func TestFeedUnknownSession(t *testing.T) {
	svc := newService(t, constStage{}, constStage{}, "")
	_, err := svc.Feed(context.Background(), "no-such-session", models.FeedRequest{Step: 0, Sensors: fullSensorPayload(1)})
	if !utils.IsCode(err, utils.CodeSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestReportServedFromCacheAfterFileGone(t *testing.T) {
	reportPath := filepath.Join(t.TempDir(), "metrics.json")
	report := models.MetricsReport{Accuracy: 0.9, EvaluatedRuns: 3}
	if err := evaluation.WriteReport(report, reportPath); err != nil {
		t.Fatalf("write report: %v", err)
	}

	svc := newService(t, constStage{}, constStage{label: 1}, reportPath)
	ctx := context.Background()

	got, err := svc.Report(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if got.Accuracy != 0.9 {
		t.Fatalf("unexpected accuracy %g", got.Accuracy)
	}

	// The first read populated the cache; the file is no longer needed.
	if err := os.Remove(reportPath); err != nil {
		t.Fatalf("remove report: %v", err)
	}
	got, err = svc.Report(ctx)
	if err != nil {
		t.Fatalf("report from cache: %v", err)
	}
	if got.EvaluatedRuns != 3 {
		t.Fatalf("cached report mismatch: %+v", got)
	}
}

func TestReportMissing(t *testing.T) {
	svc := newService(t, constStage{}, constStage{label: 1}, filepath.Join(t.TempDir(), "absent.json"))
	if _, err := svc.Report(context.Background()); err == nil {
		t.Fatalf("expected error when no report exists")
	}
}
