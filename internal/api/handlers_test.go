package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/tepstack/tep-sentinel/internal/cache"
	"github.com/tepstack/tep-sentinel/internal/config"
	"github.com/tepstack/tep-sentinel/internal/engine"
	"github.com/tepstack/tep-sentinel/internal/evaluation"
	"github.com/tepstack/tep-sentinel/internal/ml"
	"github.com/tepstack/tep-sentinel/internal/models"
	"github.com/tepstack/tep-sentinel/internal/services"
)

type fixedStage struct {
	label      int
	confidence float64
}

func (s fixedStage) Predict([]float64) (ml.Prediction, error) {
	return ml.Prediction{Label: s.label, Confidence: s.confidence}, nil
}

func testHandler(t *testing.T, detector, diagnostician engine.Stage, reportPath string) http.Handler {
	t.Helper()
	var cascade *engine.Cascade
	if detector != nil {
		var err error
		cascade, err = engine.NewCascade(detector, diagnostician)
		if err != nil {
			t.Fatalf("new cascade: %v", err)
		}
	}

	streamCfg := config.StreamConfig{
		PersistenceThreshold: 2,
		DiagnosisWindow:      3,
		DiagnosisMajority:    0.6,
	}
	service := services.NewMonitorService(nil, cascade, streamCfg, cache.NewMemoryProvider(), config.Default().Cache, reportPath)
	return NewHandler(nil, service).Routes()
}

func sensorPayload(value float64) map[string]float64 {
	sensors := make(map[string]float64, models.ChannelCount)
	for _, channel := range models.SensorChannels() {
		sensors[channel] = value
	}
	return sensors
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	handler := testHandler(t, fixedStage{}, fixedStage{label: 1}, "")

	if rec := doJSON(t, handler, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
}

func TestReadinessWithoutArtifacts(t *testing.T) {
	handler := testHandler(t, nil, nil, "")

	if rec := doJSON(t, handler, http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from readyz, got %d", rec.Code)
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/predict", models.PredictRequest{Sensors: sensorPayload(1)})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from predict, got %d", rec.Code)
	}
}

func TestPredictEndpoint(t *testing.T) {
	handler := testHandler(t, fixedStage{label: 1, confidence: 0.9}, fixedStage{label: 7, confidence: 0.8}, "")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/predict", models.PredictRequest{Sensors: sensorPayload(1)})
	if rec.Code != http.StatusOK {
		t.Fatalf("predict: %d body %s", rec.Code, rec.Body.String())
	}
	resp := decode[models.PredictResponse](t, rec)
	if !resp.IsFaulty || resp.FaultID == nil || *resp.FaultID != 7 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPredictValidation(t *testing.T) {
	handler := testHandler(t, fixedStage{}, fixedStage{label: 1}, "")

	sensors := sensorPayload(1)
	delete(sensors, "xmv_3")
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/predict", models.PredictRequest{Sensors: sensors})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for partial payload, got %d", rec.Code)
	}

	// Unknown top-level fields are rejected by the strict decoder.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/predict", map[string]any{"sensor": sensorPayload(1)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestSessionFlow(t *testing.T) {
	handler := testHandler(t, fixedStage{label: 1, confidence: 0.9}, fixedStage{label: 4, confidence: 0.85}, "")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sessions", models.StartSessionRequest{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start session: %d body %s", rec.Code, rec.Body.String())
	}
	opened := decode[models.StartSessionResponse](t, rec)
	feedPath := fmt.Sprintf("/api/v1/sessions/%s/samples", opened.SessionID)

	rec = doJSON(t, handler, http.MethodPost, feedPath, models.FeedRequest{Step: 0, Sensors: sensorPayload(1)})
	if rec.Code != http.StatusOK {
		t.Fatalf("feed: %d body %s", rec.Code, rec.Body.String())
	}
	first := decode[models.FeedResponse](t, rec)
	if len(first.Events) != 0 || first.Phase != models.PhaseSuspect {
		t.Fatalf("unexpected first feed response %+v", first)
	}

	rec = doJSON(t, handler, http.MethodPost, feedPath, models.FeedRequest{Step: 1, Sensors: sensorPayload(1)})
	second := decode[models.FeedResponse](t, rec)
	if len(second.Events) != 1 || second.Events[0].Kind != models.EventDetection {
		t.Fatalf("expected detection event, got %+v", second.Events)
	}

	// Replaying an old step is a client error, not a server one.
	rec = doJSON(t, handler, http.MethodPost, feedPath, models.FeedRequest{Step: 1, Sensors: sensorPayload(1)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for replayed step, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+opened.SessionID, nil)
	del := httptest.NewRecorder()
	handler.ServeHTTP(del, req)
	if del.Code != http.StatusNoContent {
		t.Fatalf("end session: %d", del.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, feedPath, models.FeedRequest{Step: 2, Sensors: sensorPayload(1)})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", rec.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	reportPath := filepath.Join(t.TempDir(), "metrics.json")
	if err := evaluation.WriteReport(models.MetricsReport{Accuracy: 0.93, EvaluatedRuns: 5}, reportPath); err != nil {
		t.Fatalf("write report: %v", err)
	}

	handler := testHandler(t, fixedStage{}, fixedStage{label: 1}, reportPath)
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report: %d body %s", rec.Code, rec.Body.String())
	}
	report := decode[models.MetricsReport](t, rec)
	if report.Accuracy != 0.93 {
		t.Fatalf("unexpected accuracy %g", report.Accuracy)
	}
}

func TestReportMissingReturns404(t *testing.T) {
	handler := testHandler(t, fixedStage{}, fixedStage{label: 1}, filepath.Join(t.TempDir(), "absent.json"))
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/report", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
