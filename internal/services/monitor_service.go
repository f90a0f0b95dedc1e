// Package services exposes the monitoring facade consumed by the transport
// layer: validated inference, streaming sessions, readiness, and report
// retrieval.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tepstack/tep-sentinel/internal/cache"
	"github.com/tepstack/tep-sentinel/internal/config"
	"github.com/tepstack/tep-sentinel/internal/engine"
	"github.com/tepstack/tep-sentinel/internal/evaluation"
	"github.com/tepstack/tep-sentinel/internal/metrics"
	"github.com/tepstack/tep-sentinel/internal/models"
	"github.com/tepstack/tep-sentinel/internal/utils"
)

const reportCacheKey = "sentinel:report:latest"

// MonitorService wires the cascade, the session registry, and the metrics
// artifact behind one facade. The cascade pair is immutable and shared;
// per-session state lives in the store.
type MonitorService struct {
	logger     *slog.Logger
	cascade    *engine.Cascade
	streamCfg  config.StreamConfig
	sessions   *SessionStore
	cache      cache.Provider
	cacheCfg   config.CacheConfig
	reportPath string
	latencies  *utils.LatencyTracker
}

// NewMonitorService constructs the facade. The cascade may be nil when the
// process starts before artifacts exist; Ready reports that state.
func NewMonitorService(
	logger *slog.Logger,
	cascade *engine.Cascade,
	streamCfg config.StreamConfig,
	cacheProvider cache.Provider,
	cacheCfg config.CacheConfig,
	reportPath string,
) *MonitorService {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &MonitorService{
		logger:     logger,
		cascade:    cascade,
		streamCfg:  streamCfg,
		sessions:   NewSessionStore(),
		cache:      cacheProvider,
		cacheCfg:   cacheCfg,
		reportPath: reportPath,
		latencies:  utils.NewLatencyTracker(1024),
	}
}

// Ready reports whether both model artifacts are loaded and serving.
func (s *MonitorService) Ready() bool {
	return s.cascade != nil
}

// Predict validates the named sensor mapping, orders it canonically, and
// runs the cascade. Partial vectors are rejected before any inference runs.
func (s *MonitorService) Predict(ctx context.Context, req models.PredictRequest) (models.PredictResponse, error) {
	if !s.Ready() {
		return models.PredictResponse{}, utils.ConfigurationError("services.Predict", "inference engine not initialised", nil)
	}

	values, err := vectorize(req.Sensors)
	if err != nil {
		metrics.ObservePrediction(0, metrics.OutcomeError)
		return models.PredictResponse{}, err
	}

	start := time.Now()
	decision, err := s.cascade.Infer(values)
	duration := time.Since(start)
	if err != nil {
		metrics.ObservePrediction(duration, metrics.OutcomeError)
		return models.PredictResponse{}, fmt.Errorf("inference failed: %w", err)
	}
	metrics.ObservePrediction(duration, metrics.OutcomeSuccess)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 100 && count%100 == 0 {
		s.logger.Info("inference latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	return toPredictResponse(decision), nil
}

// StartSession opens a streaming session, applying any per-session knob
// overrides on top of the configured stream defaults.
func (s *MonitorService) StartSession(ctx context.Context, req models.StartSessionRequest) (models.StartSessionResponse, error) {
	if !s.Ready() {
		return models.StartSessionResponse{}, utils.ConfigurationError("services.StartSession", "inference engine not initialised", nil)
	}

	cfg := s.streamCfg
	if req.StabilizationSamples != nil {
		cfg.StabilizationSamples = *req.StabilizationSamples
	}
	if req.PersistenceThreshold != nil {
		cfg.PersistenceThreshold = *req.PersistenceThreshold
	}
	if req.DiagnosisWindow != nil {
		cfg.DiagnosisWindow = *req.DiagnosisWindow
	}
	if req.DiagnosisMajority != nil {
		cfg.DiagnosisMajority = *req.DiagnosisMajority
	}

	id, err := s.sessions.Open(cfg)
	if err != nil {
		return models.StartSessionResponse{}, err
	}
	metrics.SessionOpened()
	s.logger.Debug("session opened", slog.String("session_id", id))
	return models.StartSessionResponse{SessionID: id}, nil
}

// Feed validates and classifies one sample, then advances the session's
// event detector. Validation failures never mutate session state.
func (s *MonitorService) Feed(ctx context.Context, sessionID string, req models.FeedRequest) (models.FeedResponse, error) {
	if !s.Ready() {
		return models.FeedResponse{}, utils.ConfigurationError("services.Feed", "inference engine not initialised", nil)
	}

	values, err := vectorize(req.Sensors)
	if err != nil {
		return models.FeedResponse{}, err
	}

	decision, err := s.cascade.Infer(values)
	if err != nil {
		return models.FeedResponse{}, fmt.Errorf("inference failed: %w", err)
	}

	events, state, err := s.sessions.Feed(sessionID, req.Step, decision)
	if err != nil {
		return models.FeedResponse{}, err
	}
	for _, event := range events {
		metrics.ObserveStreamEvent(string(event.Kind))
		s.logger.Info("stream event",
			slog.String("session_id", sessionID),
			slog.String("kind", string(event.Kind)),
			slog.Int("fault_id", event.FaultID),
			slog.Int("announced_step", event.AnnouncedStep),
			slog.Int("delay", event.Delay))
	}

	if s.streamCfg.SnapshotSessions {
		s.snapshotSession(ctx, sessionID, state)
	}

	resp := models.FeedResponse{
		Decision: decision,
		Phase:    state.Phase,
		IsFaulty: decision.IsFaulty,
		Events:   events,
	}
	if decision.IsFaulty {
		id := decision.FaultID
		resp.FaultID = &id
	}
	if resp.Events == nil {
		resp.Events = []models.Event{}
	}
	return resp, nil
}

// EndSession discards the session's state.
func (s *MonitorService) EndSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Close(sessionID); err != nil {
		return err
	}
	metrics.SessionClosed()
	if s.streamCfg.SnapshotSessions {
		if err := s.cache.Del(ctx, sessionSnapshotKey(sessionID)); err != nil {
			s.logger.Debug("session snapshot delete failed", slog.Any("error", err))
		}
	}
	s.logger.Debug("session closed", slog.String("session_id", sessionID))
	return nil
}

// Report returns the latest evaluation artifact, preferring the cache and
// falling back to the persisted file.
func (s *MonitorService) Report(ctx context.Context) (models.MetricsReport, error) {
	if payload, err := s.cache.Get(ctx, reportCacheKey); err == nil {
		var report models.MetricsReport
		if err := json.Unmarshal(payload, &report); err == nil {
			return report, nil
		}
		s.logger.Warn("discarding malformed cached report")
	}

	report, err := evaluation.LoadReport(s.reportPath)
	if err != nil {
		return models.MetricsReport{}, err
	}

	if payload, err := json.Marshal(report); err == nil {
		if err := s.cache.Set(ctx, reportCacheKey, payload, s.cacheCfg.ReportTTL); err != nil {
			s.logger.Debug("report cache write failed", slog.Any("error", err))
		}
	}
	return report, nil
}

// snapshotSession writes the session state to the cache. Best effort: the
// stream never fails because the snapshot store is down.
func (s *MonitorService) snapshotSession(ctx context.Context, sessionID string, state models.EventDetectorState) {
	payload, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, sessionSnapshotKey(sessionID), payload, s.cacheCfg.SessionTTL); err != nil {
		s.logger.Debug("session snapshot write failed", slog.Any("error", err))
	}
}

func sessionSnapshotKey(sessionID string) string {
	return "sentinel:session:" + sessionID
}

// vectorize maps named channels onto the canonical feature order, rejecting
// incomplete or unknown-channel payloads.
func vectorize(sensors map[string]float64) ([]float64, error) {
	const op = "services.vectorize"
	if len(sensors) == 0 {
		return nil, utils.ValidationError(op, "empty sensor payload", nil)
	}

	channels := models.SensorChannels()
	values := make([]float64, len(channels))
	for i, channel := range channels {
		v, ok := sensors[channel]
		if !ok {
			return nil, utils.ValidationError(op, "missing sensor channel "+channel, nil)
		}
		values[i] = v
	}
	if len(sensors) != len(channels) {
		return nil, utils.ValidationError(op, fmt.Sprintf("expected %d sensor channels, got %d", len(channels), len(sensors)), nil)
	}
	return values, nil
}

func toPredictResponse(decision models.CascadeDecision) models.PredictResponse {
	resp := models.PredictResponse{
		IsFaulty:            decision.IsFaulty,
		DetectorConfidence:  decision.DetectorConfidence,
		DiagnosisConfidence: decision.DiagnosisConfidence,
		Status:              "Normal Operation",
	}
	if decision.IsFaulty {
		id := decision.FaultID
		resp.FaultID = &id
		resp.Status = fmt.Sprintf("Anomalous state detected: Fault %d", id)
	}
	return resp
}
