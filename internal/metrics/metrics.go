package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels predictions that produced a decision.
	OutcomeSuccess = "success"
	// OutcomeError labels rejected or failed predictions.
	OutcomeError = "error"
)

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tep_sentinel",
			Name:      "predictions_total",
			Help:      "Total cascade inference calls handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	predictionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tep_sentinel",
			Name:      "prediction_seconds",
			Help:      "Cascade inference latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tep_sentinel",
			Name:      "active_sessions",
			Help:      "Streaming sessions currently open.",
		},
	)

	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tep_sentinel",
			Name:      "stream_events_total",
			Help:      "Operator events emitted by the event detector, by kind.",
		},
		[]string{"kind"},
	)
)

// Register attaches tep-sentinel collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		predictionsTotal,
		predictionSeconds,
		activeSessions,
		streamEventsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObservePrediction records an inference duration and outcome label.
func ObservePrediction(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	predictionsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	predictionSeconds.Observe(duration.Seconds())
}

// SessionOpened increments the active session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the active session gauge.
func SessionClosed() { activeSessions.Dec() }

// ObserveStreamEvent counts an emitted operator event.
func ObserveStreamEvent(kind string) {
	streamEventsTotal.WithLabelValues(kind).Inc()
}
