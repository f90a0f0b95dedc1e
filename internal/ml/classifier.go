// Package ml provides the trainable classifier stages behind the cascade:
// a feature scaler, a seeded random-forest implementation, and the
// persisted artifact bundling both.
package ml

// Prediction is one classifier answer with its vote distribution.
type Prediction struct {
	Label         int
	Confidence    float64
	Probabilities map[int]float64
}

// Classifier is the common contract for trainable stage models. Fit consumes
// row-major features with integer labels; implementations must be
// deterministic for a fixed seed and safe for concurrent Predict calls once
// fitted.
type Classifier interface {
	Fit(features [][]float64, labels []int) error
	Predict(sample []float64) (Prediction, error)
	PredictBatch(samples [][]float64) ([]Prediction, error)
	Classes() []int
}
