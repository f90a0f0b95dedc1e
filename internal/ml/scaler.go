package ml

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each feature column to zero mean and unit variance.
// Fields are exported for gob serialization inside the model artifact.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// NewStandardScaler returns an unfitted scaler.
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit computes per-column moments. Columns with zero variance scale by 1 so
// constant channels pass through centred instead of dividing by zero.
func (s *StandardScaler) Fit(features [][]float64) error {
	if len(features) == 0 {
		return fmt.Errorf("scaler fit: empty feature matrix")
	}
	width := len(features[0])
	s.Mean = make([]float64, width)
	s.Std = make([]float64, width)

	column := make([]float64, len(features))
	for j := 0; j < width; j++ {
		for i, row := range features {
			if len(row) != width {
				return fmt.Errorf("scaler fit: ragged row %d (%d != %d)", i, len(row), width)
			}
			column[i] = row[j]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || len(features) < 2 {
			std = 1
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}
	return nil
}

// Transform returns a scaled copy of one feature vector.
func (s *StandardScaler) Transform(sample []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return nil, fmt.Errorf("scaler transform: not fitted")
	}
	if len(sample) != len(s.Mean) {
		return nil, fmt.Errorf("scaler transform: vector width %d, want %d", len(sample), len(s.Mean))
	}
	out := make([]float64, len(sample))
	for j, v := range sample {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}

// TransformBatch scales a row-major matrix.
func (s *StandardScaler) TransformBatch(features [][]float64) ([][]float64, error) {
	out := make([][]float64, len(features))
	for i, row := range features {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}
