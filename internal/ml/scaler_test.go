package ml

import (
	"math"
	"testing"
)

func TestStandardScalerFitTransform(t *testing.T) {
	scaler := NewStandardScaler()
	features := [][]float64{
		{0, 10},
		{2, 10},
		{4, 10},
	}
	if err := scaler.Fit(features); err != nil {
		t.Fatalf("fit: %v", err)
	}

	out, err := scaler.Transform([]float64{2, 10})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if math.Abs(out[0]) > 1e-12 {
		t.Fatalf("mean value should scale to 0, got %g", out[0])
	}
	// Constant column: std clamps to 1, so the value centres without blowing up.
	if math.Abs(out[1]) > 1e-12 {
		t.Fatalf("constant column should centre to 0, got %g", out[1])
	}
}

func TestStandardScalerNotFitted(t *testing.T) {
	scaler := NewStandardScaler()
	if _, err := scaler.Transform([]float64{1}); err == nil {
		t.Fatalf("expected error for unfitted scaler")
	}
}

func TestStandardScalerWidthMismatch(t *testing.T) {
	scaler := NewStandardScaler()
	if err := scaler.Fit([][]float64{{1, 2}, {3, 4}}); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if _, err := scaler.Transform([]float64{1}); err == nil {
		t.Fatalf("expected width mismatch error")
	}
}

func TestStandardScalerRaggedInput(t *testing.T) {
	scaler := NewStandardScaler()
	if err := scaler.Fit([][]float64{{1, 2}, {3}}); err == nil {
		t.Fatalf("expected error for ragged matrix")
	}
}
