package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeRoundTrip(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{ConfigurationError("op", "bad config", nil), CodeConfiguration},
		{ValidationError("op", "bad input", nil), CodeValidation},
		{TrainingDataError("op", "degenerate set", nil), CodeTrainingData},
		{SessionNotFoundError("op", "abc"), CodeSessionNotFound},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.code {
			t.Fatalf("expected code %q, got %q", tc.code, got)
		}
		if !IsCode(tc.err, tc.code) {
			t.Fatalf("IsCode(%q) false", tc.code)
		}
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", ValidationError("op", "bad input", nil))
	if !IsCode(err, CodeValidation) {
		t.Fatalf("code lost through wrapping: %v", err)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code, got %q", got)
	}
	if CodeOf(nil) != "" {
		t.Fatalf("expected empty code for nil error")
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := ConfigurationError("config.Load", "parse config", inner)
	if !errors.Is(err, inner) {
		t.Fatalf("inner error not reachable via Unwrap")
	}
}
