package models

// PredictRequest carries one named sensor vector from the external REST layer.
// All 52 channels must be present; partial vectors are rejected.
type PredictRequest struct {
	Sensors map[string]float64 `json:"sensors"`
}

// PredictResponse is the inference answer for a single sample. FaultID is
// nil when the detector stage reports nominal operation.
type PredictResponse struct {
	IsFaulty            bool    `json:"is_faulty"`
	FaultID             *int    `json:"fault_id"`
	DetectorConfidence  float64 `json:"detector_confidence"`
	DiagnosisConfidence float64 `json:"diagnosis_confidence,omitempty"`
	Status              string  `json:"status"`
}

// StartSessionRequest opens a streaming session. Zero-valued knobs fall back
// to the server's configured stream defaults.
type StartSessionRequest struct {
	StabilizationSamples *int     `json:"stabilization_samples,omitempty"`
	PersistenceThreshold *int     `json:"persistence_threshold,omitempty"`
	DiagnosisWindow      *int     `json:"diagnosis_window,omitempty"`
	DiagnosisMajority    *float64 `json:"diagnosis_majority,omitempty"`
}

// StartSessionResponse returns the session handle for subsequent feeds.
type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

// FeedRequest pushes one sample into a streaming session. Step indices must
// be strictly increasing within a session.
type FeedRequest struct {
	Step    int                `json:"step"`
	Sensors map[string]float64 `json:"sensors"`
}

// FeedResponse reports the decision for the fed sample, the resulting
// detector phase, and any events the sample triggered.
type FeedResponse struct {
	Decision CascadeDecision `json:"-"`
	Phase    StreamPhase     `json:"phase"`
	IsFaulty bool            `json:"is_faulty"`
	FaultID  *int            `json:"fault_id"`
	Events   []Event         `json:"events"`
}
