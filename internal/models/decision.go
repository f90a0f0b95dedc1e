package models

// CascadeDecision is the per-sample output of the two-stage cascade.
// FaultID is NormalLabel unless IsFaulty is true and the diagnosis stage ran.
type CascadeDecision struct {
	IsFaulty            bool
	FaultID             int
	DetectorConfidence  float64
	DiagnosisConfidence float64
}

// EventKind enumerates operator-facing event types.
type EventKind string

const (
	EventDetection EventKind = "detection"
	EventDiagnosis EventKind = "diagnosis"
)

// Event is a discrete operator-facing alarm derived from the decision stream.
// Delay is measured in steps between true onset and announcement.
type Event struct {
	Kind          EventKind `json:"kind"`
	FaultID       int       `json:"fault_id"`
	OnsetStep     int       `json:"onset_step"`
	AnnouncedStep int       `json:"announced_step"`
	Delay         int       `json:"delay"`
}

// StreamPhase enumerates event-detector states.
type StreamPhase string

const (
	PhaseStabilizing    StreamPhase = "stabilizing"
	PhaseNormal         StreamPhase = "normal"
	PhaseSuspect        StreamPhase = "suspect"
	PhaseConfirmedFault StreamPhase = "confirmed_fault"
	PhaseDiagnosing     StreamPhase = "diagnosing"
	PhaseDiagnosed      StreamPhase = "diagnosed"
)

// EventDetectorState is a serializable snapshot of one stream session's
// detector. It exists for observability and opt-in persistence; a detector
// never shares state across sessions.
type EventDetectorState struct {
	Phase        StreamPhase `json:"phase"`
	SamplesSeen  int         `json:"samples_seen"`
	LastStep     int         `json:"last_step"`
	SuspectCount int         `json:"suspect_count"`
	NormalCount  int         `json:"normal_count"`
	OnsetStep    int         `json:"onset_step"`
	FaultID      int         `json:"fault_id"`
	Window       []int       `json:"window,omitempty"`
}
