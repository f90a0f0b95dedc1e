package engine

import (
	"fmt"
	"math"

	"github.com/tepstack/tep-sentinel/internal/config"
	"github.com/tepstack/tep-sentinel/internal/models"
	"github.com/tepstack/tep-sentinel/internal/utils"
)

// EventDetector is the stateful streaming component that converts a sequence
// of cascade decisions into debounced operator events. One detector serves
// exactly one stream session; callers must serialise Feed calls and must
// supply strictly increasing step indices.
//
// The persistence threshold P and the diagnosis window/majority pair trade
// announcement latency for resilience to single-sample misclassification.
type EventDetector struct {
	cfg config.StreamConfig

	phase        models.StreamPhase
	samplesSeen  int
	lastStep     int
	suspectCount int
	normalCount  int
	onsetStep    int
	faultID      int
	window       []int
}

// NewEventDetector validates the stream knobs and returns a detector in the
// stabilization phase (or directly in NORMAL when the window is zero).
func NewEventDetector(cfg config.StreamConfig) (*EventDetector, error) {
	const op = "engine.NewEventDetector"
	if cfg.PersistenceThreshold < 1 {
		return nil, utils.ConfigurationError(op, fmt.Sprintf("persistence threshold must be >= 1, got %d", cfg.PersistenceThreshold), nil)
	}
	if cfg.DiagnosisMajority <= 0 || cfg.DiagnosisMajority > 1 {
		return nil, utils.ConfigurationError(op, fmt.Sprintf("diagnosis majority must be in (0,1], got %g", cfg.DiagnosisMajority), nil)
	}
	if cfg.DiagnosisWindow < 1 {
		return nil, utils.ConfigurationError(op, fmt.Sprintf("diagnosis window must be >= 1, got %d", cfg.DiagnosisWindow), nil)
	}
	if cfg.StabilizationSamples < 0 {
		return nil, utils.ConfigurationError(op, fmt.Sprintf("stabilization window must be >= 0, got %d", cfg.StabilizationSamples), nil)
	}

	d := &EventDetector{
		cfg:       cfg,
		phase:     models.PhaseStabilizing,
		lastStep:  -1,
		onsetStep: -1,
	}
	if cfg.StabilizationSamples == 0 {
		d.phase = models.PhaseNormal
	}
	return d, nil
}

// Phase returns the current stream phase.
func (d *EventDetector) Phase() models.StreamPhase {
	return d.phase
}

// State returns a snapshot of the detector for observability or explicit
// persistence.
func (d *EventDetector) State() models.EventDetectorState {
	return models.EventDetectorState{
		Phase:        d.phase,
		SamplesSeen:  d.samplesSeen,
		LastStep:     d.lastStep,
		SuspectCount: d.suspectCount,
		NormalCount:  d.normalCount,
		OnsetStep:    d.onsetStep,
		FaultID:      d.faultID,
		Window:       append([]int(nil), d.window...),
	}
}

// Feed consumes one cascade decision and returns any events it triggered.
// Out-of-order or duplicate steps are rejected without mutating state.
func (d *EventDetector) Feed(step int, decision models.CascadeDecision) ([]models.Event, error) {
	const op = "engine.EventDetector.Feed"
	if step < 0 {
		return nil, utils.ValidationError(op, fmt.Sprintf("negative step %d", step), nil)
	}
	if step <= d.lastStep {
		return nil, utils.ValidationError(op, fmt.Sprintf("step %d not after previous step %d", step, d.lastStep), nil)
	}

	d.lastStep = step
	d.samplesSeen++

	// The stabilization window is consumed, never evaluated: the simulated
	// process has not reached steady state yet.
	if d.phase == models.PhaseStabilizing {
		if d.samplesSeen >= d.cfg.StabilizationSamples {
			d.phase = models.PhaseNormal
		}
		return nil, nil
	}

	switch d.phase {
	case models.PhaseNormal:
		if !decision.IsFaulty {
			return nil, nil
		}
		d.onsetStep = step
		d.suspectCount = 1
		d.phase = models.PhaseSuspect
		return d.maybeConfirm(step, decision), nil

	case models.PhaseSuspect:
		if !decision.IsFaulty {
			// One nominal sample clears a suspicion run outright.
			d.resetToNormal()
			return nil, nil
		}
		d.suspectCount++
		return d.maybeConfirm(step, decision), nil

	default:
		return d.feedConfirmed(step, decision), nil
	}
}

// maybeConfirm promotes SUSPECT to CONFIRMED_FAULT once P consecutive
// anomalous decisions have accumulated.
func (d *EventDetector) maybeConfirm(step int, decision models.CascadeDecision) []models.Event {
	if d.suspectCount < d.cfg.PersistenceThreshold {
		return nil
	}

	d.phase = models.PhaseConfirmedFault
	d.normalCount = 0
	d.window = d.window[:0]

	events := []models.Event{{
		Kind:          models.EventDetection,
		FaultID:       models.NormalLabel,
		OnsetStep:     d.onsetStep,
		AnnouncedStep: step,
		Delay:         step - d.onsetStep,
	}}

	// The confirming decision already carries a diagnosis candidate.
	if diag := d.observeDiagnosis(step, decision); diag != nil {
		events = append(events, *diag)
	}
	return events
}

// feedConfirmed handles CONFIRMED_FAULT, DIAGNOSING, and DIAGNOSED, where
// return-to-normal mirrors the suspicion persistence logic.
func (d *EventDetector) feedConfirmed(step int, decision models.CascadeDecision) []models.Event {
	if !decision.IsFaulty {
		d.normalCount++
		if d.normalCount >= d.cfg.PersistenceThreshold {
			d.resetToNormal()
		} else if d.phase != models.PhaseDiagnosed {
			d.pushWindow(models.NormalLabel)
		}
		return nil
	}

	d.normalCount = 0
	if d.phase == models.PhaseDiagnosed {
		return nil
	}
	if diag := d.observeDiagnosis(step, decision); diag != nil {
		return []models.Event{*diag}
	}
	return nil
}

// observeDiagnosis records the decision's fault id in the sliding window and
// announces a diagnosis once one id holds the configured majority of the
// last K decisions.
func (d *EventDetector) observeDiagnosis(step int, decision models.CascadeDecision) *models.Event {
	if decision.FaultID == models.NormalLabel {
		return nil
	}
	if d.phase == models.PhaseConfirmedFault {
		d.phase = models.PhaseDiagnosing
	}
	d.pushWindow(decision.FaultID)

	required := int(math.Ceil(d.cfg.DiagnosisMajority * float64(d.cfg.DiagnosisWindow)))
	counts := make(map[int]int, len(d.window))
	for _, id := range d.window {
		if id == models.NormalLabel {
			continue
		}
		counts[id]++
		if counts[id] >= required {
			d.phase = models.PhaseDiagnosed
			d.faultID = id
			return &models.Event{
				Kind:          models.EventDiagnosis,
				FaultID:       id,
				OnsetStep:     d.onsetStep,
				AnnouncedStep: step,
				Delay:         step - d.onsetStep,
			}
		}
	}
	return nil
}

func (d *EventDetector) pushWindow(faultID int) {
	d.window = append(d.window, faultID)
	if len(d.window) > d.cfg.DiagnosisWindow {
		d.window = d.window[1:]
	}
}

// resetToNormal clears all fault memory after sustained nominal decisions.
func (d *EventDetector) resetToNormal() {
	d.phase = models.PhaseNormal
	d.suspectCount = 0
	d.normalCount = 0
	d.onsetStep = -1
	d.faultID = models.NormalLabel
	d.window = d.window[:0]
}
