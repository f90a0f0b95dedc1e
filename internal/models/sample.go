package models

import "fmt"

const (
	// MeasuredChannels is the number of xmeas process measurements.
	MeasuredChannels = 41
	// ManipulatedChannels is the number of xmv manipulated variables.
	ManipulatedChannels = 11
	// ChannelCount is the full sensor vector width.
	ChannelCount = MeasuredChannels + ManipulatedChannels

	// NormalLabel marks nominal operation; fault ids run 1..MaxFaultID.
	NormalLabel = 0
	// MaxFaultID is the highest simulated fault class.
	MaxFaultID = 20

	// SamplePeriodMinutes is the TEP simulator sampling period.
	SamplePeriodMinutes = 3
)

var sensorChannels = buildChannelNames()

func buildChannelNames() []string {
	names := make([]string, 0, ChannelCount)
	for i := 1; i <= MeasuredChannels; i++ {
		names = append(names, fmt.Sprintf("xmeas_%d", i))
	}
	for i := 1; i <= ManipulatedChannels; i++ {
		names = append(names, fmt.Sprintf("xmv_%d", i))
	}
	return names
}

// SensorChannels returns the canonical channel name order (xmeas_1..41
// followed by xmv_1..11). The scaler and forests are fitted against this
// ordering, so every feature vector in the system must follow it.
func SensorChannels() []string {
	return append([]string(nil), sensorChannels...)
}

// Sample is one timestep of a simulation run: a fixed-width feature vector,
// its step index within the run, and the ground-truth label for that step.
type Sample struct {
	Step   int
	Label  int
	Values []float64
}

// SimulationRun is one simulated process episode. FaultID is the fault the
// episode was generated with (NormalLabel for a nominal run); individual
// samples before fault onset may still carry the normal label.
type SimulationRun struct {
	ID      string
	FaultID int
	Samples []Sample
}

// OnsetStep returns the step of the first sample labelled with a fault,
// or -1 for a run that never leaves nominal operation.
func (r SimulationRun) OnsetStep() int {
	for _, s := range r.Samples {
		if s.Label != NormalLabel {
			return s.Step
		}
	}
	return -1
}
