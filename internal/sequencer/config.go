package sequencer

import (
	"encoding/json"
	"fmt"
)

const (
	// MaxPads is the number of pad slots every track can address.
	MaxPads = 8

	defaultBPM       = 120
	defaultVelocity  = 100
	defaultGateRatio = 0.5

	minBPM = 1
	maxBPM = 960
)

// Step is one slot in a pad pattern: zero or more notes plus a hold flag.
// An empty step without hold releases sustained notes; with hold it leaves
// them sounding.
type Step struct {
	Notes []int `json:"notes,omitempty"`
	Hold  bool  `json:"hold,omitempty"`
}

// UnmarshalJSON accepts the performance document step shapes: null, a single
// note number, an array of note numbers, or {"notes": [...], "hold": bool}.
func (s *Step) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*s = Step{}
	case float64:
		*s = Step{Notes: []int{int(t)}}
	case []any:
		notes := make([]int, 0, len(t))
		for _, entry := range t {
			n, ok := entry.(float64)
			if !ok {
				return fmt.Errorf("step notes list must contain numbers only")
			}
			notes = append(notes, int(n))
		}
		*s = Step{Notes: notes}
	case map[string]any:
		var obj struct {
			Notes []int `json:"notes"`
			Hold  bool  `json:"hold"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*s = Step{Notes: obj.Notes, Hold: obj.Hold}
	default:
		return fmt.Errorf("step must be null, a note number, a note list, or a note object")
	}
	return nil
}

// PadConfig assigns a step pattern to one of a track's pad slots.
type PadConfig struct {
	PadIndex int    `json:"pad_index"`
	Steps    []Step `json:"steps"`
}

// TrackConfig describes one sequencer voice. Enabled defaults to true when
// absent. GateRatio is accepted for document compatibility; note release is
// driven by the step hold flags, not by gate time.
type TrackConfig struct {
	TrackID       string      `json:"track_id"`
	MidiChannel   int         `json:"midi_channel"`
	StepCount     int         `json:"step_count"`
	Velocity      int         `json:"velocity"`
	GateRatio     float64     `json:"gate_ratio"`
	Enabled       *bool       `json:"enabled,omitempty"`
	QueuedEnabled *bool       `json:"queued_enabled,omitempty"`
	ActivePad     int         `json:"active_pad"`
	QueuedPad     *int        `json:"queued_pad,omitempty"`
	Pads          []PadConfig `json:"pads"`
}

// Config is a full sequencer configuration request.
type Config struct {
	BPM       int           `json:"bpm"`
	StepCount int           `json:"step_count"`
	Tracks    []TrackConfig `json:"tracks"`
}

// TrackStatus is the externally visible state of one track.
type TrackStatus struct {
	TrackID       string `json:"track_id"`
	MidiChannel   int    `json:"midi_channel"`
	StepCount     int    `json:"step_count"`
	ActivePad     int    `json:"active_pad"`
	QueuedPad     *int   `json:"queued_pad,omitempty"`
	Enabled       bool   `json:"enabled"`
	QueuedEnabled *bool  `json:"queued_enabled,omitempty"`
	SoundingNotes []int  `json:"sounding_notes"`
}

// Status is a snapshot of the sequencer runtime.
type Status struct {
	Running     bool          `json:"running"`
	BPM         int           `json:"bpm"`
	StepCount   int           `json:"step_count"`
	CurrentStep int           `json:"current_step"`
	Cycle       int           `json:"cycle"`
	Tracks      []TrackStatus `json:"tracks"`
}
