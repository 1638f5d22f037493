package sequencer

import "fmt"

// trackState is the runtime form of one track. Pads holds only the configured
// patterns; an active pad without a pattern plays as silence.
type trackState struct {
	id            string
	channel       int
	stepCount     int
	velocity      int
	gateRatio     float64
	enabled       bool
	queuedEnabled *bool
	pads          map[int][]Step
	activePad     int
	queuedPad     int // -1 when nothing is queued
	sounding      map[int]struct{}
}

// runtimeConfig is a normalized configuration plus the shared transport step
// count derived from the enabled tracks.
type runtimeConfig struct {
	bpm       int
	stepCount int
	tracks    []*trackState
	byID      map[string]*trackState
}

func buildRuntimeConfig(cfg Config) (*runtimeConfig, error) {
	rc := &runtimeConfig{
		bpm:  clampInt(cfg.BPM, minBPM, maxBPM),
		byID: map[string]*trackState{},
	}
	if cfg.BPM == 0 {
		rc.bpm = defaultBPM
	}

	for _, tc := range cfg.Tracks {
		if tc.TrackID == "" {
			return nil, fmt.Errorf("track ids must be non-empty")
		}
		if _, dup := rc.byID[tc.TrackID]; dup {
			return nil, fmt.Errorf("duplicate track id '%s'", tc.TrackID)
		}
		if tc.MidiChannel < 1 || tc.MidiChannel > 16 {
			return nil, fmt.Errorf("track '%s' has invalid MIDI channel %d", tc.TrackID, tc.MidiChannel)
		}
		if len(tc.Pads) > MaxPads {
			return nil, fmt.Errorf("track '%s' configures more than %d pads", tc.TrackID, MaxPads)
		}

		stepCount := normalizeStepCount(tc.StepCount)
		pads := make(map[int][]Step, len(tc.Pads))
		for _, pad := range tc.Pads {
			if pad.PadIndex < 0 || pad.PadIndex >= MaxPads {
				return nil, fmt.Errorf("track '%s' pad index %d is out of range [0,%d]",
					tc.TrackID, pad.PadIndex, MaxPads-1)
			}
			if _, dup := pads[pad.PadIndex]; dup {
				return nil, fmt.Errorf("track '%s' configures pad %d twice", tc.TrackID, pad.PadIndex)
			}
			pads[pad.PadIndex] = normalizeSteps(pad.Steps, stepCount)
		}

		velocity := tc.Velocity
		if velocity == 0 {
			velocity = defaultVelocity
		}
		gate := tc.GateRatio
		if gate == 0 {
			gate = defaultGateRatio
		}

		activePad := tc.ActivePad
		if _, ok := pads[activePad]; !ok {
			activePad = 0
		}
		queuedPad := -1
		if tc.QueuedPad != nil {
			if _, ok := pads[*tc.QueuedPad]; ok {
				queuedPad = *tc.QueuedPad
			}
		}

		tr := &trackState{
			id:            tc.TrackID,
			channel:       tc.MidiChannel,
			stepCount:     stepCount,
			velocity:      clampInt(velocity, 1, 127),
			gateRatio:     gate,
			enabled:       tc.Enabled == nil || *tc.Enabled,
			queuedEnabled: tc.QueuedEnabled,
			pads:          pads,
			activePad:     activePad,
			queuedPad:     queuedPad,
			sounding:      map[int]struct{}{},
		}
		rc.tracks = append(rc.tracks, tr)
		rc.byID[tr.id] = tr
	}

	rc.refreshStepCount()
	return rc, nil
}

// refreshStepCount recomputes the transport step count: 16 when the LCM of
// every enabled track's step count fits in 16, else 32; 16 with no track
// enabled.
func (rc *runtimeConfig) refreshStepCount() {
	loop := 0
	for _, tr := range rc.tracks {
		if !tr.enabled {
			continue
		}
		if loop == 0 {
			loop = tr.stepCount
			continue
		}
		loop = lcm(loop, tr.stepCount)
	}
	if loop == 0 || loop <= 16 {
		rc.stepCount = 16
		return
	}
	rc.stepCount = 32
}

func normalizeStepCount(v int) int {
	if v == 32 {
		return 32
	}
	return 16
}

// normalizeSteps pads or truncates to the track step count, clamps notes into
// MIDI range, and drops duplicate notes within a step.
func normalizeSteps(steps []Step, count int) []Step {
	out := make([]Step, count)
	for i := 0; i < count && i < len(steps); i++ {
		src := steps[i]
		notes := make([]int, 0, len(src.Notes))
		seen := map[int]struct{}{}
		for _, n := range src.Notes {
			note := clampInt(n, 0, 127)
			if _, dup := seen[note]; dup {
				continue
			}
			seen[note] = struct{}{}
			notes = append(notes, note)
		}
		out[i] = Step{Notes: notes, Hold: src.Hold}
	}
	return out
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
