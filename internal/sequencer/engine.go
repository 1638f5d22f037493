// Package sequencer implements a precision-timed, multi-track step sequencer
// that drives MIDI performance events into a live session. One Engine owns
// one scheduling goroutine; every piece of mutable runtime state sits behind
// a single mutex.
package sequencer

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	schedulerSleepQuantum  = time.Millisecond
	schedulerSpinThreshold = 800 * time.Microsecond
	stopJoinTimeout        = time.Second
	startupLead            = 10 * time.Millisecond
)

var (
	// ErrUnknownTrack reports a call referencing a track id that is not
	// configured.
	ErrUnknownTrack = errors.New("track is not configured")
	// ErrUnknownPad reports a pad index the target track has no pattern for.
	ErrUnknownPad = errors.New("pad is not configured for track")
)

// Publisher receives sequencer events (step advanced, pad switched). Publish
// must never block: the scheduling goroutine calls it inside its timing
// budget.
type Publisher interface {
	Publish(sessionID, eventType string, payload map[string]any)
}

// Options configures an Engine.
type Options struct {
	SessionID string
	// Selector identifies the MIDI output passed through to the Sink.
	Selector string
	Logger   *slog.Logger
}

// Engine orchestrates the clock loop, per-track state, MIDI emission, and
// event publication for one session.
type Engine struct {
	sessionID string
	sink      Sink
	publisher Publisher
	logger    *slog.Logger

	mu          sync.Mutex
	selector    string
	cfg         *runtimeConfig
	running     bool
	stopCh      chan struct{}
	done        chan struct{}
	currentStep int
	cycle       int
}

// New creates an idle engine. A nil publisher drops all events; a nil sink
// discards all MIDI output.
func New(sink Sink, publisher Publisher, opts Options) *Engine {
	if sink == nil {
		sink = nopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sessionID: opts.SessionID,
		sink:      sink,
		publisher: publisher,
		logger:    logger,
		selector:  opts.Selector,
	}
}

type nopSink struct{}

func (nopSink) Send(string, [3]byte) error { return nil }

// SetSelector rebinds the MIDI output used for subsequent messages.
func (e *Engine) SetSelector(selector string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selector = selector
}

// Configure replaces the active configuration. It applies immediately, not at
// a step boundary; sounding notes of tracks that disappear or change channel
// or enabled state are released before the swap, and the rest carry over.
func (e *Engine) Configure(cfg Config) (Status, error) {
	rc, err := buildRuntimeConfig(cfg)
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg != nil {
		for _, old := range e.cfg.tracks {
			next, kept := rc.byID[old.id]
			if !kept || next.channel != old.channel || next.enabled != old.enabled {
				e.releaseTrackLocked(old)
			}
		}
		for _, tr := range rc.tracks {
			if old, ok := e.cfg.byID[tr.id]; ok {
				for note := range old.sounding {
					tr.sounding[note] = struct{}{}
				}
			}
		}
	}
	e.cfg = rc
	e.currentStep %= rc.stepCount
	return e.statusLocked(), nil
}

// QueuePad arms a pad switch. While running the switch commits at the
// track's next local boundary; while stopped it applies immediately and
// rewinds the transport.
func (e *Engine) QueuePad(trackID string, padIndex int) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureConfigLocked()

	tr, ok := e.cfg.byID[trackID]
	if !ok {
		return Status{}, fmt.Errorf("%w: '%s'", ErrUnknownTrack, trackID)
	}
	if _, ok := tr.pads[padIndex]; !ok {
		return Status{}, fmt.Errorf("%w: pad %d on '%s'", ErrUnknownPad, padIndex, trackID)
	}

	if e.running {
		tr.queuedPad = padIndex
	} else {
		tr.activePad = padIndex
		tr.queuedPad = -1
		e.currentStep = 0
	}
	return e.statusLocked(), nil
}

// Start spawns the scheduling goroutine. Calling Start on a running engine
// is a no-op returning the current status.
func (e *Engine) Start() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureConfigLocked()
	if e.running {
		return e.statusLocked()
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(e.stopCh, e.done)
	return e.statusLocked()
}

// Stop signals the scheduling goroutine, joins it with a bounded wait, then
// flushes every sounding note and resets the transport. The lock is released
// around the join so the loop can finish its own lock acquisitions.
func (e *Engine) Stop() Status {
	e.mu.Lock()
	if !e.running {
		e.currentStep = 0
		st := e.statusLocked()
		e.mu.Unlock()
		return st
	}
	e.running = false
	close(e.stopCh)
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		e.logger.Warn("sequencer loop did not exit within join timeout", "session", e.sessionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.done = nil
	e.stopCh = nil
	e.currentStep = 0
	e.flushAllLocked()
	return e.statusLocked()
}

// Shutdown tears the engine down, flushing all sounding notes.
func (e *Engine) Shutdown() {
	e.Stop()
}

// Status returns a snapshot of the runtime state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// run is the scheduling loop. Each step deadline is the previous deadline
// plus the step duration; the loop sleeps in 1 ms slices until ~0.8 ms
// remain, then spins to the deadline. After a stall of more than two step
// durations the deadline resynchronizes to now instead of firing catch-up
// steps back to back.
func (e *Engine) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	next := time.Now().Add(startupLead)

	for {
		select {
		case <-stopCh:
			e.finishRun()
			return
		default:
		}

		e.mu.Lock()
		if !e.running || e.cfg == nil {
			e.mu.Unlock()
			e.finishRun()
			return
		}
		stepDuration := stepDuration(e.cfg.bpm)
		e.mu.Unlock()

		wait := time.Until(next)
		if wait > schedulerSpinThreshold {
			nap := wait
			if nap > schedulerSleepQuantum {
				nap = schedulerSleepQuantum
			}
			time.Sleep(nap)
			continue
		}
		if wait > 0 {
			continue
		}

		e.performStep()
		next = next.Add(stepDuration)
		if time.Since(next) > 2*stepDuration {
			next = time.Now().Add(stepDuration)
		}
	}
}

// stepDuration is one sixteenth note at the given tempo.
func stepDuration(bpm int) time.Duration {
	return time.Duration(60.0 / float64(bpm) / 4.0 * float64(time.Second))
}

type padSwitch struct {
	trackID   string
	activePad int
	cycle     int
}

// performStep emits the current step's notes, commits queued pad and enable
// transitions at their boundaries, and advances the transport. Events are
// published after the lock is released.
func (e *Engine) performStep() {
	var (
		stepPayload map[string]any
		switches    []padSwitch
	)

	e.mu.Lock()
	cfg := e.cfg
	step := e.currentStep
	runningTracks := 0

	for _, tr := range cfg.tracks {
		pattern, hasPad := tr.pads[tr.activePad]
		if !tr.enabled || !hasPad {
			e.releaseTrackLocked(tr)
			continue
		}
		runningTracks++
		st := pattern[step%tr.stepCount]
		if len(st.Notes) > 0 {
			e.releaseTrackLocked(tr)
			for _, note := range st.Notes {
				e.sendLocked(noteOnMessage(tr.channel, note, tr.velocity))
				tr.sounding[note] = struct{}{}
			}
			continue
		}
		if !st.Hold {
			e.releaseTrackLocked(tr)
		}
	}

	nextStep := (step + 1) % cfg.stepCount
	if nextStep == 0 {
		e.cycle++
	}

	for _, tr := range cfg.tracks {
		atBoundary := nextStep%tr.stepCount == 0

		if tr.queuedEnabled != nil {
			switch {
			case *tr.queuedEnabled:
				if e.canEnableLocked(cfg, tr, nextStep) {
					tr.enabled = true
					tr.queuedEnabled = nil
				}
			case !tr.enabled:
				tr.queuedEnabled = nil
			case atBoundary:
				tr.enabled = false
				tr.queuedEnabled = nil
				e.releaseTrackLocked(tr)
			}
		}

		if atBoundary && tr.queuedPad >= 0 && tr.queuedPad != tr.activePad {
			tr.activePad = tr.queuedPad
			tr.queuedPad = -1
			switches = append(switches, padSwitch{trackID: tr.id, activePad: tr.activePad, cycle: e.cycle})
		}
	}

	e.currentStep = nextStep
	cfg.refreshStepCount()
	e.currentStep %= cfg.stepCount

	stepPayload = map[string]any{
		"step":        step,
		"next_step":   e.currentStep,
		"cycle":       e.cycle,
		"track_count": runningTracks,
	}
	e.mu.Unlock()

	e.publish("sequencer_step", stepPayload)
	for _, sw := range switches {
		e.publish("sequencer_pad_switched", map[string]any{
			"track_id":   sw.trackID,
			"active_pad": sw.activePad,
			"cycle":      sw.cycle,
		})
	}
}

// canEnableLocked reports whether a queued enable may commit: every other
// enabled track must sit at a boundary of its own step count so all voices
// stay phase aligned. With nothing else running the enable commits at once.
func (e *Engine) canEnableLocked(cfg *runtimeConfig, tr *trackState, nextStep int) bool {
	for _, other := range cfg.tracks {
		if other.id == tr.id || !other.enabled {
			continue
		}
		if nextStep%other.stepCount != 0 {
			return false
		}
	}
	return true
}

// releaseTrackLocked sends a note-off for every sounding note of the track,
// in ascending note order for determinism, and clears the set.
func (e *Engine) releaseTrackLocked(tr *trackState) {
	if len(tr.sounding) == 0 {
		return
	}
	notes := make([]int, 0, len(tr.sounding))
	for note := range tr.sounding {
		notes = append(notes, note)
	}
	sort.Ints(notes)
	for _, note := range notes {
		e.sendLocked(noteOffMessage(tr.channel, note))
	}
	tr.sounding = map[int]struct{}{}
}

// flushAllLocked releases every track's sounding notes and follows with the
// all-notes-off / all-sound-off controller pair per track channel as a
// safety net.
func (e *Engine) flushAllLocked() {
	if e.cfg == nil {
		return
	}
	for _, tr := range e.cfg.tracks {
		e.releaseTrackLocked(tr)
	}
	for _, tr := range e.cfg.tracks {
		e.sendLocked(controlChangeMessage(tr.channel, ccAllNotesOff))
		e.sendLocked(controlChangeMessage(tr.channel, ccAllSoundOff))
	}
}

func (e *Engine) finishRun() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushAllLocked()
}

// sendLocked forwards a MIDI message to the sink. Transport failures are
// logged and never surfaced to the scheduler.
func (e *Engine) sendLocked(msg [3]byte) {
	if err := e.sink.Send(e.selector, msg); err != nil {
		e.logger.Warn("sequencer MIDI send failed",
			"session", e.sessionID, "error", err)
	}
}

func (e *Engine) publish(eventType string, payload map[string]any) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(e.sessionID, eventType, payload)
}

// ensureConfigLocked installs the default single-voice configuration when
// nothing has been configured yet.
func (e *Engine) ensureConfigLocked() {
	if e.cfg != nil {
		return
	}
	rc, err := buildRuntimeConfig(Config{Tracks: []TrackConfig{{
		TrackID:     "voice-1",
		MidiChannel: 1,
		Pads:        []PadConfig{{PadIndex: 0, Steps: make([]Step, 16)}},
	}}})
	if err != nil {
		// The default configuration is static and always valid.
		panic(err)
	}
	e.cfg = rc
}

func (e *Engine) statusLocked() Status {
	if e.cfg == nil {
		return Status{Running: false, BPM: defaultBPM, StepCount: 16}
	}
	tracks := make([]TrackStatus, 0, len(e.cfg.tracks))
	for _, tr := range e.cfg.tracks {
		notes := make([]int, 0, len(tr.sounding))
		for note := range tr.sounding {
			notes = append(notes, note)
		}
		sort.Ints(notes)
		ts := TrackStatus{
			TrackID:       tr.id,
			MidiChannel:   tr.channel,
			StepCount:     tr.stepCount,
			ActivePad:     tr.activePad,
			Enabled:       tr.enabled,
			QueuedEnabled: tr.queuedEnabled,
			SoundingNotes: notes,
		}
		if tr.queuedPad >= 0 {
			queued := tr.queuedPad
			ts.QueuedPad = &queued
		}
		tracks = append(tracks, ts)
	}
	return Status{
		Running:     e.running,
		BPM:         e.cfg.bpm,
		StepCount:   e.cfg.stepCount,
		CurrentStep: e.currentStep,
		Cycle:       e.cycle,
		Tracks:      tracks,
	}
}
