package sequencer

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu       sync.Mutex
	messages [][3]byte
}

func (s *recordingSink) Send(_ string, msg [3]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSink) snapshot() [][3]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][3]byte, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []struct {
		eventType string
		payload   map[string]any
	}
}

func (p *capturingPublisher) Publish(_, eventType string, payload map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, struct {
		eventType string
		payload   map[string]any
	}{eventType, payload})
}

func (p *capturingPublisher) byType(eventType string) []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []map[string]any
	for _, ev := range p.events {
		if ev.eventType == eventType {
			out = append(out, ev.payload)
		}
	}
	return out
}

func steps16(notes map[int][]int, holds ...int) []Step {
	out := make([]Step, 16)
	for idx, ns := range notes {
		out[idx] = Step{Notes: ns}
	}
	for _, idx := range holds {
		out[idx].Hold = true
	}
	return out
}

func singleTrackConfig(steps []Step) Config {
	return Config{
		BPM: 120,
		Tracks: []TrackConfig{{
			TrackID:     "lead",
			MidiChannel: 1,
			Pads:        []PadConfig{{PadIndex: 0, Steps: steps}},
		}},
	}
}

func TestStepEmitsNoteOnThenReleasesOnEmptyStep(t *testing.T) {
	sink := &recordingSink{}
	eng := New(sink, nil, Options{SessionID: "s"})
	if _, err := eng.Configure(singleTrackConfig(steps16(map[int][]int{0: {60}}))); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	eng.performStep()
	msgs := sink.snapshot()
	if len(msgs) != 1 || msgs[0] != [3]byte{0x90, 60, 100} {
		t.Fatalf("expected one note-on for 60, got %v", msgs)
	}

	eng.performStep()
	msgs = sink.snapshot()
	if len(msgs) != 2 || msgs[1] != [3]byte{0x80, 60, 0} {
		t.Fatalf("expected note-off for 60 on the empty step, got %v", msgs)
	}
}

func TestHoldSustainsUntilNonHoldStep(t *testing.T) {
	sink := &recordingSink{}
	eng := New(sink, nil, Options{})
	cfg := singleTrackConfig(steps16(map[int][]int{0: {60}}, 1, 2))
	if _, err := eng.Configure(cfg); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	eng.performStep() // note-on
	eng.performStep() // hold
	eng.performStep() // hold
	if got := len(sink.snapshot()); got != 1 {
		t.Fatalf("expected the note to sustain through hold steps, got %d messages", got)
	}
	eng.performStep() // empty, no hold
	msgs := sink.snapshot()
	if len(msgs) != 2 || msgs[1] != [3]byte{0x80, 60, 0} {
		t.Fatalf("expected a note-off after the hold run, got %v", msgs)
	}
}

func TestNewNotesReleasePreviousBeforeTriggering(t *testing.T) {
	sink := &recordingSink{}
	eng := New(sink, nil, Options{})
	cfg := singleTrackConfig(steps16(map[int][]int{0: {60, 64}, 1: {67}}))
	if _, err := eng.Configure(cfg); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	eng.performStep()
	sink.reset()
	eng.performStep()
	msgs := sink.snapshot()
	want := [][3]byte{{0x80, 60, 0}, {0x80, 64, 0}, {0x90, 67, 100}}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Fatalf("message %d: expected %v, got %v", i, want[i], msgs[i])
		}
	}
}

func TestVelocityAndChannelAppearInMessages(t *testing.T) {
	sink := &recordingSink{}
	eng := New(sink, nil, Options{})
	cfg := Config{Tracks: []TrackConfig{{
		TrackID:     "bass",
		MidiChannel: 10,
		Velocity:    37,
		Pads:        []PadConfig{{PadIndex: 0, Steps: steps16(map[int][]int{0: {36}})}},
	}}}
	if _, err := eng.Configure(cfg); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	eng.performStep()
	msgs := sink.snapshot()
	if len(msgs) != 1 || msgs[0] != [3]byte{0x90 | 9, 36, 37} {
		t.Fatalf("expected note-on on channel 10 with velocity 37, got %v", msgs)
	}
}

func TestQueuePadCommitsAtLocalBoundary(t *testing.T) {
	sink := &recordingSink{}
	pub := &capturingPublisher{}
	eng := New(sink, pub, Options{SessionID: "s"})
	cfg := singleTrackConfig(steps16(nil))
	cfg.Tracks[0].Pads = append(cfg.Tracks[0].Pads, PadConfig{PadIndex: 3, Steps: steps16(nil)})
	if _, err := eng.Configure(cfg); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	eng.running = true // queue instead of applying immediately
	if _, err := eng.QueuePad("lead", 3); err != nil {
		t.Fatalf("queue pad failed: %v", err)
	}

	for i := 0; i < 15; i++ {
		eng.performStep()
	}
	st := eng.Status()
	if st.Tracks[0].ActivePad != 0 {
		t.Fatalf("pad switched before the boundary at step %d", st.CurrentStep)
	}
	eng.performStep()
	st = eng.Status()
	if st.Tracks[0].ActivePad != 3 || st.Tracks[0].QueuedPad != nil {
		t.Fatalf("expected pad 3 active after the boundary, got %+v", st.Tracks[0])
	}
	switched := pub.byType("sequencer_pad_switched")
	if len(switched) != 1 || switched[0]["active_pad"] != 3 {
		t.Fatalf("expected one pad_switched event for pad 3, got %v", switched)
	}
}

func TestQueuePadWhileStoppedAppliesImmediatelyAndRewinds(t *testing.T) {
	eng := New(nil, nil, Options{})
	cfg := singleTrackConfig(steps16(nil))
	cfg.Tracks[0].Pads = append(cfg.Tracks[0].Pads, PadConfig{PadIndex: 1, Steps: steps16(nil)})
	if _, err := eng.Configure(cfg); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	eng.performStep()
	eng.performStep()

	st, err := eng.QueuePad("lead", 1)
	if err != nil {
		t.Fatalf("queue pad failed: %v", err)
	}
	if st.Tracks[0].ActivePad != 1 || st.CurrentStep != 0 {
		t.Fatalf("expected immediate switch and rewind, got pad %d step %d",
			st.Tracks[0].ActivePad, st.CurrentStep)
	}
}

func TestQueuePadUnknownTargets(t *testing.T) {
	eng := New(nil, nil, Options{})
	if _, err := eng.Configure(singleTrackConfig(steps16(nil))); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if _, err := eng.QueuePad("nope", 0); !errors.Is(err, ErrUnknownTrack) {
		t.Fatalf("expected ErrUnknownTrack, got %v", err)
	}
	if _, err := eng.QueuePad("lead", 5); !errors.Is(err, ErrUnknownPad) {
		t.Fatalf("expected ErrUnknownPad, got %v", err)
	}
}

func TestTransportStepCountFollowsEnabledTracks(t *testing.T) {
	eng := New(nil, nil, Options{})
	disabled := false
	cfg := Config{Tracks: []TrackConfig{
		{TrackID: "a", MidiChannel: 1, StepCount: 16,
			Pads: []PadConfig{{PadIndex: 0, Steps: steps16(nil)}}},
		{TrackID: "b", MidiChannel: 2, StepCount: 32,
			Pads: []PadConfig{{PadIndex: 0, Steps: make([]Step, 32)}}},
	}}
	st, err := eng.Configure(cfg)
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if st.StepCount != 32 {
		t.Fatalf("expected transport step count 32, got %d", st.StepCount)
	}

	cfg.Tracks[1].Enabled = &disabled
	st, err = eng.Configure(cfg)
	if err != nil {
		t.Fatalf("reconfigure failed: %v", err)
	}
	if st.StepCount != 16 {
		t.Fatalf("expected transport step count 16 with the long track disabled, got %d", st.StepCount)
	}
}

func TestQueuedEnableWaitsForOtherTrackBoundaries(t *testing.T) {
	eng := New(nil, nil, Options{})
	disabled, queued := false, true
	cfg := Config{Tracks: []TrackConfig{
		{TrackID: "a", MidiChannel: 1,
			Pads: []PadConfig{{PadIndex: 0, Steps: steps16(nil)}}},
		{TrackID: "b", MidiChannel: 2, Enabled: &disabled, QueuedEnabled: &queued,
			Pads: []PadConfig{{PadIndex: 0, Steps: steps16(nil)}}},
	}}
	if _, err := eng.Configure(cfg); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	for i := 0; i < 15; i++ {
		eng.performStep()
		if st := eng.Status(); st.Tracks[1].Enabled {
			t.Fatalf("track enabled mid-pattern at step %d", st.CurrentStep)
		}
	}
	eng.performStep()
	st := eng.Status()
	if !st.Tracks[1].Enabled || st.Tracks[1].QueuedEnabled != nil {
		t.Fatalf("expected the queued enable to commit at the boundary, got %+v", st.Tracks[1])
	}
}

func TestQueuedDisableReleasesAtBoundary(t *testing.T) {
	sink := &recordingSink{}
	eng := New(sink, nil, Options{})
	queued := false
	cfg := singleTrackConfig(steps16(map[int][]int{0: {60}}, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15))
	cfg.Tracks[0].QueuedEnabled = &queued
	if _, err := eng.Configure(cfg); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	for i := 0; i < 16; i++ {
		eng.performStep()
	}
	st := eng.Status()
	if st.Tracks[0].Enabled {
		t.Fatalf("expected the track disabled after its boundary")
	}
	msgs := sink.snapshot()
	if len(msgs) == 0 || msgs[len(msgs)-1] != [3]byte{0x80, 60, 0} {
		t.Fatalf("expected the held note released on disable, got %v", msgs)
	}
}

func TestConfigureReleasesRemovedTracks(t *testing.T) {
	sink := &recordingSink{}
	eng := New(sink, nil, Options{})
	if _, err := eng.Configure(singleTrackConfig(steps16(map[int][]int{0: {60}}, 1))); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	eng.performStep()
	sink.reset()

	if _, err := eng.Configure(Config{Tracks: []TrackConfig{{
		TrackID:     "other",
		MidiChannel: 2,
		Pads:        []PadConfig{{PadIndex: 0, Steps: steps16(nil)}},
	}}}); err != nil {
		t.Fatalf("reconfigure failed: %v", err)
	}
	msgs := sink.snapshot()
	if len(msgs) != 1 || msgs[0] != [3]byte{0x80, 60, 0} {
		t.Fatalf("expected the removed track's note released, got %v", msgs)
	}
}

func TestConfigureRejectsInvalidTracks(t *testing.T) {
	eng := New(nil, nil, Options{})
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty id", Config{Tracks: []TrackConfig{{MidiChannel: 1}}}},
		{"bad channel", Config{Tracks: []TrackConfig{{TrackID: "a", MidiChannel: 17}}}},
		{"duplicate id", Config{Tracks: []TrackConfig{
			{TrackID: "a", MidiChannel: 1}, {TrackID: "a", MidiChannel: 2}}}},
		{"pad out of range", Config{Tracks: []TrackConfig{{TrackID: "a", MidiChannel: 1,
			Pads: []PadConfig{{PadIndex: 8}}}}}},
	}
	for _, tc := range cases {
		if _, err := eng.Configure(tc.cfg); err == nil {
			t.Fatalf("%s: expected a configuration error", tc.name)
		}
	}
}

func TestStepEventsCarryTransportPositions(t *testing.T) {
	pub := &capturingPublisher{}
	eng := New(nil, pub, Options{SessionID: "s"})
	if _, err := eng.Configure(singleTrackConfig(steps16(nil))); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	eng.performStep()
	eng.performStep()
	events := pub.byType("sequencer_step")
	if len(events) != 2 {
		t.Fatalf("expected two step events, got %d", len(events))
	}
	if events[0]["step"] != 0 || events[0]["next_step"] != 1 {
		t.Fatalf("unexpected first step payload %v", events[0])
	}
	if events[1]["step"] != 1 || events[1]["next_step"] != 2 {
		t.Fatalf("unexpected second step payload %v", events[1])
	}
}

func TestStartStopRealClockLifecycle(t *testing.T) {
	sink := &recordingSink{}
	pub := &capturingPublisher{}
	eng := New(sink, pub, Options{SessionID: "s"})
	cfg := singleTrackConfig(steps16(map[int][]int{0: {60}}))
	cfg.BPM = 600 // 25 ms steps keep the test short
	if _, err := eng.Configure(cfg); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	st := eng.Start()
	if !st.Running {
		t.Fatalf("expected running status after start")
	}
	eng.Start() // idempotent

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if eng.Status().Cycle >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if eng.Status().Cycle < 1 {
		t.Fatalf("sequencer did not complete a cycle in time")
	}

	st = eng.Stop()
	if st.Running || st.CurrentStep != 0 {
		t.Fatalf("expected stopped transport at step 0, got %+v", st)
	}
	if len(st.Tracks[0].SoundingNotes) != 0 {
		t.Fatalf("expected no sounding notes after stop, got %v", st.Tracks[0].SoundingNotes)
	}

	var sawOn, sawOff, sawAllNotesOff bool
	for _, msg := range sink.snapshot() {
		switch {
		case msg == [3]byte{0x90, 60, 100}:
			sawOn = true
		case msg == [3]byte{0x80, 60, 0}:
			sawOff = true
		case msg == [3]byte{0xB0, 123, 0}:
			sawAllNotesOff = true
		}
	}
	if !sawOn || !sawOff || !sawAllNotesOff {
		t.Fatalf("missing lifecycle messages: on=%v off=%v flush=%v", sawOn, sawOff, sawAllNotesOff)
	}
	if len(pub.byType("sequencer_step")) == 0 {
		t.Fatalf("expected step events while running")
	}
}

func TestStepDuration(t *testing.T) {
	if d := stepDuration(120); d != 125*time.Millisecond {
		t.Fatalf("expected 125ms at 120 BPM, got %v", d)
	}
	if d := stepDuration(60); d != 250*time.Millisecond {
		t.Fatalf("expected 250ms at 60 BPM, got %v", d)
	}
}
