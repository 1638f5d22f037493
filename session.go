// Package synthgraph assembles synthesizer instruments from node graphs and
// drives step-sequenced performances into an external realtime synthesis
// engine. A Session pairs one graph compiler with one sequencer engine and a
// session-scoped event stream.
package synthgraph

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cbegin/synthgraph-go/internal/compiler"
	"github.com/cbegin/synthgraph-go/internal/eventbus"
	"github.com/cbegin/synthgraph-go/internal/opcode"
	"github.com/cbegin/synthgraph-go/internal/patch"
	"github.com/cbegin/synthgraph-go/internal/sequencer"
)

// Re-exported types so callers rarely need the internal packages directly.
type (
	InstrumentTarget = compiler.InstrumentTarget
	Program          = compiler.Program
	Diagnostics      = compiler.Diagnostics
	Patch            = patch.Patch
	Graph            = patch.Graph
	SequencerConfig  = sequencer.Config
	SequencerStatus  = sequencer.Status
	TrackConfig      = sequencer.TrackConfig
	PadConfig        = sequencer.PadConfig
	Step             = sequencer.Step
	Event            = eventbus.Event
)

var (
	ErrUnknownTrack = sequencer.ErrUnknownTrack
	ErrUnknownPad   = sequencer.ErrUnknownPad
)

type SessionOption func(*sessionConfig)

type sessionConfig struct {
	registry   *opcode.Registry
	sink       sequencer.Sink
	selector   string
	midiInput  string
	midiModule string
	logger     *slog.Logger
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		midiInput:  "0",
		midiModule: "portmidi",
	}
}

// WithRegistry swaps the opcode registry the compiler consults.
func WithRegistry(r *opcode.Registry) SessionOption {
	return func(cfg *sessionConfig) { cfg.registry = r }
}

// WithMIDISink installs the output transport for sequencer messages.
func WithMIDISink(sink sequencer.Sink) SessionOption {
	return func(cfg *sessionConfig) { cfg.sink = sink }
}

// WithMIDIOutput selects the output port passed to the sink on every send.
func WithMIDIOutput(selector string) SessionOption {
	return func(cfg *sessionConfig) { cfg.selector = selector }
}

// WithMIDIInput selects the engine's MIDI input device for compiled programs.
func WithMIDIInput(input string) SessionOption {
	return func(cfg *sessionConfig) { cfg.midiInput = input }
}

// WithMIDIModule selects the engine's realtime MIDI module for compiled
// programs (ignored on darwin, where CoreMIDI is forced).
func WithMIDIModule(module string) SessionOption {
	return func(cfg *sessionConfig) { cfg.midiModule = module }
}

func WithLogger(logger *slog.Logger) SessionOption {
	return func(cfg *sessionConfig) { cfg.logger = logger }
}

// Session owns one sequencer engine and caches the last compiled program.
// The compiler itself is stateless; Compile may be called concurrently.
type Session struct {
	id         string
	compiler   *compiler.Compiler
	bus        *eventbus.Bus
	engine     *sequencer.Engine
	midiInput  string
	midiModule string

	mu      sync.Mutex
	program *compiler.Program
}

func NewSession(opts ...SessionOption) *Session {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	id := uuid.NewString()
	bus := eventbus.New()
	engine := sequencer.New(cfg.sink, bus, sequencer.Options{
		SessionID: id,
		Selector:  cfg.selector,
		Logger:    cfg.logger,
	})
	return &Session{
		id:         id,
		compiler:   compiler.New(cfg.registry),
		bus:        bus,
		engine:     engine,
		midiInput:  cfg.midiInput,
		midiModule: cfg.midiModule,
	}
}

func (s *Session) ID() string { return s.id }

// Compile renders the targets into a single program, caches it for Program,
// and publishes a compiled/compile_failed event.
func (s *Session) Compile(targets []InstrumentTarget) (*Program, error) {
	program, err := s.compiler.Compile(targets, s.midiInput, s.midiModule)
	if err != nil {
		var diags *compiler.Diagnostics
		if errors.As(err, &diags) {
			s.bus.Publish(s.id, "compile_failed", map[string]any{
				"errors": strings.Join(diags.Messages, " | "),
			})
		}
		return nil, err
	}
	s.mu.Lock()
	s.program = program
	s.mu.Unlock()
	s.bus.Publish(s.id, "compiled", map[string]any{"diagnostics": len(program.Diagnostics)})
	return program, nil
}

// Program returns the last successfully compiled program, if any.
func (s *Session) Program() *Program {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.program
}

func (s *Session) Configure(cfg SequencerConfig) (SequencerStatus, error) {
	return s.engine.Configure(cfg)
}

func (s *Session) Start() SequencerStatus { return s.engine.Start() }

func (s *Session) Stop() SequencerStatus { return s.engine.Stop() }

func (s *Session) QueuePad(trackID string, padIndex int) (SequencerStatus, error) {
	return s.engine.QueuePad(trackID, padIndex)
}

func (s *Session) SequencerStatus() SequencerStatus { return s.engine.Status() }

// Watch subscribes to the session's event stream. The cancel function
// detaches the subscription and closes the channel.
func (s *Session) Watch() (<-chan Event, func()) {
	return s.bus.Subscribe(s.id)
}

// Close stops the sequencer, flushing all sounding notes, and tears down the
// event stream.
func (s *Session) Close() {
	s.engine.Shutdown()
	s.bus.Close()
}
