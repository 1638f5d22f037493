package synthgraph

import (
	"fmt"
	"strconv"

	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/cbegin/synthgraph-go/internal/sequencer"
)

// MIDIPortRef identifies an available MIDI output port.
type MIDIPortRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// fallbackOutputs is reported when no driver port enumerates, so callers
// always have something selectable on machines with a virtual bus configured
// but not yet opened.
var fallbackOutputs = []MIDIPortRef{
	{ID: "0", Name: "IAC Driver Bus 1"},
	{ID: "1", Name: "IAC Driver Bus 2"},
}

// ListMIDIOutputs enumerates the output ports of the registered MIDI driver.
func ListMIDIOutputs() ([]MIDIPortRef, error) {
	outs, err := drivers.Outs()
	if err != nil {
		return nil, fmt.Errorf("list midi outputs: %w", err)
	}
	if len(outs) == 0 {
		return fallbackOutputs, nil
	}
	refs := make([]MIDIPortRef, 0, len(outs))
	for _, out := range outs {
		refs = append(refs, MIDIPortRef{ID: strconv.Itoa(out.Number()), Name: out.String()})
	}
	return refs, nil
}

// ResolveMIDIOutput locates an output port by index or by exact name.
func ResolveMIDIOutput(selector string) (drivers.Out, error) {
	outs, err := drivers.Outs()
	if err != nil {
		return nil, fmt.Errorf("resolve midi output: %w", err)
	}
	if n, convErr := strconv.Atoi(selector); convErr == nil {
		for _, out := range outs {
			if out.Number() == n {
				return out, nil
			}
		}
	}
	for _, out := range outs {
		if out.String() == selector {
			return out, nil
		}
	}
	return nil, fmt.Errorf("midi output %q is unavailable", selector)
}

// DriverSink adapts a gomidi output port to the sequencer's Sink. The port is
// opened lazily on first send.
type DriverSink struct {
	out drivers.Out
}

var _ sequencer.Sink = (*DriverSink)(nil)

func NewDriverSink(out drivers.Out) *DriverSink {
	return &DriverSink{out: out}
}

func (s *DriverSink) Send(_ string, msg [3]byte) error {
	if !s.out.IsOpen() {
		if err := s.out.Open(); err != nil {
			return fmt.Errorf("open midi output: %w", err)
		}
	}
	return s.out.Send(msg[:])
}

func (s *DriverSink) Close() error {
	if s.out.IsOpen() {
		return s.out.Close()
	}
	return nil
}
