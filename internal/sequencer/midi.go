package sequencer

// Sink delivers raw 3-byte MIDI messages to an output identified by a
// selector (port index or name). Implementations must be safe to call from
// the scheduling goroutine.
type Sink interface {
	Send(selector string, msg [3]byte) error
}

const (
	statusNoteOff       = 0x80
	statusNoteOn        = 0x90
	statusControlChange = 0xB0

	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

func channelByte(channel int) byte {
	return byte(channel-1) & 0x0F
}

func noteOnMessage(channel, note, velocity int) [3]byte {
	return [3]byte{statusNoteOn | channelByte(channel), byte(clampInt(note, 0, 127)), byte(clampInt(velocity, 1, 127))}
}

func noteOffMessage(channel, note int) [3]byte {
	return [3]byte{statusNoteOff | channelByte(channel), byte(clampInt(note, 0, 127)), 0}
}

func controlChangeMessage(channel, controller int) [3]byte {
	return [3]byte{statusControlChange | channelByte(channel), byte(controller), 0}
}
