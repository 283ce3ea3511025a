package riffline

// MidiMessage is a raw three-byte MIDI message stamped with the frame
// offset it should fire at, relative to the start of its block.
type MidiMessage struct {
	Frame uint32
	Data  [3]byte
}

// MIDI status byte ranges. A status byte encodes the message kind in its
// high nibble and the channel in its low nibble.
const (
	MidiStatusNoteOff         = 0x80
	MidiStatusNoteOn          = 0x90
	MidiStatusPolyPressure    = 0xA0
	MidiStatusController      = 0xB0
	MidiStatusChannelPressure = 0xD0
	MidiStatusPitchBend       = 0xE0
)

// EventsToMidiMessages translates a block of scheduled events into raw
// MIDI messages on the given channel (0..15). Event positions are taken
// as block-relative frame offsets. Events with no MIDI equivalent
// (measures, sample references, plugin parameters, note expressions) are
// skipped.
func EventsToMidiMessages(events []TrackEvent, channel int) []MidiMessage {
	ch := byte(channel & 0x0F)
	var msgs []MidiMessage
	for _, event := range events {
		frame := uint32(event.Position())
		switch e := event.(type) {
		case *NoteOn:
			msgs = append(msgs, MidiMessage{Frame: frame, Data: [3]byte{MidiStatusNoteOn | ch, byte(e.Key), byte(e.Velocity)}})
		case *NoteOff:
			msgs = append(msgs, MidiMessage{Frame: frame, Data: [3]byte{MidiStatusNoteOff | ch, byte(e.Key), byte(e.Velocity)}})
		case *Controller:
			msgs = append(msgs, MidiMessage{Frame: frame, Data: [3]byte{MidiStatusController | ch, byte(e.Number), byte(e.Val)}})
		case *PitchBend:
			lsb, msb := e.MidiBytes()
			msgs = append(msgs, MidiMessage{Frame: frame, Data: [3]byte{MidiStatusPitchBend | ch, lsb, msb}})
		}
	}
	return msgs
}
