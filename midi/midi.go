// Package midi connects the engine to hardware MIDI ports through the
// rtmidi driver: a performance input whose events are classified and
// forwarded to the controller thread, a separate control-surface input
// that understands MMC transport commands, and output ports the engine
// writes pre-rendered track MIDI to.
package midi

import (
	"github.com/velling/riffline/engine"
)

// Classify maps a raw status byte to the engine's event kind. ok is
// false for status bytes outside the recognized channel-voice ranges
// (system messages, running status data).
func Classify(status byte) (kind engine.MidiEventKind, ok bool) {
	switch {
	case status >= 0x80 && status <= 0x8F:
		return engine.MidiEventNoteOff, true
	case status >= 0x90 && status <= 0x9F:
		return engine.MidiEventNoteOn, true
	case status >= 0xA0 && status <= 0xAF:
		return engine.MidiEventPolyPressure, true
	case status >= 0xB0 && status <= 0xBF:
		return engine.MidiEventController, true
	case status >= 0xD0 && status <= 0xDF:
		return engine.MidiEventChannelPressure, true
	case status >= 0xE0 && status <= 0xEF:
		return engine.MidiEventPitchBend, true
	}
	return 0, false
}

// ParseMMC parses a MIDI Machine Control transport frame, the 6-byte
// SysEx message F0 7F <device> 06 <command> F7.
func ParseMMC(data []byte) (deviceID, command byte, ok bool) {
	if len(data) != 6 {
		return 0, 0, false
	}
	if data[0] != 0xF0 || data[1] != 0x7F || data[3] != 0x06 || data[5] != 0xF7 {
		return 0, 0, false
	}
	return data[2], data[4], true
}

// MMC command bytes.
const (
	MMCStop         = 0x01
	MMCPlay         = 0x02
	MMCDeferredPlay = 0x03
	MMCFastForward  = 0x04
	MMCRewind       = 0x05
	MMCRecordStrobe = 0x06
	MMCRecordExit   = 0x07
	MMCPause        = 0x09
)
