package engine

import "github.com/velling/riffline"

// Inward commands, sent to Broker.ToEngine and handled synchronously in
// the audio callback. Handlers must not block or allocate, so commands
// carry everything pre-built (consumers with their rings, samples
// already decoded).
type (
	// NewAudioConsumerMsg registers a track's audio rings with the
	// engine.
	NewAudioConsumerMsg struct {
		Consumer *AudioConsumer
	}

	// NewMidiConsumerMsg registers a track's pre-rendered MIDI ring with
	// the engine.
	NewMidiConsumerMsg struct {
		Consumer *MidiConsumer
	}

	// PlayMsg starts playback. BlocksTotal is the passage extent in
	// blocks; the transport wraps back to block zero when it is reached.
	// With Restart the transport is repositioned to StartBlock before
	// starting, otherwise it resumes where it stopped.
	PlayMsg struct {
		Restart     bool
		BlocksTotal int
		StartBlock  int
	}

	StopMsg struct{}

	// ExtentsChangeMsg changes the passage extent without touching the
	// play state.
	ExtentsChangeMsg struct {
		BlocksTotal int
	}

	TempoMsg struct {
		BPM float64
	}

	SampleRateMsg struct {
		SampleRate float64
	}

	// BlockSizeMsg changes the number of frames per callback. Values
	// beyond MaxBlockSize are clamped to it, since the engine's scratch
	// buffers are fixed.
	BlockSizeMsg struct {
		BlockSize int
	}

	MasterVolumeMsg struct {
		Volume float32
	}

	MasterPanMsg struct {
		Pan float32
	}

	// RemoveTrackMsg unregisters all of a track's consumers.
	RemoveTrackMsg struct {
		TrackID string
	}

	// MidiOutPortMsg attaches a hardware MIDI-out port to a track's MIDI
	// consumer.
	MidiOutPortMsg struct {
		TrackID string
		Port    MidiOutPort
	}

	// PreviewSampleMsg starts one-shot playback of an already decoded
	// sample, mixed on top of whatever the tracks produce.
	PreviewSampleMsg struct {
		Sample *riffline.SampleData
	}

	ShutdownMsg struct{}
)

// Outward event payloads, boxed into MsgToModel.Data.
type (
	// MidiEvent is a live hardware MIDI-in event, classified by status
	// byte and stamped with the absolute frame at which it arrived (zero
	// when the transport is stopped).
	MidiEvent struct {
		Kind       MidiEventKind
		DeltaFrame uint32
		Data       [3]byte
	}

	// MidiControlEvent is a live event from the separate control-surface
	// input port.
	MidiControlEvent struct {
		Data [3]byte
	}

	// MMCEvent is a MIDI Machine Control transport command received as a
	// SysEx frame on the control-surface port.
	MMCEvent struct {
		DeviceID byte
		Command  byte
	}

	// DeviceRestartRequiredMsg signals a fatal device-level failure; the
	// controller should tear down and reopen the audio device.
	DeviceRestartRequiredMsg struct{}

	MidiEventKind int
)

const (
	MidiEventNoteOn MidiEventKind = iota
	MidiEventNoteOff
	MidiEventController
	MidiEventPitchBend
	MidiEventPolyPressure
	MidiEventChannelPressure
)
