package engine

// MidiOutPort is a hardware MIDI output a track's pre-rendered MIDI can
// be written to. Send must be safe to call from the audio callback, i.e.
// it must not block; implementations that cannot guarantee that should
// buffer internally.
type MidiOutPort interface {
	Send(data [3]byte) error
	Close() error
}

type (
	// AudioConsumer is the engine's per-track handle on rendered audio:
	// one ring per channel, written by the track's background processor,
	// drained by the callback.
	AudioConsumer struct {
		TrackID string
		Left    *Ring[float32]
		Right   *Ring[float32]
	}

	// MidiSlot is one pre-rendered MIDI event in a track's MIDI ring.
	// The producer terminates each block's batch with a slot whose
	// Active flag is false; the callback stops draining at it, so a
	// slow producer can never make the callback scan a whole ring.
	MidiSlot struct {
		Frame  uint32
		Data   [3]byte
		Active bool
	}

	// MidiConsumer is the engine's per-track handle on pre-rendered
	// MIDI, with an optional hardware out port to write it to.
	MidiConsumer struct {
		TrackID string
		Events  *Ring[MidiSlot]
		Port    MidiOutPort
	}
)

// NewAudioConsumer returns an audio consumer whose rings hold capacity
// samples per channel.
func NewAudioConsumer(trackID string, capacity int) *AudioConsumer {
	return &AudioConsumer{
		TrackID: trackID,
		Left:    NewRing[float32](capacity),
		Right:   NewRing[float32](capacity),
	}
}

// NewMidiConsumer returns a MIDI consumer whose ring holds capacity
// event slots. The port is attached later with MidiOutPortMsg.
func NewMidiConsumer(trackID string, capacity int) *MidiConsumer {
	return &MidiConsumer{
		TrackID: trackID,
		Events:  NewRing[MidiSlot](capacity),
	}
}
