package main

import (
	"context"
	"math"
	"time"

	"github.com/velling/riffline"
	"github.com/velling/riffline/engine"
)

// trackProducer renders one track's compiled schedule into the ring
// buffers its consumers drain. It stands in for a full instrument host:
// notes play as plain sine voices, which is enough to hear the schedule
// and to keep the rings fed the way a real processor would.
type trackProducer struct {
	audio       *engine.AudioConsumer
	midi        *engine.MidiConsumer
	eventBlocks [][]riffline.TrackEvent
	midiChannel int
	sampleRate  float64
	blockSize   int
	volume      float32
	panLeft     float32
	panRight    float32

	voices []voice
	left   []float32
	right  []float32
	slots  []engine.MidiSlot
}

type voice struct {
	noteID int
	phase  float64
	step   float64
	gain   float32
}

func newTrackProducer(track riffline.Track, eventBlocks [][]riffline.TrackEvent, sampleRate float64, blockSize int) *trackProducer {
	panLeft, panRight := riffline.ConstantPowerPan(track.Pan)
	return &trackProducer{
		audio:       engine.NewAudioConsumer(track.ID, 8*blockSize),
		midi:        engine.NewMidiConsumer(track.ID, 8*blockSize),
		eventBlocks: eventBlocks,
		midiChannel: track.MidiChannel,
		sampleRate:  sampleRate,
		blockSize:   blockSize,
		volume:      track.Volume,
		panLeft:     panLeft,
		panRight:    panRight,
		left:        make([]float32, blockSize),
		right:       make([]float32, blockSize),
	}
}

// run renders blocks in order, looping over the schedule, until ctx is
// cancelled. It blocks on ring space, not on the engine: when the rings
// are full it sleeps briefly and retries, so it always stays a few
// blocks ahead of the callback without ever touching the audio thread.
func (p *trackProducer) run(ctx context.Context) {
	for block := 0; ; block = (block + 1) % len(p.eventBlocks) {
		p.renderBlock(p.eventBlocks[block])
		if !p.write(ctx) {
			return
		}
	}
}

func (p *trackProducer) renderBlock(events []riffline.TrackEvent) {
	for i := 0; i < p.blockSize; i++ {
		p.left[i] = 0
		p.right[i] = 0
	}
	cursor := 0
	for _, event := range events {
		frame := int(event.Position())
		if frame > p.blockSize {
			frame = p.blockSize
		}
		p.renderVoices(cursor, frame)
		cursor = frame
		switch e := event.(type) {
		case *riffline.NoteOn:
			p.voices = append(p.voices, voice{
				noteID: e.NoteID,
				step:   2 * math.Pi * noteFrequency(e.Key) / p.sampleRate,
				gain:   float32(e.Velocity) / 127,
			})
		case *riffline.NoteOff:
			for i := range p.voices {
				if p.voices[i].noteID == e.NoteID {
					p.voices = append(p.voices[:i], p.voices[i+1:]...)
					break
				}
			}
		}
	}
	p.renderVoices(cursor, p.blockSize)

	p.slots = p.slots[:0]
	for _, msg := range riffline.EventsToMidiMessages(events, p.midiChannel) {
		p.slots = append(p.slots, engine.MidiSlot{Frame: msg.Frame, Data: msg.Data, Active: true})
	}
	p.slots = append(p.slots, engine.MidiSlot{Active: false})
}

func (p *trackProducer) renderVoices(from, to int) {
	for v := range p.voices {
		voice := &p.voices[v]
		for i := from; i < to; i++ {
			s := float32(math.Sin(voice.phase)) * voice.gain * p.volume
			p.left[i] += s * p.panLeft
			p.right[i] += s * p.panRight
			voice.phase += voice.step
		}
	}
}

// write pushes the rendered block and its MIDI slots into the rings,
// retrying until everything fits or ctx is cancelled.
func (p *trackProducer) write(ctx context.Context) bool {
	left, right, slots := p.left, p.right, p.slots
	for len(left) > 0 || len(right) > 0 || len(slots) > 0 {
		left = left[p.audio.Left.WriteSlice(left):]
		right = right[p.audio.Right.WriteSlice(right):]
		slots = slots[p.midi.Events.WriteSlice(slots):]
		if len(left) == 0 && len(right) == 0 && len(slots) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Millisecond):
		}
	}
	return true
}

func noteFrequency(key int) float64 {
	return 440 * math.Pow(2, float64(key-69)/12)
}
