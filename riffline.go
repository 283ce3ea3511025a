package riffline

import (
	"sort"

	"github.com/chewxy/math32"
)

type (
	// AudioBuffer is a buffer of stereo audio samples of variable length,
	// each sample represented by [2]float32. Only the audio engine and the
	// device output layer deal in AudioBuffers; the scheduler deals in
	// events.
	AudioBuffer [][2]float32

	// TrackEvent is a single timed musical event on a track. All events
	// carry a mutable position so that the scheduler can rewrite absolute
	// frame positions into block-relative ones; beyond that, each concrete
	// type carries its own payload. Events are compared by position only,
	// except that a Measure ranks before any coincident event (the
	// scheduler uses Measure events to detect bar boundaries
	// deterministically).
	TrackEvent interface {
		Position() float64
		SetPosition(pos float64)
		Copy() TrackEvent
	}

	// ValuedEvent is implemented by the events that carry a continuous
	// value an automation envelope can drive (controllers, pitch bends,
	// note expressions and plugin parameters).
	ValuedEvent interface {
		TrackEvent
		Value() float64
		SetValue(value float64)
	}

	// Note is the editor-facing representation of a note: a position, a
	// pitch, a velocity and a length, all in beats. Notes are never
	// scheduled as-is because their duration may cross block boundaries;
	// the scheduler splits each one into a NoteOn/NoteOff pair.
	Note struct {
		Port          uint16  `yaml:",omitempty" json:"port,omitempty"`
		Channel       uint16  `yaml:",omitempty" json:"channel,omitempty"`
		Pos           float64 `yaml:"position" json:"position"`
		Key           int     `yaml:"note" json:"note"`
		Velocity      int     `yaml:"velocity" json:"velocity"`
		Length        float64 `yaml:"length" json:"length"`
		RiffStartNote bool    `yaml:",omitempty" json:"riffStartNote,omitempty"`
	}

	// NoteOn is the scheduled start of a note. NoteID ties it to the
	// matching NoteOff so a consumer can release the right voice.
	NoteOn struct {
		NoteID   int     `yaml:"noteId" json:"noteId"`
		Pos      float64 `yaml:"position" json:"position"`
		Key      int     `yaml:"note" json:"note"`
		Velocity int     `yaml:"velocity" json:"velocity"`
	}

	// NoteOff is the scheduled end of a note, carrying the same NoteID as
	// the NoteOn that started it.
	NoteOff struct {
		NoteID   int     `yaml:"noteId" json:"noteId"`
		Pos      float64 `yaml:"position" json:"position"`
		Key      int     `yaml:"note" json:"note"`
		Velocity int     `yaml:"velocity" json:"velocity"`
	}

	// Controller is a MIDI continuous controller change.
	Controller struct {
		Pos    float64 `yaml:"position" json:"position"`
		Number int     `yaml:"controller" json:"controller"`
		Val    int     `yaml:"value" json:"value"`
	}

	// PitchBend is a 14-bit MIDI pitch bend.
	PitchBend struct {
		Pos float64 `yaml:"position" json:"position"`
		Val int     `yaml:"value" json:"value"`
	}

	// NoteExpressionType enumerates the per-note expression dimensions.
	NoteExpressionType int

	// NoteExpression is a per-note expression change (volume, pan, tuning
	// etc.) addressed by port, channel and key.
	NoteExpression struct {
		Type    NoteExpressionType `yaml:"type" json:"type"`
		Port    int16              `yaml:",omitempty" json:"port,omitempty"`
		Channel int16              `yaml:",omitempty" json:"channel,omitempty"`
		Pos     float64            `yaml:"position" json:"position"`
		NoteID  int                `yaml:"noteId" json:"noteId"`
		Key     int                `yaml:"key" json:"key"`
		Val     float64            `yaml:"value" json:"value"`
	}

	// PluginParameter is a normalized (0..1) parameter change for a
	// plugin, produced both from discrete automation and from envelope
	// resampling. Instrument tells whether the target plugin is the track
	// instrument or an effect.
	PluginParameter struct {
		PluginID   string  `yaml:"pluginId" json:"pluginId"`
		Instrument bool    `yaml:"instrument" json:"instrument"`
		Pos        float64 `yaml:"position" json:"position"`
		Index      int     `yaml:"index" json:"index"`
		Val        float64 `yaml:"value" json:"value"`
	}

	// SampleRef places a sample (by id) at a position inside a riff.
	SampleRef struct {
		Pos      float64 `yaml:"position" json:"position"`
		SampleID string  `yaml:"sampleId" json:"sampleId"`
	}

	// Measure is a synthetic bar-boundary marker; it carries no payload
	// besides its position.
	Measure struct {
		Pos float64 `yaml:"position" json:"position"`
	}
)

const (
	NoteExpressionVolume NoteExpressionType = iota
	NoteExpressionPan
	NoteExpressionTuning
	NoteExpressionVibrato
	NoteExpressionExpression
	NoteExpressionPressure
	NoteExpressionBrightness
)

// positionEpsilon is the tolerance used when comparing event positions;
// positions closer than this are considered coincident.
const positionEpsilon = 2.220446049250313e-16

func (n *Note) Position() float64       { return n.Pos }
func (n *Note) SetPosition(pos float64) { n.Pos = pos }
func (n *Note) Copy() TrackEvent        { c := *n; return &c }

func (n *NoteOn) Position() float64       { return n.Pos }
func (n *NoteOn) SetPosition(pos float64) { n.Pos = pos }
func (n *NoteOn) Copy() TrackEvent        { c := *n; return &c }

func (n *NoteOff) Position() float64       { return n.Pos }
func (n *NoteOff) SetPosition(pos float64) { n.Pos = pos }
func (n *NoteOff) Copy() TrackEvent        { c := *n; return &c }

func (c *Controller) Position() float64       { return c.Pos }
func (c *Controller) SetPosition(pos float64) { c.Pos = pos }
func (c *Controller) Copy() TrackEvent        { e := *c; return &e }
func (c *Controller) Value() float64          { return float64(c.Val) }
func (c *Controller) SetValue(value float64)  { c.Val = int(value) }

func (p *PitchBend) Position() float64       { return p.Pos }
func (p *PitchBend) SetPosition(pos float64) { p.Pos = pos }
func (p *PitchBend) Copy() TrackEvent        { c := *p; return &c }
func (p *PitchBend) Value() float64          { return float64(p.Val) }
func (p *PitchBend) SetValue(value float64)  { p.Val = int(value) }

// MidiBytes splits the 14-bit pitch bend value into its LSB and MSB data
// bytes.
func (p *PitchBend) MidiBytes() (lsb, msb byte) {
	v := uint16(p.Val)
	return byte(v & 127), byte(v >> 7)
}

// PitchBendFromBytes joins the LSB and MSB data bytes of a MIDI pitch bend
// message back into a 14-bit value.
func PitchBendFromBytes(pos float64, lsb, msb byte) *PitchBend {
	return &PitchBend{Pos: pos, Val: int(uint16(msb)<<7 | uint16(lsb&127))}
}

func (n *NoteExpression) Position() float64       { return n.Pos }
func (n *NoteExpression) SetPosition(pos float64) { n.Pos = pos }
func (n *NoteExpression) Copy() TrackEvent        { c := *n; return &c }
func (n *NoteExpression) Value() float64          { return n.Val }
func (n *NoteExpression) SetValue(value float64)  { n.Val = value }

func (p *PluginParameter) Position() float64       { return p.Pos }
func (p *PluginParameter) SetPosition(pos float64) { p.Pos = pos }
func (p *PluginParameter) Copy() TrackEvent        { c := *p; return &c }
func (p *PluginParameter) Value() float64          { return p.Val }
func (p *PluginParameter) SetValue(value float64)  { p.Val = value }

func (s *SampleRef) Position() float64       { return s.Pos }
func (s *SampleRef) SetPosition(pos float64) { s.Pos = pos }
func (s *SampleRef) Copy() TrackEvent        { c := *s; return &c }

func (m *Measure) Position() float64       { return m.Pos }
func (m *Measure) SetPosition(pos float64) { m.Pos = pos }
func (m *Measure) Copy() TrackEvent        { c := *m; return &c }

// TrackEventLess is the scheduler's ordering over events: ascending
// position, with a Measure ranking before any other event at the same
// position so that bar boundaries are seen before the events on them.
func TrackEventLess(a, b TrackEvent) bool {
	if a.Position()-b.Position() > positionEpsilon {
		return false
	}
	if b.Position()-a.Position() > positionEpsilon {
		return true
	}
	_, aMeasure := a.(*Measure)
	_, bMeasure := b.(*Measure)
	return aMeasure && !bMeasure
}

// SortTrackEvents sorts events in place per TrackEventLess. The sort is
// stable so that coincident events keep their insertion order.
func SortTrackEvents(events []TrackEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return TrackEventLess(events[i], events[j])
	})
}

// SortPluginParameters sorts plugin parameter changes in place by
// position.
func SortPluginParameters(params []PluginParameter) {
	sort.SliceStable(params, func(i, j int) bool {
		return params[i].Pos < params[j].Pos
	})
}

// BeatsToFrames converts a position in beats to a position in sample
// frames at the given tempo and sample rate.
func BeatsToFrames(beats, bpm, sampleRate float64) float64 {
	return beats / bpm * 60 * sampleRate
}

// FramesToBeats is the inverse of BeatsToFrames.
func FramesToBeats(frames, bpm, sampleRate float64) float64 {
	return frames / sampleRate * bpm / 60
}

// ConstantPowerPan computes the left and right channel gains for a pan
// position in [-1, 1] using a constant-power law: the perceived loudness
// stays the same across the whole stereo field, unlike with a linear
// crossfade. pan = -1 is hard left, 0 is center (both gains sqrt(2)/2),
// 1 is hard right. The law is computed entirely in float32.
func ConstantPowerPan(pan float32) (left, right float32) {
	const root2over2 = math32.Sqrt2 * 0.5
	angle := pan * math32.Pi / 4
	sin, cos := math32.Sin(angle), math32.Cos(angle)
	left = root2over2 * (cos - sin)
	right = root2over2 * (cos + sin)
	return left, right
}
