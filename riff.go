package riffline

import (
	"github.com/google/uuid"
)

type (
	// Riff is a named, reusable pattern of events with a length in beats.
	// Event positions are relative to the start of the riff.
	Riff struct {
		ID     string     `yaml:"id" json:"id"`
		Name   string     `yaml:"name" json:"name"`
		Length float64    `yaml:"length" json:"length"`
		Events EventList  `yaml:"events" json:"events"`
		Color  *RiffColor `yaml:",omitempty" json:"color,omitempty"`
	}

	// RiffColor is an optional RGBA display color for a riff.
	RiffColor struct {
		R float64 `yaml:"r" json:"r"`
		G float64 `yaml:"g" json:"g"`
		B float64 `yaml:"b" json:"b"`
		A float64 `yaml:"a" json:"a"`
	}

	// RiffReferenceMode controls which notes of the referenced riff play.
	// Normal plays everything. Start plays nothing until the playhead
	// meets the first start-note, then everything from there on. End
	// plays everything until the first start-note, then nothing. Start
	// and End let a single riff serve as its own intro and outro.
	RiffReferenceMode int

	// RiffReference places a riff (by id) on a track at an absolute
	// position in beats.
	RiffReference struct {
		ID       string            `yaml:"id" json:"id"`
		Pos      float64           `yaml:"position" json:"position"`
		LinkedTo string            `yaml:"linkedTo" json:"linkedTo"`
		Mode     RiffReferenceMode `yaml:"mode" json:"mode"`
	}

	// EnvelopePoint is one breakpoint of an automation envelope.
	EnvelopePoint struct {
		Position float64 `yaml:"position" json:"position"`
		Value    float64 `yaml:"value" json:"value"`
	}

	// AutomationEnvelope is a stepwise-linear curve of breakpoints
	// driving one value-carrying event type. Target is the template
	// event that resampling stamps positions and values onto.
	AutomationEnvelope struct {
		ID     string          `yaml:"id" json:"id"`
		Target ValuedEvent     `yaml:"target" json:"target"`
		Points []EnvelopePoint `yaml:"points" json:"points"`
	}

	// Automation holds a track's automation in both of its forms: a list
	// of discrete events and a list of envelopes.
	Automation struct {
		Events    EventList            `yaml:"events" json:"events"`
		Envelopes []AutomationEnvelope `yaml:"envelopes" json:"envelopes"`
	}

	// Track is one sequencer track: a pool of riffs, the arrangement of
	// references to them, and the track's automation and mixer settings.
	Track struct {
		ID          string          `yaml:"id" json:"id"`
		Name        string          `yaml:"name" json:"name"`
		Volume      float32         `yaml:"volume" json:"volume"`
		Pan         float32         `yaml:"pan" json:"pan"`
		Mute        bool            `yaml:",omitempty" json:"mute,omitempty"`
		Solo        bool            `yaml:",omitempty" json:"solo,omitempty"`
		MidiChannel int             `yaml:"midiChannel" json:"midiChannel"`
		Riffs       []Riff          `yaml:"riffs" json:"riffs"`
		RiffRefs    []RiffReference `yaml:"riffRefs" json:"riffRefs"`
		Automation  Automation      `yaml:"automation" json:"automation"`
	}
)

const (
	RiffReferenceModeNormal RiffReferenceMode = iota
	RiffReferenceModeStart
	RiffReferenceModeEnd
)

// NewRiff returns an empty riff with a fresh id and the given name and
// length in beats.
func NewRiff(name string, length float64) Riff {
	return Riff{ID: uuid.New().String(), Name: name, Length: length}
}

// NewRiffReference places riff at position (in beats) in Normal mode.
func NewRiffReference(riff Riff, position float64) RiffReference {
	return RiffReference{
		ID:       uuid.New().String(),
		Pos:      position,
		LinkedTo: riff.ID,
		Mode:     RiffReferenceModeNormal,
	}
}

// NewTrack returns an empty track with a fresh id, unity volume and
// center pan.
func NewTrack(name string) Track {
	return Track{
		ID:     uuid.New().String(),
		Name:   name,
		Volume: 1.0,
		Pan:    0.0,
	}
}

func (r Riff) Copy() Riff {
	c := r
	c.Events = r.Events.Copy()
	if r.Color != nil {
		col := *r.Color
		c.Color = &col
	}
	return c
}

func (e AutomationEnvelope) Copy() AutomationEnvelope {
	c := e
	if e.Target != nil {
		c.Target = e.Target.Copy().(ValuedEvent)
	}
	c.Points = make([]EnvelopePoint, len(e.Points))
	copy(c.Points, e.Points)
	return c
}

func (a Automation) Copy() Automation {
	c := a
	c.Events = a.Events.Copy()
	c.Envelopes = make([]AutomationEnvelope, len(a.Envelopes))
	for i, e := range a.Envelopes {
		c.Envelopes[i] = e.Copy()
	}
	return c
}

func (t Track) Copy() Track {
	c := t
	c.Riffs = make([]Riff, len(t.Riffs))
	for i, r := range t.Riffs {
		c.Riffs[i] = r.Copy()
	}
	c.RiffRefs = make([]RiffReference, len(t.RiffRefs))
	copy(c.RiffRefs, t.RiffRefs)
	c.Automation = t.Automation.Copy()
	return c
}

// Riff returns the riff with the given id, or false if the track has no
// such riff.
func (t *Track) Riff(id string) (*Riff, bool) {
	for i := range t.Riffs {
		if t.Riffs[i].ID == id {
			return &t.Riffs[i], true
		}
	}
	return nil, false
}

// EventList is a slice of track events with value-semantics deep copy
// and tagged serialization (see songio.go).
type EventList []TrackEvent

func (l EventList) Copy() EventList {
	if l == nil {
		return nil
	}
	c := make(EventList, len(l))
	for i, e := range l {
		c[i] = e.Copy()
	}
	return c
}
