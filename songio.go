package riffline

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Project is the serialized form of an arrangement: global tempo and
// meter plus the tracks. It is the unit of persistence; the playback
// engine never sees a Project, only the schedules compiled from its
// tracks.
type Project struct {
	Name            string  `yaml:"name" json:"name"`
	Tempo           float64 `yaml:"tempo" json:"tempo"`
	BeatsPerMeasure float64 `yaml:"beatsPerMeasure" json:"beatsPerMeasure"`
	LengthInBeats   float64 `yaml:"lengthInBeats" json:"lengthInBeats"`
	Tracks          []Track `yaml:"tracks" json:"tracks"`
}

// NewProject returns an empty project with the given name, 120 BPM and a
// 4/4 meter.
func NewProject(name string) Project {
	return Project{Name: name, Tempo: 120, BeatsPerMeasure: DefaultBeatsPerMeasure}
}

// ReadProject parses a project from its serialized form, accepting both
// the JSON and the YAML encodings.
func ReadProject(data []byte) (Project, error) {
	var project Project
	errJSON := json.Unmarshal(data, &project)
	if errJSON == nil {
		return project, nil
	}
	errYaml := yaml.Unmarshal(data, &project)
	if errYaml == nil {
		return project, nil
	}
	return Project{}, fmt.Errorf("the project could not be parsed as json (%w) or yaml (%w)", errJSON, errYaml)
}

// Write returns the project serialized as YAML.
func (p Project) Write() ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling project failed: %w", err)
	}
	return data, nil
}

// eventEnvelope is the serialized form of a TrackEvent: exactly one of
// its fields is set, naming the concrete type.
type eventEnvelope struct {
	Note            *Note            `yaml:"note,omitempty" json:"note,omitempty"`
	NoteOn          *NoteOn          `yaml:"noteOn,omitempty" json:"noteOn,omitempty"`
	NoteOff         *NoteOff         `yaml:"noteOff,omitempty" json:"noteOff,omitempty"`
	Controller      *Controller      `yaml:"controller,omitempty" json:"controller,omitempty"`
	PitchBend       *PitchBend       `yaml:"pitchBend,omitempty" json:"pitchBend,omitempty"`
	NoteExpression  *NoteExpression  `yaml:"noteExpression,omitempty" json:"noteExpression,omitempty"`
	PluginParameter *PluginParameter `yaml:"pluginParameter,omitempty" json:"pluginParameter,omitempty"`
	SampleRef       *SampleRef       `yaml:"sampleRef,omitempty" json:"sampleRef,omitempty"`
	Measure         *Measure         `yaml:"measure,omitempty" json:"measure,omitempty"`
}

func wrapEvent(event TrackEvent) (eventEnvelope, error) {
	var env eventEnvelope
	switch e := event.(type) {
	case *Note:
		env.Note = e
	case *NoteOn:
		env.NoteOn = e
	case *NoteOff:
		env.NoteOff = e
	case *Controller:
		env.Controller = e
	case *PitchBend:
		env.PitchBend = e
	case *NoteExpression:
		env.NoteExpression = e
	case *PluginParameter:
		env.PluginParameter = e
	case *SampleRef:
		env.SampleRef = e
	case *Measure:
		env.Measure = e
	default:
		return env, fmt.Errorf("unserializable event type %T", event)
	}
	return env, nil
}

func (env eventEnvelope) unwrap() (TrackEvent, error) {
	switch {
	case env.Note != nil:
		return env.Note, nil
	case env.NoteOn != nil:
		return env.NoteOn, nil
	case env.NoteOff != nil:
		return env.NoteOff, nil
	case env.Controller != nil:
		return env.Controller, nil
	case env.PitchBend != nil:
		return env.PitchBend, nil
	case env.NoteExpression != nil:
		return env.NoteExpression, nil
	case env.PluginParameter != nil:
		return env.PluginParameter, nil
	case env.SampleRef != nil:
		return env.SampleRef, nil
	case env.Measure != nil:
		return env.Measure, nil
	}
	return nil, errors.New("event envelope names no event type")
}

func (l EventList) wrap() ([]eventEnvelope, error) {
	envs := make([]eventEnvelope, len(l))
	for i, e := range l {
		env, err := wrapEvent(e)
		if err != nil {
			return nil, err
		}
		envs[i] = env
	}
	return envs, nil
}

func unwrapEvents(envs []eventEnvelope) (EventList, error) {
	if envs == nil {
		return nil, nil
	}
	events := make(EventList, len(envs))
	for i, env := range envs {
		e, err := env.unwrap()
		if err != nil {
			return nil, err
		}
		events[i] = e
	}
	return events, nil
}

func (l EventList) MarshalYAML() (any, error) {
	return l.wrap()
}

func (l *EventList) UnmarshalYAML(value *yaml.Node) error {
	var envs []eventEnvelope
	if err := value.Decode(&envs); err != nil {
		return err
	}
	events, err := unwrapEvents(envs)
	if err != nil {
		return err
	}
	*l = events
	return nil
}

func (l EventList) MarshalJSON() ([]byte, error) {
	envs, err := l.wrap()
	if err != nil {
		return nil, err
	}
	return json.Marshal(envs)
}

func (l *EventList) UnmarshalJSON(data []byte) error {
	var envs []eventEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	events, err := unwrapEvents(envs)
	if err != nil {
		return err
	}
	*l = events
	return nil
}

// envelopeAlias mirrors AutomationEnvelope with the interface-typed
// target replaced by its serialized envelope form.
type envelopeAlias struct {
	ID     string          `yaml:"id" json:"id"`
	Target eventEnvelope   `yaml:"target" json:"target"`
	Points []EnvelopePoint `yaml:"points" json:"points"`
}

func (e AutomationEnvelope) alias() (envelopeAlias, error) {
	a := envelopeAlias{ID: e.ID, Points: e.Points}
	if e.Target != nil {
		env, err := wrapEvent(e.Target)
		if err != nil {
			return a, err
		}
		a.Target = env
	}
	return a, nil
}

func (e *AutomationEnvelope) fromAlias(a envelopeAlias) error {
	e.ID = a.ID
	e.Points = a.Points
	target, err := a.Target.unwrap()
	if err != nil {
		return fmt.Errorf("envelope %v: %w", a.ID, err)
	}
	valued, ok := target.(ValuedEvent)
	if !ok {
		return fmt.Errorf("envelope %v: target %T carries no value", a.ID, target)
	}
	e.Target = valued
	return nil
}

func (e AutomationEnvelope) MarshalYAML() (any, error) {
	return e.alias()
}

func (e *AutomationEnvelope) UnmarshalYAML(value *yaml.Node) error {
	var a envelopeAlias
	if err := value.Decode(&a); err != nil {
		return err
	}
	return e.fromAlias(a)
}

func (e AutomationEnvelope) MarshalJSON() ([]byte, error) {
	a, err := e.alias()
	if err != nil {
		return nil, err
	}
	return json.Marshal(a)
}

func (e *AutomationEnvelope) UnmarshalJSON(data []byte) error {
	var a envelopeAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	return e.fromAlias(a)
}
