package riffline

import "math"

// DefaultBeatsPerMeasure is the meter assumed by ConvertToEventBlocks
// when placing Measure markers.
const DefaultBeatsPerMeasure = 4.0

// ConvertToEventBlocks compiles a track's arrangement into a playable
// schedule: riff references are expanded against the riff pool, notes are
// split into NoteOn/NoteOff pairs, Measure markers are laid at bar
// boundaries, automation is folded in either as discrete events or by
// resampling envelopes, and everything is converted from beats to sample
// frames and sliced into blockSize-frame blocks with block-relative
// positions. The first return value is the per-block event schedule, the
// second the per-block plugin parameter schedule. Both are indexed by
// block number; a block with nothing in it is a nil slice.
func ConvertToEventBlocks(automation *Automation, riffs []Riff, riffRefs []RiffReference, bpm, sampleRate float64, blockSize int, passageBeats float64, automationDiscrete bool) ([][]TrackEvent, [][]PluginParameter) {
	return ConvertToEventBlocksWithMeter(automation, riffs, riffRefs, bpm, sampleRate, blockSize, passageBeats, automationDiscrete, DefaultBeatsPerMeasure)
}

// ConvertToEventBlocksWithMeter is ConvertToEventBlocks with an explicit
// meter (beats per measure) for the Measure markers.
func ConvertToEventBlocksWithMeter(automation *Automation, riffs []Riff, riffRefs []RiffReference, bpm, sampleRate float64, blockSize int, passageBeats float64, automationDiscrete bool, beatsPerMeasure float64) ([][]TrackEvent, [][]PluginParameter) {
	events := ExtractRiffRefEvents(riffs, riffRefs, bpm, sampleRate, beatsPerMeasure)
	var params []PluginParameter
	if automation != nil {
		var autoEvents []TrackEvent
		if automationDiscrete {
			autoEvents, params = ConvertAutomationEvents(automation.Events, bpm, sampleRate)
		} else {
			autoEvents, params = ConvertAutomationEnvelopes(automation.Envelopes, bpm, sampleRate, blockSize, passageBeats)
		}
		events = append(events, autoEvents...)
	}
	SortTrackEvents(events)
	SortPluginParameters(params)
	passageFrames := BeatsToFrames(passageBeats, bpm, sampleRate)
	eventBlocks := sliceEventBlocks(events, blockSize, passageFrames)
	paramBlocks := sliceParameterBlocks(params, blockSize, passageFrames)
	return eventBlocks, paramBlocks
}

// ExtractRiffRefEvents expands riff references against the riff pool into
// a flat list of events with positions in absolute sample frames. Notes
// are split into NoteOn/NoteOff pairs sharing a NoteID, Measure markers
// are emitted at every bar boundary inside each reference, and all other
// riff events are translated by the reference position. References whose
// riff is not in the pool are skipped. Start/End mode references gate
// their notes through a state machine keyed on the riff-start-note flag;
// non-note events always pass.
func ExtractRiffRefEvents(riffs []Riff, riffRefs []RiffReference, bpm, sampleRate, beatsPerMeasure float64) []TrackEvent {
	var events []TrackEvent
	noteID := 0
	for _, ref := range riffRefs {
		riff, ok := findRiff(riffs, ref.LinkedTo)
		if !ok {
			continue
		}
		for m := 0; m < int(riff.Length/beatsPerMeasure); m++ {
			pos := ref.Pos + float64(m+1)*beatsPerMeasure
			events = append(events, &Measure{Pos: BeatsToFrames(pos, bpm, sampleRate)})
		}
		gate := newNoteGate(ref.Mode)
		for _, event := range riff.Events {
			switch e := event.(type) {
			case *Note:
				if !gate.admit(e) {
					continue
				}
				on := BeatsToFrames(ref.Pos+e.Pos, bpm, sampleRate)
				off := BeatsToFrames(ref.Pos+e.Pos+e.Length, bpm, sampleRate)
				events = append(events,
					&NoteOn{NoteID: noteID, Pos: on, Key: e.Key, Velocity: e.Velocity},
					&NoteOff{NoteID: noteID, Pos: off, Key: e.Key, Velocity: e.Velocity},
				)
				noteID++
			case *Measure:
				// bar boundaries are regenerated from the riff length
			default:
				c := event.Copy()
				c.SetPosition(BeatsToFrames(ref.Pos+event.Position(), bpm, sampleRate))
				events = append(events, c)
			}
		}
	}
	return events
}

// noteGate implements the Start/End riff reference modes as a state
// machine over a reference's notes, in event order. In Start mode the
// gate opens at the first riff-start note and stays open; in End mode it
// starts open and closes at the first riff-start note.
type noteGate struct {
	mode RiffReferenceMode
	open bool
}

func newNoteGate(mode RiffReferenceMode) noteGate {
	return noteGate{mode: mode, open: mode != RiffReferenceModeStart}
}

func (g *noteGate) admit(n *Note) bool {
	switch g.mode {
	case RiffReferenceModeStart:
		if !g.open && n.RiffStartNote {
			g.open = true
		}
	case RiffReferenceModeEnd:
		if g.open && n.RiffStartNote {
			g.open = false
		}
	}
	return g.open
}

// ConvertAutomationEvents converts a track's discrete automation events
// from beats to frames, splitting plugin parameter changes from the MIDI
// ones. Events of other types are dropped.
func ConvertAutomationEvents(events EventList, bpm, sampleRate float64) ([]TrackEvent, []PluginParameter) {
	var out []TrackEvent
	var params []PluginParameter
	for _, event := range events {
		switch e := event.(type) {
		case *PluginParameter:
			p := *e
			p.Pos = BeatsToFrames(e.Pos, bpm, sampleRate)
			params = append(params, p)
		case *Controller, *PitchBend, *NoteExpression:
			c := event.Copy()
			c.SetPosition(BeatsToFrames(event.Position(), bpm, sampleRate))
			out = append(out, c)
		}
	}
	return out, params
}

// ConvertAutomationEnvelopes resamples stepwise-linear envelopes onto the
// block grid: one value per block boundary, linearly interpolated between
// the bracketing breakpoints, held flat after the last breakpoint, and
// nothing before the first one. The stamped events are clones of each
// envelope's target template.
func ConvertAutomationEnvelopes(envelopes []AutomationEnvelope, bpm, sampleRate float64, blockSize int, passageBeats float64) ([]TrackEvent, []PluginParameter) {
	var out []TrackEvent
	var params []PluginParameter
	passageFrames := BeatsToFrames(passageBeats, bpm, sampleRate)
	for _, env := range envelopes {
		if env.Target == nil || len(env.Points) == 0 {
			continue
		}
		points := make([]EnvelopePoint, len(env.Points))
		for i, p := range env.Points {
			points[i] = EnvelopePoint{Position: BeatsToFrames(p.Position, bpm, sampleRate), Value: p.Value}
		}
		for position := 0.0; position < passageFrames; position += float64(blockSize) {
			value, ok := envelopeValueAt(points, position)
			if !ok {
				continue
			}
			stamped := env.Target.Copy().(ValuedEvent)
			stamped.SetPosition(position)
			stamped.SetValue(value)
			if p, isParam := stamped.(*PluginParameter); isParam {
				params = append(params, *p)
			} else {
				out = append(out, stamped)
			}
		}
	}
	return out, params
}

// envelopeValueAt evaluates the envelope at position. points must be
// sorted by position and hold frame positions. The second return value
// is false when position lies before the first breakpoint.
func envelopeValueAt(points []EnvelopePoint, position float64) (float64, bool) {
	var before, after *EnvelopePoint
	for i := range points {
		if position > points[i].Position {
			before = &points[i]
		} else {
			after = &points[i]
			break
		}
	}
	switch {
	case before != nil && after != nil:
		slope := (after.Value - before.Value) / (after.Position - before.Position)
		return before.Value + slope*(position-before.Position), true
	case before != nil:
		return before.Value, true
	default:
		return 0, false
	}
}

// sliceEventBlocks cuts a sorted event stream into consecutive blocks of
// blockSize frames, rewriting positions to be relative to the block
// start. Slicing stops as soon as the stream is exhausted, so trailing
// blocks of a long passage stay nil.
func sliceEventBlocks(events []TrackEvent, blockSize int, passageFrames float64) [][]TrackEvent {
	nBlocks := blockCount(blockSize, passageFrames)
	blocks := make([][]TrackEvent, nBlocks)
	i := 0
	for block := 0; block < nBlocks && i < len(events); block++ {
		start := float64(block * blockSize)
		end := start + float64(blockSize)
		for i < len(events) && events[i].Position() < end {
			if events[i].Position() >= start {
				e := events[i].Copy()
				e.SetPosition(e.Position() - start)
				blocks[block] = append(blocks[block], e)
			}
			i++
		}
	}
	return blocks
}

func sliceParameterBlocks(params []PluginParameter, blockSize int, passageFrames float64) [][]PluginParameter {
	nBlocks := blockCount(blockSize, passageFrames)
	blocks := make([][]PluginParameter, nBlocks)
	i := 0
	for block := 0; block < nBlocks && i < len(params); block++ {
		start := float64(block * blockSize)
		end := start + float64(blockSize)
		for i < len(params) && params[i].Pos < end {
			if params[i].Pos >= start {
				p := params[i]
				p.Pos -= start
				blocks[block] = append(blocks[block], p)
			}
			i++
		}
	}
	return blocks
}

// blockCount is the number of blockSize-frame windows needed to cover
// the passage; a trailing partial window still counts, but no padding
// block is added beyond the passage end.
func blockCount(blockSize int, passageFrames float64) int {
	return int(math.Ceil(passageFrames / float64(blockSize)))
}

func findRiff(riffs []Riff, id string) (*Riff, bool) {
	for i := range riffs {
		if riffs[i].ID == id {
			return &riffs[i], true
		}
	}
	return nil, false
}
