package riffline_test

import (
	"math"
	"testing"

	"github.com/velling/riffline"
)

func keysOf(events []riffline.TrackEvent) []int {
	var keys []int
	for _, e := range events {
		switch n := e.(type) {
		case *riffline.NoteOn:
			keys = append(keys, n.Key)
		}
	}
	return keys
}

func TestExtractRiffRefEventsSplitsNotes(t *testing.T) {
	riff := riffline.NewRiff("lead", 4)
	riff.Events = riffline.EventList{
		&riffline.Note{Pos: 1, Key: 60, Velocity: 100, Length: 1},
	}
	refs := []riffline.RiffReference{riffline.NewRiffReference(riff, 0)}

	events := riffline.ExtractRiffRefEvents([]riffline.Riff{riff}, refs, 140, 44100, 4)

	var on *riffline.NoteOn
	var off *riffline.NoteOff
	measures := 0
	for _, e := range events {
		switch v := e.(type) {
		case *riffline.NoteOn:
			on = v
		case *riffline.NoteOff:
			off = v
		case *riffline.Measure:
			measures++
		}
	}
	if on == nil || off == nil {
		t.Fatal("the note was not split into a NoteOn/NoteOff pair")
	}
	if on.NoteID != off.NoteID {
		t.Errorf("NoteOn id %d does not match NoteOff id %d", on.NoteID, off.NoteID)
	}
	if math.Abs(on.Pos-18900) > 1e-9 {
		t.Errorf("NoteOn at frame %v, expected 18900", on.Pos)
	}
	if math.Abs(off.Pos-37800) > 1e-9 {
		t.Errorf("NoteOff at frame %v, expected 37800", off.Pos)
	}
	if measures != 1 {
		t.Errorf("got %d measure markers for a 4-beat riff, expected 1", measures)
	}
}

func TestExtractRiffRefEventsSkipsDanglingRefs(t *testing.T) {
	riff := riffline.NewRiff("lead", 4)
	riff.Events = riffline.EventList{&riffline.Note{Pos: 0, Key: 60, Velocity: 100, Length: 1}}
	refs := []riffline.RiffReference{
		{ID: "dangling", Pos: 0, LinkedTo: "no-such-riff"},
		riffline.NewRiffReference(riff, 8),
	}
	events := riffline.ExtractRiffRefEvents([]riffline.Riff{riff}, refs, 120, 44100, 4)
	for _, e := range events {
		if on, ok := e.(*riffline.NoteOn); ok {
			expected := riffline.BeatsToFrames(8, 120, 44100)
			if math.Abs(on.Pos-expected) > 1e-9 {
				t.Errorf("NoteOn at frame %v, expected %v", on.Pos, expected)
			}
			return
		}
	}
	t.Fatal("the valid reference produced no NoteOn")
}

func TestRiffReferenceModes(t *testing.T) {
	riff := riffline.NewRiff("intro-outro", 4)
	riff.Events = riffline.EventList{
		&riffline.Note{Pos: 0, Key: 36, Velocity: 100, Length: 1},
		&riffline.Note{Pos: 1, Key: 38, Velocity: 100, Length: 1, RiffStartNote: true},
		&riffline.Note{Pos: 2, Key: 40, Velocity: 100, Length: 1},
	}
	tests := []struct {
		name string
		mode riffline.RiffReferenceMode
		keys []int
	}{
		{"normal", riffline.RiffReferenceModeNormal, []int{36, 38, 40}},
		{"start", riffline.RiffReferenceModeStart, []int{38, 40}},
		{"end", riffline.RiffReferenceModeEnd, []int{36}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ref := riffline.NewRiffReference(riff, 0)
			ref.Mode = test.mode
			events := riffline.ExtractRiffRefEvents([]riffline.Riff{riff}, []riffline.RiffReference{ref}, 120, 44100, 4)
			keys := keysOf(events)
			if len(keys) != len(test.keys) {
				t.Fatalf("got notes %v, expected %v", keys, test.keys)
			}
			for i, k := range keys {
				if k != test.keys[i] {
					t.Fatalf("got notes %v, expected %v", keys, test.keys)
				}
			}
		})
	}
}

func TestConvertAutomationEvents(t *testing.T) {
	events := riffline.EventList{
		&riffline.Controller{Pos: 1, Number: 7, Val: 100},
		&riffline.PluginParameter{Pos: 2, Index: 3, Val: 0.5},
		&riffline.Measure{Pos: 0}, // not automatable, dropped
	}
	out, params := riffline.ConvertAutomationEvents(events, 120, 44100)
	if len(out) != 1 {
		t.Fatalf("got %d events, expected 1", len(out))
	}
	expected := riffline.BeatsToFrames(1, 120, 44100)
	if math.Abs(out[0].Position()-expected) > 1e-9 {
		t.Errorf("controller at frame %v, expected %v", out[0].Position(), expected)
	}
	if len(params) != 1 {
		t.Fatalf("got %d parameters, expected 1", len(params))
	}
	if params[0].Index != 3 || params[0].Val != 0.5 {
		t.Errorf("unexpected parameter %+v", params[0])
	}
}

func TestConvertAutomationEnvelopes(t *testing.T) {
	env := riffline.AutomationEnvelope{
		ID:     "vol",
		Target: &riffline.Controller{Number: 7},
		Points: []riffline.EnvelopePoint{
			{Position: 0, Value: 0},
			{Position: 4, Value: 127},
		},
	}
	const blockSize = 1024
	events, params := riffline.ConvertAutomationEnvelopes([]riffline.AutomationEnvelope{env}, 120, 44100, blockSize, 8)
	if len(params) != 0 {
		t.Fatalf("a controller envelope produced %d plugin parameters", len(params))
	}
	if len(events) == 0 {
		t.Fatal("the envelope produced no events")
	}
	endFrame := riffline.BeatsToFrames(4, 120, 44100)
	var lastValue float64 = -1
	for _, e := range events {
		c, ok := e.(*riffline.Controller)
		if !ok {
			t.Fatalf("envelope stamped a %T, expected *Controller", e)
		}
		if math.Mod(c.Pos, blockSize) != 0 {
			t.Errorf("stamped event at %v is not block aligned", c.Pos)
		}
		if c.Pos <= endFrame && float64(c.Val) < lastValue {
			t.Errorf("rising envelope produced falling value %d at %v", c.Val, c.Pos)
		}
		if c.Pos > endFrame && c.Val != 127 {
			t.Errorf("value after the last point was %d, expected the held 127", c.Val)
		}
		lastValue = float64(c.Val)
	}
	// the ramp spans 88200 frames and 127 steps, so the midpoint block
	// should sit near 63
	mid := events[len(events)/2].(*riffline.Controller)
	interp := mid.Pos / endFrame * 127
	if mid.Pos < endFrame && math.Abs(float64(mid.Val)-interp) > 1 {
		t.Errorf("midpoint value %d at %v, expected about %v", mid.Val, mid.Pos, interp)
	}
}

func TestConvertAutomationEnvelopesFalling(t *testing.T) {
	env := riffline.AutomationEnvelope{
		ID:     "fade",
		Target: &riffline.Controller{Number: 7},
		Points: []riffline.EnvelopePoint{
			{Position: 0, Value: 127},
			{Position: 4, Value: 0},
		},
	}
	const blockSize = 1024
	events, _ := riffline.ConvertAutomationEnvelopes([]riffline.AutomationEnvelope{env}, 120, 44100, blockSize, 8)
	if len(events) == 0 {
		t.Fatal("the envelope produced no events")
	}
	endFrame := riffline.BeatsToFrames(4, 120, 44100)
	lastValue := float64(128)
	for _, e := range events {
		c, ok := e.(*riffline.Controller)
		if !ok {
			t.Fatalf("envelope stamped a %T, expected *Controller", e)
		}
		if c.Pos <= endFrame && float64(c.Val) > lastValue {
			t.Errorf("falling envelope produced rising value %d at %v", c.Val, c.Pos)
		}
		if c.Pos > endFrame && c.Val != 0 {
			t.Errorf("value after the last point was %d, expected the held 0", c.Val)
		}
		lastValue = float64(c.Val)
	}
}

func TestConvertToEventBlocks(t *testing.T) {
	const (
		bpm        = 140.0
		sampleRate = 44100.0
		blockSize  = 1024
		passage    = 8.0
	)
	riff := riffline.NewRiff("lead", 4)
	riff.Events = riffline.EventList{
		&riffline.Note{Pos: 1, Key: 60, Velocity: 100, Length: 1},
	}
	refs := []riffline.RiffReference{riffline.NewRiffReference(riff, 0)}

	blocks, params := riffline.ConvertToEventBlocks(nil, []riffline.Riff{riff}, refs, bpm, sampleRate, blockSize, passage, true)
	if len(params) != len(blocks) {
		t.Errorf("parameter schedule has %d blocks, event schedule %d", len(params), len(blocks))
	}
	expectedBlocks := int(math.Ceil(riffline.BeatsToFrames(passage, bpm, sampleRate) / blockSize))
	if len(blocks) != expectedBlocks {
		t.Fatalf("got %d blocks, expected %d", len(blocks), expectedBlocks)
	}

	// NoteOn lands at frame 18900, i.e. block 18 at offset 468
	found := false
	for i, block := range blocks {
		for _, e := range block {
			if e.Position() < 0 || e.Position() >= blockSize {
				t.Errorf("event in block %d has out-of-block position %v", i, e.Position())
			}
			if on, ok := e.(*riffline.NoteOn); ok {
				found = true
				if i != 18 || math.Abs(on.Pos-468) > 1e-9 {
					t.Errorf("NoteOn in block %d at offset %v, expected block 18 offset 468", i, on.Pos)
				}
			}
		}
	}
	if !found {
		t.Error("the NoteOn was not scheduled in any block")
	}
}

func TestConvertToEventBlocksOffsetReference(t *testing.T) {
	riff := riffline.NewRiff("stab", 4)
	riff.Events = riffline.EventList{
		&riffline.Note{Pos: 0, Key: 60, Velocity: 100, Length: 0.2},
	}
	refs := []riffline.RiffReference{riffline.NewRiffReference(riff, 5)}
	blocks, _ := riffline.ConvertToEventBlocks(nil, []riffline.Riff{riff}, refs, 140, 44100, 1024, 16, true)

	// 5 beats at 140 BPM / 44100 Hz is 94500 frames: block 92, offset 292
	firstNonEmpty := -1
	for i, block := range blocks {
		if len(block) > 0 {
			firstNonEmpty = i
			break
		}
	}
	if firstNonEmpty != 92 {
		t.Fatalf("first non-empty block was %d, expected 92", firstNonEmpty)
	}
	on, ok := blocks[92][0].(*riffline.NoteOn)
	if !ok {
		t.Fatalf("first scheduled event was %T, expected *NoteOn", blocks[92][0])
	}
	if math.Abs(on.Pos-292) > 1e-9 {
		t.Errorf("NoteOn offset was %v, expected 292", on.Pos)
	}
}

func TestConvertToEventBlocksSlicesEverything(t *testing.T) {
	const (
		bpm        = 120.0
		sampleRate = 48000.0
		blockSize  = 512
		passage    = 16.0
	)
	riff := riffline.NewRiff("dense", 4)
	for i := 0; i < 16; i++ {
		riff.Events = append(riff.Events, &riffline.Note{
			Pos: float64(i) * 0.25, Key: 60 + i%12, Velocity: 100, Length: 0.25,
		})
	}
	refs := []riffline.RiffReference{
		riffline.NewRiffReference(riff, 0),
		riffline.NewRiffReference(riff, 4),
		riffline.NewRiffReference(riff, 8),
	}
	blocks, _ := riffline.ConvertToEventBlocks(nil, []riffline.Riff{riff}, refs, bpm, sampleRate, blockSize, passage, true)

	ons, offs, measures := 0, 0, 0
	for _, block := range blocks {
		for _, e := range block {
			switch e.(type) {
			case *riffline.NoteOn:
				ons++
			case *riffline.NoteOff:
				offs++
			case *riffline.Measure:
				measures++
			}
		}
	}
	if ons != 48 || offs != 48 {
		t.Errorf("scheduled %d NoteOns and %d NoteOffs, expected 48 of each", ons, offs)
	}
	if measures != 3 {
		t.Errorf("scheduled %d measure markers, expected 3", measures)
	}
}

func TestConvertToEventBlocksEnvelopeParams(t *testing.T) {
	automation := &riffline.Automation{
		Envelopes: []riffline.AutomationEnvelope{{
			ID:     "cutoff",
			Target: &riffline.PluginParameter{PluginID: "synth", Instrument: true, Index: 2},
			Points: []riffline.EnvelopePoint{{Position: 0, Value: 0.1}, {Position: 8, Value: 0.9}},
		}},
	}
	_, params := riffline.ConvertToEventBlocks(automation, nil, nil, 120, 44100, 1024, 8, false)
	total := 0
	for _, block := range params {
		for _, p := range block {
			total++
			if p.PluginID != "synth" || p.Index != 2 {
				t.Errorf("unexpected parameter %+v", p)
			}
			if p.Pos < 0 || p.Pos >= 1024 {
				t.Errorf("parameter has out-of-block position %v", p.Pos)
			}
		}
	}
	if total == 0 {
		t.Error("the envelope produced no scheduled parameters")
	}
}
