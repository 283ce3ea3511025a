package midi

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/velling/riffline/engine"
)

type (
	// Context owns the rtmidi driver and the open ports. All event
	// handlers run on the driver's own threads; everything they forward
	// goes through the broker with non-blocking sends.
	Context struct {
		broker   *engine.Broker
		timeInfo *engine.TimeInfo

		driver             *rtmididrv.Driver
		performanceIn      drivers.In
		controlIn          drivers.In
		inputDevices       []Device
		devicesInitialized bool
	}

	// Device is one enumerated MIDI input.
	Device struct {
		context *Context
		in      drivers.In
	}

	// OutPort wraps a hardware output as an engine.MidiOutPort.
	OutPort struct {
		out drivers.Out
	}
)

// NewContext opens the rtmidi driver. A nil driver (no MIDI subsystem on
// the host) is not an error; the context then enumerates no devices.
func NewContext(broker *engine.Broker, timeInfo *engine.TimeInfo) *Context {
	c := &Context{broker: broker, timeInfo: timeInfo}
	c.driver, _ = rtmididrv.New()
	return c
}

func (c *Context) Close() {
	if c.driver == nil {
		return
	}
	if c.performanceIn != nil && c.performanceIn.IsOpen() {
		c.performanceIn.Close()
	}
	if c.controlIn != nil && c.controlIn.IsOpen() {
		c.controlIn.Close()
	}
	c.driver.Close()
}

// InputDevices iterates over the available MIDI inputs.
func (c *Context) InputDevices(yield func(Device) bool) {
	if !c.devicesInitialized {
		c.initInputDevices()
	}
	for _, device := range c.inputDevices {
		if !yield(device) {
			break
		}
	}
}

func (c *Context) initInputDevices() {
	if c.driver == nil {
		return
	}
	ins, err := c.driver.Ins()
	if err != nil {
		return
	}
	for _, in := range ins {
		c.inputDevices = append(c.inputDevices, Device{context: c, in: in})
	}
	c.devicesInitialized = true
}

func (d Device) String() string {
	return d.in.String()
}

// OpenPerformanceInput opens the first input whose name starts with
// namePrefix (any input if the prefix is empty) and routes its events to
// the controller thread as classified MidiEvents.
func (c *Context) OpenPerformanceInput(namePrefix string) error {
	in, err := c.findInput(namePrefix)
	if err != nil {
		return err
	}
	if err := in.Open(); err != nil {
		return fmt.Errorf("opening MIDI input %v failed: %w", in, err)
	}
	if _, err := midi.ListenTo(in, c.handlePerformanceMessage); err != nil {
		in.Close()
		return fmt.Errorf("listening to MIDI input %v failed: %w", in, err)
	}
	c.performanceIn = in
	return nil
}

// OpenControlInput opens a second input for a control surface. Besides
// ordinary channel messages it recognizes MMC transport SysEx frames.
func (c *Context) OpenControlInput(namePrefix string) error {
	in, err := c.findInput(namePrefix)
	if err != nil {
		return err
	}
	if err := in.Open(); err != nil {
		return fmt.Errorf("opening MIDI control input %v failed: %w", in, err)
	}
	if _, err := midi.ListenTo(in, c.handleControlMessage, midi.UseSysEx()); err != nil {
		in.Close()
		return fmt.Errorf("listening to MIDI control input %v failed: %w", in, err)
	}
	c.controlIn = in
	return nil
}

func (c *Context) findInput(namePrefix string) (drivers.In, error) {
	if c.driver == nil {
		return nil, errors.New("no MIDI driver available")
	}
	if !c.devicesInitialized {
		c.initInputDevices()
	}
	for _, device := range c.inputDevices {
		if strings.HasPrefix(device.in.String(), namePrefix) {
			return device.in, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input starting with %q", namePrefix)
}

// OpenOutPort opens the first output whose name starts with namePrefix
// and returns it wrapped for the engine.
func (c *Context) OpenOutPort(namePrefix string) (engine.MidiOutPort, error) {
	if c.driver == nil {
		return nil, errors.New("no MIDI driver available")
	}
	outs, err := c.driver.Outs()
	if err != nil {
		return nil, fmt.Errorf("enumerating MIDI outputs failed: %w", err)
	}
	for _, out := range outs {
		if strings.HasPrefix(out.String(), namePrefix) {
			if err := out.Open(); err != nil {
				return nil, fmt.Errorf("opening MIDI output %v failed: %w", out, err)
			}
			return &OutPort{out: out}, nil
		}
	}
	return nil, fmt.Errorf("no MIDI output starting with %q", namePrefix)
}

func (p *OutPort) Send(data [3]byte) error {
	return p.out.Send(data[:])
}

func (p *OutPort) Close() error {
	return p.out.Close()
}

// handlePerformanceMessage classifies a live event, stamps it with the
// transport's current frame position (zero when stopped) and forwards it
// non-blockingly; a full channel drops the event.
func (c *Context) handlePerformanceMessage(msg midi.Message, timestampms int32) {
	if len(msg) == 0 {
		return
	}
	kind, ok := Classify(msg[0])
	if !ok {
		return
	}
	event := &engine.MidiEvent{Kind: kind}
	copy(event.Data[:], msg)
	if s := c.timeInfo.Snapshot(); s.Playing {
		event.DeltaFrame = uint32(s.SamplePos)
	}
	engine.TrySend(c.broker.ToModel, engine.MsgToModel{Data: event})
}

// handleControlMessage handles the control-surface input: MMC SysEx
// frames become MMCEvents, and 3-byte note-on, note-off and controller
// messages become MidiControlEvents. Anything else on this port,
// including pitch bends and pressure, is logged and dropped.
func (c *Context) handleControlMessage(msg midi.Message, timestampms int32) {
	if deviceID, command, ok := ParseMMC(msg); ok {
		engine.TrySend(c.broker.ToModel, engine.MsgToModel{Data: &engine.MMCEvent{DeviceID: deviceID, Command: command}})
		return
	}
	if len(msg) == 3 {
		switch kind, ok := Classify(msg[0]); {
		case ok && (kind == engine.MidiEventNoteOn || kind == engine.MidiEventNoteOff || kind == engine.MidiEventController):
			event := &engine.MidiControlEvent{}
			copy(event.Data[:], msg)
			engine.TrySend(c.broker.ToModel, engine.MsgToModel{Data: event})
			return
		}
	}
	log.Printf("unrecognized MIDI control message: % X", []byte(msg))
}
