package midi

import (
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/velling/riffline/engine"
)

func newTestContext() (*Context, *engine.Broker) {
	broker := engine.NewBroker()
	return &Context{broker: broker, timeInfo: &engine.TimeInfo{}}, broker
}

func TestControlInputForwardsTransportAndControllers(t *testing.T) {
	c, broker := newTestContext()

	c.handleControlMessage(gomidi.Message{0xF0, 0x7F, 0x07, 0x06, MMCStop, 0xF7}, 0)
	msg, ok := engine.TryRecv(broker.ToModel)
	if !ok {
		t.Fatal("an MMC frame was not forwarded")
	}
	mmc, ok := msg.Data.(*engine.MMCEvent)
	if !ok || mmc.DeviceID != 0x07 || mmc.Command != MMCStop {
		t.Fatalf("MMC frame forwarded as %#v", msg.Data)
	}

	for _, data := range [][3]byte{
		{0xB0, 7, 100},  // controller
		{0x90, 60, 100}, // note on
		{0x80, 60, 0},   // note off
	} {
		c.handleControlMessage(gomidi.Message(data[:]), 0)
		msg, ok := engine.TryRecv(broker.ToModel)
		if !ok {
			t.Fatalf("control message % X was not forwarded", data)
		}
		event, ok := msg.Data.(*engine.MidiControlEvent)
		if !ok || event.Data != data {
			t.Fatalf("control message % X forwarded as %#v", data, msg.Data)
		}
	}
}

func TestControlInputDropsUnrecognizedKinds(t *testing.T) {
	c, broker := newTestContext()
	for _, data := range [][]byte{
		{0xE0, 0x00, 0x40},       // pitch bend
		{0xA0, 60, 64},           // polyphonic pressure
		{0xD0, 64, 0},            // channel pressure
		{0xC0, 5, 0},             // program change
		{0xB0, 7},                // short controller
		{0xF0, 0x7F, 0x07, 0xF7}, // malformed sysex
	} {
		c.handleControlMessage(gomidi.Message(data), 0)
		if msg, ok := engine.TryRecv(broker.ToModel); ok {
			t.Fatalf("control message % X was forwarded as %#v, expected a drop", data, msg.Data)
		}
	}
}
