package engine_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/velling/riffline"
	"github.com/velling/riffline/engine"
)

const testBlockSize = 8

func newTestEngine() (*engine.Engine, *engine.Broker, *engine.ModeFlag) {
	broker := engine.NewBroker()
	mode := &engine.ModeFlag{}
	e := engine.NewEngine(broker, &engine.TimeInfo{}, mode, 44100, testBlockSize)
	return e, broker, mode
}

// flush runs enough callbacks for the throttled command drain to pick up
// pending messages, returning the buffer of the last callback.
func flush(t *testing.T, e *engine.Engine) riffline.AudioBuffer {
	t.Helper()
	var buf riffline.AudioBuffer
	for i := 0; i < 5; i++ {
		buf = make(riffline.AudioBuffer, testBlockSize)
		if err := e.Process(buf); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	return buf
}

func fillRing(r *engine.Ring[float32], value float32, n int) {
	for i := 0; i < n; i++ {
		r.TryWrite(value)
	}
}

func TestEngineMixesRegisteredConsumer(t *testing.T) {
	e, broker, _ := newTestEngine()
	consumer := engine.NewAudioConsumer("t1", 64)
	fillRing(consumer.Left, 0.5, testBlockSize)
	fillRing(consumer.Right, -0.25, testBlockSize)
	broker.ToEngine <- engine.NewAudioConsumerMsg{Consumer: consumer}

	buf := flush(t, e)
	expectedLeft := 0.5 * 2 * math.Sqrt2 / 2
	expectedRight := -0.25 * 2 * math.Sqrt2 / 2
	for i, frame := range buf {
		if math.Abs(float64(frame[0])-expectedLeft) > 1e-6 {
			t.Fatalf("left sample %d was %v, expected %v", i, frame[0], expectedLeft)
		}
		if math.Abs(float64(frame[1])-expectedRight) > 1e-6 {
			t.Fatalf("right sample %d was %v, expected %v", i, frame[1], expectedRight)
		}
	}
}

func TestEngineSumsConsumers(t *testing.T) {
	e, broker, _ := newTestEngine()
	for _, id := range []string{"t1", "t2"} {
		consumer := engine.NewAudioConsumer(id, 64)
		fillRing(consumer.Left, 0.25, testBlockSize)
		fillRing(consumer.Right, 0.25, testBlockSize)
		broker.ToEngine <- engine.NewAudioConsumerMsg{Consumer: consumer}
	}
	buf := flush(t, e)
	expected := 0.5 * 2 * math.Sqrt2 / 2
	if math.Abs(float64(buf[0][0])-expected) > 1e-6 {
		t.Errorf("two consumers summed to %v, expected %v", buf[0][0], expected)
	}
}

func TestEngineMasterVolumeAndPan(t *testing.T) {
	e, broker, _ := newTestEngine()
	consumer := engine.NewAudioConsumer("t1", 256)
	broker.ToEngine <- engine.NewAudioConsumerMsg{Consumer: consumer}
	broker.ToEngine <- engine.MasterVolumeMsg{Volume: 0.5}
	broker.ToEngine <- engine.MasterPanMsg{Pan: -1}
	flush(t, e)

	fillRing(consumer.Left, 1, testBlockSize)
	fillRing(consumer.Right, 1, testBlockSize)
	buf := make(riffline.AudioBuffer, testBlockSize)
	if err := e.Process(buf); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	// volume 0.5 with hard left pan: left gain 0.5*2*1, right gain 0
	if math.Abs(float64(buf[0][0])-1) > 1e-6 {
		t.Errorf("left sample was %v, expected 1", buf[0][0])
	}
	if math.Abs(float64(buf[0][1])) > 1e-6 {
		t.Errorf("right sample was %v, expected 0", buf[0][1])
	}
}

func TestEngineCoastSkipsMixing(t *testing.T) {
	e, broker, mode := newTestEngine()
	consumer := engine.NewAudioConsumer("t1", 64)
	broker.ToEngine <- engine.NewAudioConsumerMsg{Consumer: consumer}
	flush(t, e)

	fillRing(consumer.Left, 0.5, testBlockSize)
	mode.Set(engine.ModeCoast)
	buf := make(riffline.AudioBuffer, testBlockSize)
	if err := e.Process(buf); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	for i, frame := range buf {
		if frame[0] != 0 || frame[1] != 0 {
			t.Fatalf("frame %d was %v while coasting, expected silence", i, frame)
		}
	}
	if consumer.Left.Len() != testBlockSize {
		t.Errorf("coasting drained the ring to %d samples, expected %d left", consumer.Left.Len(), testBlockSize)
	}
}

func TestEngineNonBlockingWithFullChannels(t *testing.T) {
	e, broker, _ := newTestEngine()
	for engine.TrySend(broker.ToModel, engine.MsgToModel{}) {
	}
	for engine.TrySend[any](broker.ToEngine, struct{}{}) {
	}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			buf := make(riffline.AudioBuffer, testBlockSize)
			e.Process(buf)
		}
		close(done)
	}()
	if _, ok := engine.TimeoutReceive(done, 3*time.Second); !ok {
		t.Fatal("callbacks did not complete with full channels")
	}
}

func drainPositions(broker *engine.Broker) []uint32 {
	var positions []uint32
	for {
		msg, ok := engine.TryRecv(broker.ToModel)
		if !ok {
			return positions
		}
		if msg.HasPlayPosition {
			positions = append(positions, msg.PlayPositionFrames)
		}
	}
}

func TestEngineTransportWraps(t *testing.T) {
	e, broker, _ := newTestEngine()
	broker.ToEngine <- engine.PlayMsg{Restart: true, BlocksTotal: 3, StartBlock: 0}
	flush(t, e)

	var positions []float64
	for i := 0; i < 6; i++ {
		buf := make(riffline.AudioBuffer, testBlockSize)
		if err := e.Process(buf); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		positions = append(positions, e.TimeInfo().Snapshot().SamplePos)
	}
	// the flush left the transport at block 1, so the next six callbacks
	// cycle 16, 0, 8, 16, 0, 8
	expected := []float64{16, 0, 8, 16, 0, 8}
	for i, pos := range positions {
		if pos != expected[i] {
			t.Fatalf("positions after flush were %v, expected %v", positions, expected)
		}
	}
	wrapped := false
	for _, p := range drainPositions(broker) {
		if p == 0 {
			wrapped = true
		}
	}
	if !wrapped {
		t.Error("no play position report was emitted at the wrap")
	}
}

func TestEngineStopDecaysTransportFlags(t *testing.T) {
	e, broker, _ := newTestEngine()
	broker.ToEngine <- engine.PlayMsg{Restart: true, BlocksTotal: 100, StartBlock: 0}
	flush(t, e)
	if !e.TimeInfo().Snapshot().Playing {
		t.Fatal("the transport is not playing after PlayMsg")
	}
	broker.ToEngine <- engine.StopMsg{}
	flush(t, e)
	s := e.TimeInfo().Snapshot()
	if s.Playing {
		t.Fatal("the transport still reports playing after StopMsg")
	}
	if !s.TransportChanged {
		t.Error("stopping did not mark the transport as changed")
	}

	// the next callback lowers the changed flag again
	if err := e.Process(make(riffline.AudioBuffer, testBlockSize)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	s = e.TimeInfo().Snapshot()
	if s.TransportChanged {
		t.Error("the transport-changed flag did not decay on the following callback")
	}
	if s.Playing {
		t.Error("decaying the changed flag resurrected the playing flag")
	}

	for i := 0; i < 100; i++ {
		e.Process(make(riffline.AudioBuffer, testBlockSize))
	}
	s = e.TimeInfo().Snapshot()
	if s.Playing || s.TransportChanged {
		t.Errorf("transport flags crept back while stopped: %+v", s)
	}
}

type recordingPort struct {
	sent [][3]byte
}

func (p *recordingPort) Send(data [3]byte) error {
	p.sent = append(p.sent, data)
	return nil
}

func (p *recordingPort) Close() error { return nil }

func TestEngineMidiEgressStopsAtSentinel(t *testing.T) {
	e, broker, _ := newTestEngine()
	port := &recordingPort{}
	consumer := engine.NewMidiConsumer("t1", 64)
	consumer.Port = port
	consumer.Events.TryWrite(engine.MidiSlot{Frame: 0, Data: [3]byte{0x90, 60, 100}, Active: true})
	consumer.Events.TryWrite(engine.MidiSlot{Frame: 4, Data: [3]byte{0x80, 60, 0}, Active: true})
	consumer.Events.TryWrite(engine.MidiSlot{Active: false})
	consumer.Events.TryWrite(engine.MidiSlot{Frame: 0, Data: [3]byte{0x90, 62, 100}, Active: true})
	broker.ToEngine <- engine.NewMidiConsumerMsg{Consumer: consumer}

	flush(t, e)
	if len(port.sent) != 2 {
		t.Fatalf("the port received %d events before the sentinel, expected 2", len(port.sent))
	}
	if port.sent[0] != [3]byte{0x90, 60, 100} || port.sent[1] != [3]byte{0x80, 60, 0} {
		t.Errorf("unexpected events %v", port.sent)
	}
	if consumer.Events.Len() != 1 {
		t.Errorf("%d slots remained after the sentinel, expected 1", consumer.Events.Len())
	}
}

func TestEnginePreviewSample(t *testing.T) {
	e, broker, _ := newTestEngine()
	samples := make([]float32, 2*testBlockSize)
	for i := range samples {
		samples[i] = 0.5
	}
	sample := &riffline.SampleData{NumChannels: 1, SampleRate: 44100, Samples: samples}
	broker.ToEngine <- engine.PreviewSampleMsg{Sample: sample}

	buf := flush(t, e)
	expected := 0.5 * 2 * math.Sqrt2 / 2
	if math.Abs(float64(buf[0][0])-expected) > 1e-6 || math.Abs(float64(buf[0][1])-expected) > 1e-6 {
		t.Fatalf("preview frame was %v, expected both channels near %v", buf[0], expected)
	}

	// second block still plays, third is past the end of the sample
	buf = make(riffline.AudioBuffer, testBlockSize)
	e.Process(buf)
	if buf[0][0] == 0 {
		t.Error("the second preview block was silent")
	}
	buf = make(riffline.AudioBuffer, testBlockSize)
	e.Process(buf)
	if buf[0][0] != 0 {
		t.Error("an exhausted preview sample still contributed audio")
	}
}

func TestEngineRemoveTrack(t *testing.T) {
	e, broker, _ := newTestEngine()
	consumer := engine.NewAudioConsumer("t1", 256)
	broker.ToEngine <- engine.NewAudioConsumerMsg{Consumer: consumer}
	flush(t, e)
	broker.ToEngine <- engine.RemoveTrackMsg{TrackID: "t1"}
	flush(t, e)

	fillRing(consumer.Left, 0.5, testBlockSize)
	buf := make(riffline.AudioBuffer, testBlockSize)
	e.Process(buf)
	if buf[0][0] != 0 {
		t.Error("a removed track still contributed audio")
	}
}

func TestEngineZeroesOversizedBuffer(t *testing.T) {
	e, _, _ := newTestEngine()
	buf := make(riffline.AudioBuffer, engine.MaxBlockSize+testBlockSize)
	for i := range buf {
		buf[i] = [2]float32{0.77, 0.77}
	}
	if err := e.Process(buf); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	for i, frame := range buf {
		if frame[0] != 0 || frame[1] != 0 {
			t.Fatalf("frame %d was %v after processing silence, expected zero", i, frame)
		}
	}
}

func TestEngineShutdown(t *testing.T) {
	e, broker, _ := newTestEngine()
	broker.ToEngine <- engine.ShutdownMsg{}
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = e.Process(make(riffline.AudioBuffer, testBlockSize))
	}
	if !errors.Is(err, engine.ErrShutdown) {
		t.Fatalf("Process returned %v, expected ErrShutdown", err)
	}
}

func TestEngineCloseHandshake(t *testing.T) {
	e, broker, _ := newTestEngine()
	close(broker.CloseEngine)
	err := e.Process(make(riffline.AudioBuffer, testBlockSize))
	if !errors.Is(err, engine.ErrShutdown) {
		t.Fatalf("Process returned %v after CloseEngine, expected ErrShutdown", err)
	}
	select {
	case <-broker.FinishedEngine:
	default:
		t.Fatal("the engine did not acknowledge the shutdown on FinishedEngine")
	}
	if err := e.Process(make(riffline.AudioBuffer, testBlockSize)); !errors.Is(err, engine.ErrShutdown) {
		t.Fatalf("Process returned %v on a later callback, expected ErrShutdown", err)
	}
}

func TestEngineLevelsReported(t *testing.T) {
	e, broker, _ := newTestEngine()
	consumer := engine.NewAudioConsumer("t1", 64)
	fillRing(consumer.Left, 0.5, testBlockSize)
	fillRing(consumer.Right, 0.25, testBlockSize)
	broker.ToEngine <- engine.NewAudioConsumerMsg{Consumer: consumer}
	flush(t, e)

	var lastLevels *engine.MsgToModel
	for {
		msg, ok := engine.TryRecv(broker.ToModel)
		if !ok {
			break
		}
		if msg.HasLevels && msg.LevelLeft > 0 {
			m := msg
			lastLevels = &m
		}
	}
	if lastLevels == nil {
		t.Fatal("no channel levels were reported")
	}
	expectedLeft := 0.5 * 2 * math.Sqrt2 / 2
	if math.Abs(float64(lastLevels.LevelLeft)-expectedLeft) > 1e-6 {
		t.Errorf("left level was %v, expected %v", lastLevels.LevelLeft, expectedLeft)
	}
	if lastLevels.LevelRight >= lastLevels.LevelLeft {
		t.Errorf("right level %v should be below left %v", lastLevels.LevelRight, lastLevels.LevelLeft)
	}
}
