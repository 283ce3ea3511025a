package engine

import (
	"errors"
	"math"

	"github.com/velling/riffline"
	"github.com/viterin/vek/vek32"
)

// MaxBlockSize is the largest number of frames the engine processes per
// callback; the scratch buffers are this size and never reallocated.
const MaxBlockSize = 1024

// lowPriorityProcessingDelayCount throttles the inward command drain:
// the engine only polls its command channel every Nth callback, keeping
// the common-case callback free of channel operations.
const lowPriorityProcessingDelayCount = 5

// ErrShutdown is returned by Process after a ShutdownMsg has been
// handled; the device layer stops the stream when it sees it.
var ErrShutdown = errors.New("audio engine shut down")

// Engine runs on the audio callback thread. Every callback it drains the
// per-track ring buffers the background processors rendered into, mixes
// them with the master gain and the constant-power pan law, writes
// pre-rendered MIDI to hardware out ports, and advances the transport.
// It never blocks: cross-thread traffic goes through the broker with
// non-blocking sends and receives, ring reads are lock-free, and the
// processing-mode flag is read best-effort.
type Engine struct {
	broker   *Broker
	timeInfo *TimeInfo
	mode     *ModeFlag

	audioConsumers []*AudioConsumer
	midiConsumers  []*MidiConsumer

	playing            bool
	wasPlaying         bool
	blockIndex         int
	blocksTotal        int
	playPositionFrames uint32
	sampleRate         float64
	tempo              float64
	blockSize          int
	framesPerBeat      float64

	masterVolume float32
	masterPan    float32
	panLeft      float32
	panRight     float32

	preview  previewState
	throttle int
	shutdown bool
	finished bool

	outLeft  [MaxBlockSize]float32
	outRight [MaxBlockSize]float32
	scratch  [MaxBlockSize]float32
}

type previewState struct {
	sample *riffline.SampleData
	cursor int
}

func NewEngine(broker *Broker, timeInfo *TimeInfo, mode *ModeFlag, sampleRate float64, blockSize int) *Engine {
	if blockSize > MaxBlockSize {
		blockSize = MaxBlockSize
	}
	e := &Engine{
		broker:       broker,
		timeInfo:     timeInfo,
		mode:         mode,
		sampleRate:   sampleRate,
		tempo:        120,
		blockSize:    blockSize,
		masterVolume: 1,
	}
	e.panLeft, e.panRight = riffline.ConstantPowerPan(0)
	e.recalcFramesPerBeat()
	return e
}

// TimeInfo returns the shared transport block the engine publishes to.
func (e *Engine) TimeInfo() *TimeInfo { return e.timeInfo }

// Process renders one hardware period into buffer. It is the audio
// callback body and completes without blocking even when every channel
// and ring involved is full or empty. The only non-nil return is
// ErrShutdown.
func (e *Engine) Process(buffer riffline.AudioBuffer) error {
	select {
	case <-e.broker.CloseEngine:
		e.shutdown = true
	default:
	}
	e.throttle++
	if e.throttle >= lowPriorityProcessingDelayCount {
		e.throttle = 0
		e.processMessages()
	}
	if e.shutdown {
		if !e.finished {
			e.finished = true
			close(e.broker.FinishedEngine)
		}
		return ErrShutdown
	}
	n := len(buffer)
	if n > MaxBlockSize {
		for i := MaxBlockSize; i < n; i++ {
			buffer[i] = [2]float32{}
		}
		n = MaxBlockSize
		buffer = buffer[:n]
	}
	if n == 0 {
		return nil
	}
	left := vek32.Zeros_Into(e.outLeft[:n], n)
	right := vek32.Zeros_Into(e.outRight[:n], n)
	if e.mode.Get() == ModeAudioOut {
		e.mix(left, right)
	}
	e.drainMidi()
	e.advanceTransport(n)
	for i := range buffer {
		buffer[i][0] = left[i]
		buffer[i][1] = right[i]
	}
	return nil
}

// mix sums every consumer's rendered samples and the preview sample into
// the output buffers, then reports the per-block peak levels. A ring
// with no data this callback contributes silence; the other consumers
// still mix.
func (e *Engine) mix(left, right []float32) {
	sources := len(e.audioConsumers)
	if e.preview.active() {
		sources++
	}
	gainL := e.masterVolume * 2 * e.panLeft
	gainR := e.masterVolume * 2 * e.panRight
	for _, c := range e.audioConsumers {
		e.mixRing(c.Left, left, gainL)
		e.mixRing(c.Right, right, gainR)
	}
	if e.preview.active() {
		scale := 1 / float32(sources)
		e.mixPreview(left, right, gainL*scale, gainR*scale)
	}
	s := e.scratch[:len(left)]
	copy(s, left)
	vek32.Abs_Inplace(s)
	peakL := vek32.Max(s)
	copy(s, right)
	vek32.Abs_Inplace(s)
	peakR := vek32.Max(s)
	TrySend(e.broker.ToModel, MsgToModel{HasLevels: true, LevelLeft: peakL, LevelRight: peakR})
}

func (e *Engine) mixRing(ring *Ring[float32], out []float32, gain float32) {
	n := ring.ReadSlice(e.scratch[:len(out)])
	if n == 0 {
		return
	}
	s := e.scratch[:n]
	vek32.MulNumber_Inplace(s, gain)
	vek32.Add_Inplace(out[:n], s)
}

// mixPreview mixes the one-shot preview sample on top of the track mix,
// duplicating mono samples to both channels. The cursor advances a full
// block every callback whether or not samples remained, so an exhausted
// sample stops contributing on its own.
func (e *Engine) mixPreview(left, right []float32, gainL, gainR float32) {
	sample := e.preview.sample
	frames := sample.FrameCount()
	for i := range left {
		frame := e.preview.cursor + i
		if frame >= frames {
			break
		}
		var l, r float32
		if sample.NumChannels == 1 {
			l = sample.Samples[frame]
			r = l
		} else {
			l = sample.Samples[frame*sample.NumChannels]
			r = sample.Samples[frame*sample.NumChannels+1]
		}
		left[i] += l * gainL
		right[i] += r * gainR
	}
	e.preview.cursor += len(left)
	if e.preview.cursor >= frames {
		e.preview = previewState{}
	}
}

func (p *previewState) active() bool {
	return p.sample != nil && p.cursor < p.sample.FrameCount()
}

// drainMidi writes each track's pre-rendered MIDI to its hardware out
// port. The inactive sentinel slot ends a track's batch; at most
// MaxBlockSize slots are drained per track per callback.
func (e *Engine) drainMidi() {
	for _, mc := range e.midiConsumers {
		for i := 0; i < MaxBlockSize; i++ {
			slot, ok := mc.Events.TryRead()
			if !ok || !slot.Active {
				break
			}
			if mc.Port != nil {
				_ = mc.Port.Send(slot.Data)
			}
		}
	}
}

// advanceTransport moves the block counter and publishes the transport
// state. While playing, the position wraps at the passage extent; the
// absolute position is reported outward once per beat crossing. When
// playback stops, the shared time info decays in two stages: the first
// callback clears the playing flag and raises the transport-changed
// flag, the next one lowers transport-changed again. After that the
// time info is left untouched.
func (e *Engine) advanceTransport(blockFrames int) {
	if e.playing {
		e.blockIndex++
		if e.blocksTotal > 0 && e.blockIndex >= e.blocksTotal {
			e.blockIndex = 0
		}
		e.playPositionFrames = uint32(e.blockIndex * e.blockSize)
		ppq := float64(e.playPositionFrames) * e.tempo / (60 * e.sampleRate)
		e.timeInfo.Update(TimeInfoSnapshot{
			SamplePos:        float64(e.playPositionFrames),
			PpqPos:           ppq,
			Tempo:            e.tempo,
			SampleRate:       e.sampleRate,
			Playing:          true,
			TransportChanged: !e.wasPlaying,
		})
		e.wasPlaying = true
		if math.Mod(float64(e.playPositionFrames), e.framesPerBeat) < float64(blockFrames) {
			TrySend(e.broker.ToModel, MsgToModel{HasPlayPosition: true, PlayPositionFrames: e.playPositionFrames})
		}
	} else {
		e.wasPlaying = false
		s := e.timeInfo.Snapshot()
		if s.Playing {
			s.Playing = false
			s.TransportChanged = true
			e.timeInfo.Update(s)
		} else if s.TransportChanged {
			s.TransportChanged = false
			e.timeInfo.Update(s)
		}
	}
}

func (e *Engine) processMessages() {
loop:
	for {
		select {
		case msg := <-e.broker.ToEngine:
			switch m := msg.(type) {
			case NewAudioConsumerMsg:
				e.audioConsumers = append(e.audioConsumers, m.Consumer)
			case NewMidiConsumerMsg:
				e.midiConsumers = append(e.midiConsumers, m.Consumer)
			case PlayMsg:
				if m.BlocksTotal > 0 {
					e.blocksTotal = m.BlocksTotal
				}
				if m.Restart {
					e.blockIndex = m.StartBlock
					e.playPositionFrames = uint32(m.StartBlock * e.blockSize)
				}
				e.playing = true
			case StopMsg:
				e.playing = false
			case ExtentsChangeMsg:
				e.blocksTotal = m.BlocksTotal
			case TempoMsg:
				e.tempo = m.BPM
				e.recalcFramesPerBeat()
			case SampleRateMsg:
				e.sampleRate = m.SampleRate
				e.recalcFramesPerBeat()
			case BlockSizeMsg:
				if m.BlockSize > 0 && m.BlockSize <= MaxBlockSize {
					e.blockSize = m.BlockSize
				} else if m.BlockSize > MaxBlockSize {
					e.blockSize = MaxBlockSize
				}
			case MasterVolumeMsg:
				e.masterVolume = m.Volume
			case MasterPanMsg:
				e.masterPan = m.Pan
				e.panLeft, e.panRight = riffline.ConstantPowerPan(m.Pan)
			case RemoveTrackMsg:
				e.removeTrack(m.TrackID)
			case MidiOutPortMsg:
				for _, mc := range e.midiConsumers {
					if mc.TrackID == m.TrackID {
						mc.Port = m.Port
					}
				}
			case PreviewSampleMsg:
				e.preview = previewState{sample: m.Sample}
			case ShutdownMsg:
				e.shutdown = true
			default:
				// ignore unknown messages
			}
		default:
			break loop
		}
	}
}

func (e *Engine) removeTrack(trackID string) {
	audio := e.audioConsumers[:0]
	for _, c := range e.audioConsumers {
		if c.TrackID != trackID {
			audio = append(audio, c)
		}
	}
	e.audioConsumers = audio
	midi := e.midiConsumers[:0]
	for _, mc := range e.midiConsumers {
		if mc.TrackID != trackID {
			midi = append(midi, mc)
		}
	}
	e.midiConsumers = midi
}

func (e *Engine) recalcFramesPerBeat() {
	if e.tempo > 0 {
		e.framesPerBeat = e.sampleRate / e.tempo * 60
	}
}
