// Package engine implements the real-time audio side of the sequencer:
// a broker for non-blocking cross-thread messaging, lock-free ring
// buffers that per-track producers render into, and the Engine itself,
// which runs on the audio callback thread and mixes everything the
// producers rendered into the device output.
package engine

import (
	"sync"
	"time"

	"github.com/velling/riffline"
)

type (
	// Broker is the centralized message broker between the controller
	// thread, the MIDI layer and the audio engine. It is many-to-one
	// communication, one channel per recipient. The engine only ever
	// uses non-blocking sends and receives on its channels, so the
	// channels are buffered generously and messages are dropped when a
	// recipient cannot keep up. Additionally, the broker has a sync.Pool
	// of *riffline.AudioBuffers, from which buffers can be borrowed and
	// returned to pass audio around without allocating every time.
	Broker struct {
		ToEngine chan any        // inward commands, drained by the callback at a throttled rate
		ToModel  chan MsgToModel // outward events toward the controller thread

		CloseEngine    chan struct{} // closed by the controller to stop the engine without queueing a command
		FinishedEngine chan struct{} // closed by the engine when it has acknowledged the shutdown

		bufferPool sync.Pool
	}

	// MsgToModel is a message sent to the controller thread. The most
	// often sent data (channel levels and play position) are not boxed
	// to avoid allocations; infrequent messages are boxed and cast to
	// any, which is cheap for pointer types.
	MsgToModel struct {
		HasLevels          bool
		LevelLeft          float32
		LevelRight         float32
		HasPlayPosition    bool
		PlayPositionFrames uint32

		Data any // *MidiEvent, *MidiControlEvent, *MMCEvent, DeviceRestartRequiredMsg
	}
)

func NewBroker() *Broker {
	return &Broker{
		ToEngine:       make(chan any, 1024),
		ToModel:        make(chan MsgToModel, 1024),
		CloseEngine:    make(chan struct{}, 1),
		FinishedEngine: make(chan struct{}),
		bufferPool:     sync.Pool{New: func() any { return &riffline.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an audio buffer from the buffer pool. The
// buffer is guaranteed to be empty. After use it should be returned to
// the pool with PutAudioBuffer.
func (b *Broker) GetAudioBuffer() *riffline.AudioBuffer {
	return b.bufferPool.Get().(*riffline.AudioBuffer)
}

// PutAudioBuffer returns an audio buffer to the buffer pool. If the
// buffer is not empty, its length is reset (but capacity kept) before
// returning it to the pool.
func (b *Broker) PutAudioBuffer(buf *riffline.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// TrySend is a helper function to send a value to a channel if it is not
// full. It is guaranteed to be non-blocking. Returns true if the value
// was sent, false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TryRecv is the receiving counterpart of TrySend: it returns
// immediately with ok == false when the channel is empty.
func TryRecv[T any](c <-chan T) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	default:
		return v, false
	}
}

// TimeoutReceive blocks until a value is received from a channel, or
// times out after t. ok is false if the timeout occurred or the channel
// is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
