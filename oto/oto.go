// Package oto wraps the ebitengine oto/v3 library as the hardware audio
// output. It repeatedly invokes a render callback for fixed-size stereo
// blocks and streams the result to the device as 32-bit float samples.
package oto

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/velling/riffline"
)

type (
	Context struct {
		ctx        *oto.Context
		sampleRate int
		blockSize  int
	}

	playback struct {
		player *oto.Player
		failed func(error)
	}

	// callbackReader adapts the block-oriented render callback to the
	// io.Reader the device pulls from. The block buffer and its byte
	// form are allocated once; Read never allocates.
	callbackReader struct {
		callback func(buf riffline.AudioBuffer) error
		failed   func(error)
		buffer   riffline.AudioBuffer
		bytes    []byte
		pending  []byte
		stopped  bool
	}
)

// NewContext opens the audio device for stereo float32 output at the
// given sample rate, rendering blockSize frames per callback.
func NewContext(sampleRate, blockSize int) (*Context, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Second * time.Duration(blockSize) / time.Duration(sampleRate) * 4,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate, blockSize: blockSize}, nil
}

// Play starts streaming: callback is invoked for every block until it
// returns an error or the returned closer is closed. failed, if not
// nil, is called once with the error that stopped the stream, from the
// render callback erroring or from the device itself failing.
func (c *Context) Play(callback func(buf riffline.AudioBuffer) error, failed func(error)) io.Closer {
	if failed != nil {
		var once sync.Once
		inner := failed
		failed = func(err error) { once.Do(func() { inner(err) }) }
	}
	reader := &callbackReader{
		callback: callback,
		failed:   failed,
		buffer:   make(riffline.AudioBuffer, c.blockSize),
		bytes:    make([]byte, c.blockSize*8),
	}
	player := c.ctx.NewPlayer(reader)
	player.Play()
	return &playback{player: player, failed: failed}
}

func (p *playback) Close() error {
	if err := p.player.Err(); err != nil && p.failed != nil {
		p.failed(err)
	}
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

func (r *callbackReader) Read(p []byte) (int, error) {
	if r.stopped {
		return 0, io.EOF
	}
	total := 0
	for len(p) > 0 {
		if len(r.pending) == 0 {
			if err := r.callback(r.buffer); err != nil {
				r.stopped = true
				if r.failed != nil {
					r.failed(err)
				}
				if total > 0 {
					return total, nil
				}
				return 0, io.EOF
			}
			for i, frame := range r.buffer {
				binary.LittleEndian.PutUint32(r.bytes[i*8:], math.Float32bits(frame[0]))
				binary.LittleEndian.PutUint32(r.bytes[i*8+4:], math.Float32bits(frame[1]))
			}
			r.pending = r.bytes
		}
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		p = p[n:]
		total += n
	}
	return total, nil
}
