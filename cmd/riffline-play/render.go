package main

import (
	"context"
	"os"
	"time"

	"github.com/velling/riffline"
	"github.com/velling/riffline/engine"
)

// renderToFile runs the engine offline for one pass of the schedule and
// writes the mix as a 32-bit float wav file. The producers render ahead
// into their rings exactly as during live playback; the render loop
// waits for every ring to hold a full block before invoking the engine,
// so the output does not depend on goroutine timing.
func renderToFile(ctx context.Context, broker *engine.Broker, eng *engine.Engine, producers []*trackProducer, blocksTotal, blockSize, sampleRate int, path string) error {
	broker.ToEngine <- engine.PlayMsg{Restart: true, BlocksTotal: blocksTotal}

	// land the queued consumer registrations and the play command before
	// any audio is pulled; an empty buffer drains commands only
	for i := 0; i < 5; i++ {
		if err := eng.Process(nil); err != nil {
			return err
		}
	}

	buf := broker.GetAudioBuffer()
	defer broker.PutAudioBuffer(buf)
	if cap(*buf) < blockSize {
		*buf = make(riffline.AudioBuffer, blockSize)
	}
	*buf = (*buf)[:blockSize]

	samples := make([]float32, 0, 2*blocksTotal*blockSize)
	for block := 0; block < blocksTotal; block++ {
		if err := waitForRings(ctx, producers, blockSize); err != nil {
			return err
		}
		if err := eng.Process(*buf); err != nil {
			return err
		}
		for _, frame := range *buf {
			samples = append(samples, frame[0], frame[1])
		}
	}

	data, err := riffline.Wav(samples, sampleRate, 2, false)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func waitForRings(ctx context.Context, producers []*trackProducer, blockSize int) error {
	for _, p := range producers {
		for p.audio.Left.Len() < blockSize || p.audio.Right.Len() < blockSize {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
	}
	return nil
}
