package engine

import "sync"

// ProcessingMode tells the engine what to do with the producers' output.
// AudioOut mixes normally. Coast keeps the callback alive but skips
// mixing, used while the controller loads or saves files. Render also
// skips live mixing, used during offline export.
type ProcessingMode int

const (
	ModeAudioOut ProcessingMode = iota
	ModeCoast
	ModeRender
)

// ModeFlag is a best-effort shared flag holding the processing mode.
// Set blocks briefly like a normal mutex write. Get, called from the
// audio callback, never blocks: on contention it returns the value seen
// on the previous callback, so a mode transition can be observed at most
// one callback late.
type ModeFlag struct {
	mu   sync.Mutex
	mode ProcessingMode
	last ProcessingMode // owned by the reading thread
}

func (f *ModeFlag) Set(mode ProcessingMode) {
	f.mu.Lock()
	f.mode = mode
	f.mu.Unlock()
}

func (f *ModeFlag) Get() ProcessingMode {
	if f.mu.TryLock() {
		f.last = f.mode
		f.mu.Unlock()
	}
	return f.last
}
