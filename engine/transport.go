package engine

import "sync"

type (
	// TimeInfo is the transport block shared with plugin hosts and the
	// MIDI layer. The audio callback is the only writer; readers run on
	// their own threads behind the read lock. It is created at engine
	// startup and lives for the whole device connection.
	TimeInfo struct {
		mu       sync.RWMutex
		snapshot TimeInfoSnapshot
	}

	// TimeInfoSnapshot is one coherent view of the transport.
	TimeInfoSnapshot struct {
		SamplePos        float64
		PpqPos           float64
		Tempo            float64
		SampleRate       float64
		Playing          bool
		TransportChanged bool
	}
)

// Update publishes a new transport state. Called only from the audio
// callback.
func (t *TimeInfo) Update(s TimeInfoSnapshot) {
	t.mu.Lock()
	t.snapshot = s
	t.mu.Unlock()
}

// Snapshot returns the last published transport state.
func (t *TimeInfo) Snapshot() TimeInfoSnapshot {
	t.mu.RLock()
	s := t.snapshot
	t.mu.RUnlock()
	return s
}
