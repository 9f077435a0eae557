package terminal

import (
	"sync"
	"time"
)

// LatestFrame holds the most recent camera frame. Older frames are
// overwritten, never queued.
type LatestFrame struct {
	mu   sync.Mutex
	data []byte
	at   time.Time
}

// Put replaces the held frame.
func (f *LatestFrame) Put(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = data
	f.at = time.Now()
}

// Take returns the held frame and clears it. Nil means no new frame.
func (f *LatestFrame) Take() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := f.data
	f.data = nil
	return data
}

// ReceivedAt returns when the last frame arrived.
func (f *LatestFrame) ReceivedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.at
}
