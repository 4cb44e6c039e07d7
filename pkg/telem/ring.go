package telem

import "sync"

// RingBuffer is a fixed-capacity sample buffer. Once full, the oldest
// sample is overwritten.
type RingBuffer struct {
	mu   sync.RWMutex
	data []*Sample
	head int
	size int
}

// NewRingBuffer creates a ring buffer holding up to capacity samples.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{data: make([]*Sample, capacity)}
}

// Add appends a sample, evicting the oldest when full.
func (r *RingBuffer) Add(s *Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[(r.head+r.size)%len(r.data)] = s
	if r.size < len(r.data) {
		r.size++
	} else {
		r.head = (r.head + 1) % len(r.data)
	}
}

// Samples returns the buffered samples, oldest first.
func (r *RingBuffer) Samples() []*Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Sample, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.data[(r.head+i)%len(r.data)]
	}
	return out
}

// Last returns the newest sample, or nil when empty.
func (r *RingBuffer) Last() *Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return nil
	}
	return r.data[(r.head+r.size-1)%len(r.data)]
}

// Len returns the number of buffered samples.
func (r *RingBuffer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
