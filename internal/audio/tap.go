// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync"
	"sync/atomic"
)

// MaxTapWindow is the largest window a listener can request from a Tap. It
// matches the largest FFT size the analyzer accepts.
const MaxTapWindow = 32768

// TapListener observes the mono mix of the playing signal. OnQuantum runs on
// the audio callback once per processed quantum and must not block.
type TapListener interface {
	OnQuantum(tap *Tap, quantum []float32)
}

// TapCloser is implemented by listeners that need to know when the tap is
// released together with its source.
type TapCloser interface {
	TapClosed(tap *Tap)
}

// Tap is a non-destructive read point on a Source. It keeps the most recent
// MaxTapWindow mono samples in a ring buffer and fans each quantum out to the
// attached listeners. Attaching or detaching a listener never changes what
// the source plays.
//
// Thread Safety:
// - listeners are swapped copy-on-write so the audio callback never locks to read them
// - the ring buffer is guarded by mu; listeners are notified after it is released
type Tap struct {
	mu   sync.Mutex
	ring []float32
	pos  int // next write index
	fill int // number of valid samples, up to len(ring)

	sampleRate atomic.Uint64 // float64 bits
	listeners  atomic.Pointer[[]TapListener]
	attachMu   sync.Mutex // serializes listener slice replacement
}

func newTap() *Tap {
	t := &Tap{ring: make([]float32, MaxTapWindow)}
	empty := []TapListener{}
	t.listeners.Store(&empty)
	return t
}

// SampleRate returns the sample rate of the signal currently flowing through the tap.
func (t *Tap) SampleRate() float64 {
	return math.Float64frombits(t.sampleRate.Load())
}

func (t *Tap) setSampleRate(rate float64) {
	t.sampleRate.Store(math.Float64bits(rate))
}

// Attach registers l and returns a function that detaches it. The detach
// function is idempotent.
func (t *Tap) Attach(l TapListener) (detach func()) {
	t.attachMu.Lock()
	cur := *t.listeners.Load()
	next := make([]TapListener, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, l)
	t.listeners.Store(&next)
	t.attachMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { t.remove(l) })
	}
}

// Listeners returns the number of attached listeners.
func (t *Tap) Listeners() int {
	return len(*t.listeners.Load())
}

func (t *Tap) remove(l TapListener) {
	t.attachMu.Lock()
	defer t.attachMu.Unlock()

	cur := *t.listeners.Load()
	next := make([]TapListener, 0, len(cur))
	for _, existing := range cur {
		if existing != l {
			next = append(next, existing)
		}
	}
	t.listeners.Store(&next)
}

// close detaches every listener and tells the ones that care.
func (t *Tap) close() {
	t.attachMu.Lock()
	cur := *t.listeners.Load()
	empty := []TapListener{}
	t.listeners.Store(&empty)
	t.attachMu.Unlock()

	for _, l := range cur {
		if c, ok := l.(TapCloser); ok {
			c.TapClosed(t)
		}
	}
}

// reset forgets buffered history, used when a new resource is bound.
func (t *Tap) reset() {
	t.mu.Lock()
	clear(t.ring)
	t.pos = 0
	t.fill = 0
	t.mu.Unlock()
}

// Latest copies the most recent len(dst) samples into dst in chronological
// order. When fewer samples have been seen, the front of dst is zero filled.
// Returns the number of real samples copied.
func (t *Tap) Latest(dst []float32) int {
	n := len(dst)
	if n > len(t.ring) {
		clear(dst[:n-len(t.ring)])
		dst = dst[n-len(t.ring):]
		n = len(dst)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	avail := min(n, t.fill)
	clear(dst[:n-avail])
	size := len(t.ring)
	start := (t.pos - avail + size) % size
	out := dst[n-avail:]
	// At most two contiguous segments.
	first := copy(out, t.ring[start:min(start+avail, size)])
	copy(out[first:], t.ring[:avail-first])
	return avail
}

// write appends a mono quantum and notifies listeners. Called only from the
// source's audio callback.
func (t *Tap) write(quantum []float32) {
	t.mu.Lock()
	size := len(t.ring)
	src := quantum
	if len(src) > size {
		src = src[len(src)-size:]
	}
	n := copy(t.ring[t.pos:], src)
	copy(t.ring, src[n:])
	t.pos = (t.pos + len(src)) % size
	t.fill = min(t.fill+len(src), size)
	t.mu.Unlock()

	for _, l := range *t.listeners.Load() {
		l.OnQuantum(t, quantum)
	}
}
