// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"

	"audioviz/internal/audio"
	"audioviz/internal/domain"
	"audioviz/internal/log"

	"gonum.org/v1/gonum/dsp/fourier"
)

// TapSource is anything that exposes an analysis tap, such as *audio.Source.
type TapSource interface {
	Tap() *audio.Tap
}

const (
	indexMask = 0b011
	freshBit  = 0b100
)

// Analyzer computes the byte magnitude spectrum of a tapped source. Frames
// are computed on the audio callback, one per tap quantum, into a triple
// buffer, so consumers can Sample the newest complete frame without ever
// observing a partially written one.
//
// Thread Safety:
// - mu guards attachment, options and the transform workspace; the audio callback only TryLocks it
// - buffer ownership moves between writer and the read side through a single atomic word
// - readMu guards the read side; each Reader copies the front buffer into storage it owns
type Analyzer struct {
	mu      sync.Mutex
	tap     *audio.Tap
	detach  func()
	opts    Options
	fftSize int

	// Transform workspace, allocated by Attach.
	fft      *fourier.FFT
	window   []float64
	frame    []float32
	input    []float64
	coeffs   []complex128
	smoothed []float64

	// Triple buffer. back is owned by the writer, front by the reader, and
	// the middle index plus a fresh flag live in state.
	buffers   [3][]uint8
	rates     [3]float64
	seqs      [3]uint64 // publication number of each buffer
	published uint64
	back      int
	state     atomic.Uint32

	readMu sync.Mutex
	front  int

	reader *Reader // backs Sample
}

// Reader is a consumer's read handle on an Analyzer. The view returned by
// its Sample stays intact until that Reader samples again, whatever other
// readers or the audio callback do. A Reader must not be shared between
// goroutines; create one per consumer with NewReader.
type Reader struct {
	a    *Analyzer
	bins []uint8
	rate float64
	seq  uint64
}

// Compile-time checks for interface implementations.
var _ audio.TapListener = (*Analyzer)(nil)
var _ audio.TapCloser = (*Analyzer)(nil)

// NewAnalyzer returns a detached analyzer with opts. Invalid options are
// rejected with a ConfigError.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{opts: opts}
	a.reader = a.NewReader()
	return a, nil
}

// NewReader returns a read handle with its own frame storage.
func (a *Analyzer) NewReader() *Reader {
	return &Reader{a: a}
}

// Attach taps src and allocates the fixed workspace for fftSize. fftSize
// must be a power of two in [MinFFTSize, MaxFFTSize]; otherwise a
// ConfigError is returned and nothing is allocated. Attaching an analyzer
// that is already attached returns an InvalidStateError.
func (a *Analyzer) Attach(src TapSource, fftSize int) error {
	if err := ValidateFFTSize(fftSize); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tap != nil {
		return domain.NewInvalidStateError("analyzer", "attach", "Attached")
	}

	tap := src.Tap()
	if tap == nil {
		return domain.NewInvalidStateError("analyzer", "attach", "NoTap")
	}

	if a.fftSize != fftSize {
		a.allocate(fftSize)
	} else {
		clear(a.smoothed)
	}

	a.readMu.Lock()
	a.published++
	for i := range a.buffers {
		clear(a.buffers[i])
		a.rates[i] = tap.SampleRate()
		a.seqs[i] = a.published
	}
	a.back, a.front = 0, 2
	a.state.Store(1)
	a.readMu.Unlock()

	a.tap = tap
	a.detach = tap.Attach(a)

	log.Infof("Analysis: Attached analyzer (FFT size: %d, bins: %d, window: %v)", fftSize, fftSize/2, a.opts.Window)
	return nil
}

func (a *Analyzer) allocate(fftSize int) {
	bins := fftSize / 2

	a.fftSize = fftSize
	a.fft = fourier.NewFFT(fftSize)
	a.window = make([]float64, fftSize)
	applyWindow(a.window, a.opts.Window)
	a.frame = make([]float32, fftSize)
	a.input = make([]float64, fftSize)
	a.coeffs = make([]complex128, fftSize/2+1)
	a.smoothed = make([]float64, bins)

	a.readMu.Lock()
	for i := range a.buffers {
		a.buffers[i] = make([]uint8, bins)
	}
	a.readMu.Unlock()
}

// Detach stops analyzing. The last published frame remains available from
// Sample. Detaching a detached analyzer does nothing.
func (a *Analyzer) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.detach != nil {
		a.detach()
	}
	a.tap = nil
	a.detach = nil
}

// TapClosed detaches the analyzer when its source is closed.
func (a *Analyzer) TapClosed(tap *audio.Tap) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tap == tap {
		a.tap = nil
		a.detach = nil
		log.Debugf("Analysis: Source closed, analyzer detached")
	}
}

// Attached reports whether the analyzer is tapping a source.
func (a *Analyzer) Attached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tap != nil
}

// FFTSize returns the size of the current or last attachment, 0 if never attached.
func (a *Analyzer) FFTSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fftSize
}

// BinCount returns FFTSize/2.
func (a *Analyzer) BinCount() int {
	return a.FFTSize() / 2
}

// SampleRate returns the sample rate of the tapped signal, 0 when detached.
func (a *Analyzer) SampleRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tap == nil {
		return 0
	}
	return a.tap.SampleRate()
}

// FrequencyForBin returns the center frequency (Hz) of bin i for the current
// attachment, or 0 when detached or out of range.
func (a *Analyzer) FrequencyForBin(i int) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tap == nil || i < 0 || i >= a.fftSize/2 {
		return 0
	}
	return float64(i) * a.tap.SampleRate() / float64(a.fftSize)
}

// Options returns the active options.
func (a *Analyzer) Options() Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts
}

// Configure replaces the options. Invalid options are rejected with a
// ConfigError and the active options are kept. Smoothing history is kept so
// the change takes effect on the next frame without a jump.
func (a *Analyzer) Configure(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if opts.Window != a.opts.Window && a.window != nil {
		applyWindow(a.window, opts.Window)
	}
	a.opts = opts
	return nil
}

// Sample returns the newest complete frame through the analyzer's own
// Reader. Before the first Attach the view is empty; after Detach it is the
// last frame published. The view is valid until the next call to this
// method; consumers that sample independently each take a NewReader.
func (a *Analyzer) Sample() Spectrum {
	return a.reader.Sample()
}

// Sample returns the newest complete frame, copied into storage owned by r.
// The view is valid until r samples again.
func (r *Reader) Sample() Spectrum {
	a := r.a
	a.readMu.Lock()
	defer a.readMu.Unlock()

	if a.buffers[0] == nil {
		return Spectrum{}
	}
	if a.state.Load()&freshBit != 0 {
		prev := a.state.Swap(uint32(a.front))
		a.front = int(prev & indexMask)
	}

	front := a.buffers[a.front]
	if len(r.bins) != len(front) || r.seq != a.seqs[a.front] {
		if len(r.bins) != len(front) {
			r.bins = make([]uint8, len(front))
		}
		copy(r.bins, front)
		r.rate = a.rates[a.front]
		r.seq = a.seqs[a.front]
	}
	return Spectrum{
		bins:       r.bins,
		fftSize:    len(r.bins) * 2,
		sampleRate: r.rate,
	}
}

// OnQuantum computes and publishes one frame from the latest fftSize tapped
// samples. A quantum that arrives while Attach, Detach or Configure holds
// the lock is skipped.
//
// Performance Critical (Hot Path):
// - Runs on the audio callback
// - No allocations
func (a *Analyzer) OnQuantum(tap *audio.Tap, _ []float32) {
	if !a.mu.TryLock() {
		return
	}
	defer a.mu.Unlock()

	if a.tap != tap {
		return
	}

	// --- 1. Window the latest frame (zero padded until enough history) ---
	tap.Latest(a.frame)
	for i, v := range a.frame {
		a.input[i] = float64(v) * a.window[i]
	}

	// --- 2. Transform ---
	a.fft.Coefficients(a.coeffs, a.input)

	// --- 3. Smooth, convert to decibels, scale to bytes ---
	tau := a.opts.SmoothingFactor
	scale := 1 / float64(a.fftSize)
	minDB := a.opts.MinDecibels
	rangeScale := 255 / (a.opts.MaxDecibels - minDB)

	out := a.buffers[a.back]
	for k := range out {
		s := tau*a.smoothed[k] + (1-tau)*cmplx.Abs(a.coeffs[k])*scale
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		a.smoothed[k] = s
		out[k] = toByte(s, minDB, rangeScale)
	}

	// --- 4. Publish ---
	a.published++
	a.seqs[a.back] = a.published
	a.rates[a.back] = tap.SampleRate()
	prev := a.state.Swap(uint32(a.back) | freshBit)
	a.back = int(prev & indexMask)
}

// toByte maps a linear magnitude onto 0..255 across the decibel range.
func toByte(mag, minDB, rangeScale float64) uint8 {
	if mag <= 0 {
		return 0
	}
	v := (20*math.Log10(mag) - minDB) * rangeScale
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
