// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	"audioviz/internal/domain"
	"audioviz/pkg/bitint"
)

// FFT size limits accepted by Attach.
const (
	MinFFTSize     = 32
	MaxFFTSize     = 32768
	DefaultFFTSize = 512
)

// Defaults for Options.
const (
	DefaultSmoothingFactor = 0.0
	DefaultMinDecibels     = -100.0
	DefaultMaxDecibels     = -30.0
)

// Options tunes how magnitudes are computed and scaled. They may be changed
// with Configure while attached; the output buffer is not reallocated.
type Options struct {
	// SmoothingFactor blends each bin with its previous value:
	// s = τ·previous + (1-τ)·current. Zero disables smoothing.
	SmoothingFactor float64

	// MinDecibels and MaxDecibels bound the linear mapping to 0..255.
	MinDecibels float64
	MaxDecibels float64

	Window WindowFunc
}

// DefaultOptions returns the unsmoothed Blackman configuration with a
// -100..-30 dB range.
func DefaultOptions() Options {
	return Options{
		SmoothingFactor: DefaultSmoothingFactor,
		MinDecibels:     DefaultMinDecibels,
		MaxDecibels:     DefaultMaxDecibels,
		Window:          Blackman,
	}
}

// Validate rejects out-of-range options with a ConfigError.
func (o Options) Validate() error {
	if math.IsNaN(o.SmoothingFactor) || o.SmoothingFactor < 0 || o.SmoothingFactor > 1 {
		return domain.NewConfigError("smoothing_factor", o.SmoothingFactor, "must be within [0, 1]")
	}
	if math.IsNaN(o.MinDecibels) || math.IsInf(o.MinDecibels, 0) {
		return domain.NewConfigError("min_decibels", o.MinDecibels, "must be finite")
	}
	if math.IsNaN(o.MaxDecibels) || math.IsInf(o.MaxDecibels, 0) {
		return domain.NewConfigError("max_decibels", o.MaxDecibels, "must be finite")
	}
	if o.MinDecibels >= o.MaxDecibels {
		return domain.NewConfigError("min_decibels", o.MinDecibels, "must be below max_decibels")
	}
	if !o.Window.valid() {
		return domain.NewConfigError("window", o.Window, "unknown window function")
	}
	return nil
}

// ValidateFFTSize reports whether n is a power of two in [MinFFTSize, MaxFFTSize].
func ValidateFFTSize(n int) error {
	if bitint.IsPowerOfTwoInRange(n, MinFFTSize, MaxFFTSize) {
		return nil
	}
	msg := "must be a power of two between 32 and 32768"
	if n > MinFFTSize && n < MaxFFTSize {
		msg += fmt.Sprintf(" (nearest larger: %d)", bitint.NextPowerOfTwo(n))
	}
	return domain.NewConfigError("fft_size", n, msg)
}
