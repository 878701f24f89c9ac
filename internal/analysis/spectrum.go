// SPDX-License-Identifier: MIT
package analysis

// Spectrum is a read-only view of one published magnitude frame. Bin i holds
// the energy near i·SampleRate/FFTSize Hz scaled to 0..255. The view is
// stable until the next call to Analyzer.Sample; use CopyTo to keep it.
type Spectrum struct {
	bins       []uint8
	fftSize    int
	sampleRate float64
}

// Len returns the number of bins, FFTSize/2 for an attached analyzer.
func (s Spectrum) Len() int { return len(s.bins) }

// At returns the magnitude of bin i.
func (s Spectrum) At(i int) uint8 { return s.bins[i] }

// CopyTo copies the bins into dst and returns the number copied.
func (s Spectrum) CopyTo(dst []uint8) int { return copy(dst, s.bins) }

// Bytes returns a copy of the bins.
func (s Spectrum) Bytes() []uint8 {
	out := make([]uint8, len(s.bins))
	copy(out, s.bins)
	return out
}

// FFTSize returns the transform size the frame was computed with.
func (s Spectrum) FFTSize() int { return s.fftSize }

// SampleRate returns the sample rate of the analyzed signal.
func (s Spectrum) SampleRate() float64 { return s.sampleRate }

// FrequencyForBin returns the center frequency (Hz) of bin i, or 0 when out
// of range.
func (s Spectrum) FrequencyForBin(i int) float64 {
	if i < 0 || i >= len(s.bins) || s.fftSize == 0 {
		return 0
	}
	return float64(i) * s.sampleRate / float64(s.fftSize)
}

// Peak returns the loudest bin and its value. Ties resolve to the lowest bin.
func (s Spectrum) Peak() (bin int, value uint8) {
	for i, v := range s.bins {
		if v > value {
			bin, value = i, v
		}
	}
	return bin, value
}
