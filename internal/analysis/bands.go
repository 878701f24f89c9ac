package analysis

import "math"

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range into the six bands sent alongside
// each frame. The treble band is open ended up to Nyquist.
func DefaultBands() []FrequencyBand {
	return []FrequencyBand{
		{Name: "sub", LowHz: 20, HighHz: 60},
		{Name: "bass", LowHz: 60, HighHz: 250},
		{Name: "lowMid", LowHz: 250, HighHz: 500},
		{Name: "mid", LowHz: 500, HighHz: 2000},
		{Name: "highMid", LowHz: 2000, HighHz: 4000},
		{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
	}
}

// BandLevel is the normalized level of one band in a frame.
type BandLevel struct {
	Name  string
	Level float64 // 0..1
}

// BandMeter reduces a Spectrum to per-band levels. Each level is the RMS of
// the band's bins relative to full scale. A BandMeter reuses its output
// slice and is not safe for concurrent use.
type BandMeter struct {
	bands  []FrequencyBand
	energy []float64
	counts []int
	levels []BandLevel
}

// NewBandMeter returns a meter over bands, or DefaultBands when none are given.
func NewBandMeter(bands ...FrequencyBand) *BandMeter {
	if len(bands) == 0 {
		bands = DefaultBands()
	}
	m := &BandMeter{
		bands:  bands,
		energy: make([]float64, len(bands)),
		counts: make([]int, len(bands)),
		levels: make([]BandLevel, len(bands)),
	}
	for i, b := range bands {
		m.levels[i].Name = b.Name
	}
	return m
}

// Measure computes band levels for s. The returned slice is reused by the
// next call.
func (m *BandMeter) Measure(s Spectrum) []BandLevel {
	clear(m.energy)
	clear(m.counts)

	for i := range s.Len() {
		freq := s.FrequencyForBin(i)
		for j, band := range m.bands {
			if freq >= band.LowHz && freq < band.HighHz {
				v := float64(s.At(i)) / 255
				m.energy[j] += v * v // Sum energy (magnitude squared)
				m.counts[j]++
				break
			}
		}
	}

	for j := range m.levels {
		level := 0.0
		if m.counts[j] > 0 {
			level = math.Sqrt(m.energy[j] / float64(m.counts[j]))
		}
		m.levels[j].Level = math.Min(1.0, level)
	}
	return m.levels
}
