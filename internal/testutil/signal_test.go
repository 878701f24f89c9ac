// SPDX-License-Identifier: MIT
package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSineWave(t *testing.T) {
	wave := GenerateSineWave(1024, 44100, 440, 0.5)
	require.Len(t, wave, 1024)

	var peak float64
	for _, v := range wave {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	assert.InDelta(t, 0.5, peak, 0.01)
	assert.Zero(t, wave[0])
}

func TestGenerateComplexWave(t *testing.T) {
	wave := GenerateComplexWave(2048, 44100)
	for i, v := range wave {
		if v < -1 || v > 1 {
			t.Fatalf("sample %d out of range: %f", i, v)
		}
	}
}

func TestInterleave(t *testing.T) {
	assert.Equal(t, []float32{1, 1, 2, 2}, Interleave([]float32{1, 2}, 2))
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name       string
		magnitudes []uint8
		start, end int
		want       int
	}{
		{"empty", nil, 0, 10, 0},
		{"single peak", []uint8{0, 3, 9, 2}, 0, 3, 2},
		{"clamped range", []uint8{5, 1, 7}, -4, 99, 2},
		{"sub range", []uint8{9, 1, 4, 2}, 1, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindPeakBin(tt.magnitudes, tt.start, tt.end))
		})
	}
}
