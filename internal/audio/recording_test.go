// SPDX-License-Identifier: MIT
package audio

import (
	"os"
	"path/filepath"
	"testing"

	"audioviz/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingStartStopHotPath(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_recording.wav")
	src := loadedSource(t, 0.5)
	rec, err := NewRecorder(16)
	require.NoError(t, err)

	require.NoError(t, rec.Start(src.Tap(), filename))
	assert.True(t, rec.Recording())
	assert.Equal(t, 1, src.Tap().Listeners())
	require.NotNil(t, rec.sampleBuf)
	assert.Equal(t, 1, rec.sampleBuf.Format.NumChannels)
	assert.Equal(t, testSampleRate, rec.sampleBuf.Format.SampleRate)

	require.NoError(t, src.Play())
	clock := NewClock(src, testFrameSize)
	for range 10 {
		clock.Step()
	}

	outputFile := rec.outputFile
	require.NoError(t, rec.Stop())
	assert.False(t, rec.Recording())
	assert.Nil(t, rec.outputFile)
	assert.Nil(t, rec.wavEncoder)
	assert.Zero(t, src.Tap().Listeners())
	assert.Error(t, outputFile.Close(), "file should already be closed")

	// The recording decodes back to the frames that were played.
	decoded, err := File(filename).Decode()
	require.NoError(t, err)
	assert.Equal(t, testSampleRate, decoded.SampleRate)
	assert.Equal(t, 1, decoded.Channels)
	assert.Equal(t, 10*testFrameSize, decoded.Frames())
}

func TestRecordingErrorCases(t *testing.T) {
	dir := t.TempDir()

	t.Run("Already recording", func(t *testing.T) {
		src := loadedSource(t, 0.1)
		rec, _ := NewRecorder(16)
		require.NoError(t, rec.Start(src.Tap(), filepath.Join(dir, "a.wav")))
		defer rec.Stop()

		err := rec.Start(src.Tap(), filepath.Join(dir, "b.wav"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already recording")
	})

	t.Run("Invalid path", func(t *testing.T) {
		src := loadedSource(t, 0.1)
		rec, _ := NewRecorder(16)
		assert.Error(t, rec.Start(src.Tap(), "/nonexistent/path/file.wav"))
		assert.False(t, rec.Recording())
	})

	t.Run("Unloaded source", func(t *testing.T) {
		rec, _ := NewRecorder(16)
		assert.Error(t, rec.Start(NewSource().Tap(), filepath.Join(dir, "c.wav")))
	})

	t.Run("Stop when not recording", func(t *testing.T) {
		rec, _ := NewRecorder(24)
		assert.NoError(t, rec.Stop())
	})

	t.Run("Bad bit depth", func(t *testing.T) {
		_, err := NewRecorder(12)
		assert.Error(t, err)
	})
}

func TestRecordingStopsWhenSourceCloses(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "closed.wav")
	src := loadedSource(t, 0.1)
	rec, _ := NewRecorder(16)
	require.NoError(t, rec.Start(src.Tap(), filename))

	require.NoError(t, src.Close())
	assert.False(t, rec.Recording())

	_, err := os.Stat(filename)
	assert.NoError(t, err)
}

func TestRecordingNoAllocsHotPath(t *testing.T) {
	src := loadedSource(t, 0.1)
	rec, _ := NewRecorder(16)
	require.NoError(t, rec.Start(src.Tap(), filepath.Join(t.TempDir(), "alloc.wav")))
	defer rec.Stop()

	quantum := testutil.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5)
	rec.OnQuantum(src.Tap(), quantum)

	// The encoder itself may buffer; only the conversion loop is measured here.
	allocs := testing.AllocsPerRun(100, func() {
		data := rec.sampleBuf.Data[:len(quantum)]
		for i, sample := range quantum {
			data[i] = int(sample * rec.scale)
		}
	})
	assert.Zero(t, allocs)
}

func BenchmarkRecordingProcessHotPath(b *testing.B) {
	mono := testutil.GenerateSineWave(testSampleRate, testSampleRate, 440, 0.5)
	src := NewSource()
	_ = src.Load(Samples("bench", testSampleRate, 1, mono))
	rec, _ := NewRecorder(16)
	_ = rec.Start(src.Tap(), filepath.Join(b.TempDir(), "bench_process.wav"))
	defer rec.Stop()

	quantum := mono[:testFrameSize]
	b.ReportAllocs()
	for b.Loop() {
		rec.OnQuantum(src.Tap(), quantum)
	}
}
