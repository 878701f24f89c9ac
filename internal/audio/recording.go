package audio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"audioviz/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes the tapped mono signal to a WAV file. It is a TapListener;
// encoding happens on the audio callback using a reusable sample buffer.
type Recorder struct {
	bitDepth int

	mu          sync.Mutex // guards the encoder; the audio callback only TryLocks
	isRecording int32      // Atomic flag for thread-safe state
	detach      func()
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer // Reusable buffer for format conversion
	scale       float32
}

// NewRecorder returns a recorder writing bitDepth-bit PCM (16, 24 or 32).
func NewRecorder(bitDepth int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported recording bit depth: %d", bitDepth)
	}
	return &Recorder{bitDepth: bitDepth}, nil
}

// Start creates filename and begins recording everything that flows through tap.
func (r *Recorder) Start(tap *Tap, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if atomic.LoadInt32(&r.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	rate := int(tap.SampleRate())
	if rate <= 0 {
		return fmt.Errorf("tap has no sample rate; load a resource first")
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.outputFile = file

	r.wavEncoder = wav.NewEncoder(file, rate, r.bitDepth, 1, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  rate,
		},
		Data:           make([]int, MaxTapWindow),
		SourceBitDepth: r.bitDepth,
	}
	r.scale = float32(int64(1)<<(r.bitDepth-1) - 1)

	atomic.StoreInt32(&r.isRecording, 1)
	r.detach = tap.Attach(r)

	log.Infof("Recording to %s (%d Hz, %d-bit)", filename, rate, r.bitDepth)
	return nil
}

// Recording reports whether the recorder is writing.
func (r *Recorder) Recording() bool {
	return atomic.LoadInt32(&r.isRecording) == 1
}

// OnQuantum encodes one quantum. Samples outside [-1, 1] are clipped. A
// quantum that arrives while Start or Stop holds the lock is dropped.
func (r *Recorder) OnQuantum(_ *Tap, quantum []float32) {
	if atomic.LoadInt32(&r.isRecording) == 0 || !r.mu.TryLock() {
		return
	}
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return
	}

	n := min(len(quantum), cap(r.sampleBuf.Data))
	data := r.sampleBuf.Data[:n]
	for i, sample := range quantum[:n] {
		sample = max(-1, min(1, sample))
		data[i] = int(sample * r.scale)
	}
	r.sampleBuf.Data = data

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		log.Errorf("Error writing to WAV file: %v", err)
	}
}

// TapClosed finalizes the file when the source is closed.
func (r *Recorder) TapClosed(*Tap) {
	if err := r.Stop(); err != nil {
		log.Errorf("Error finalizing recording: %v", err)
	}
}

// Stop detaches from the tap and finalizes the WAV header.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if atomic.LoadInt32(&r.isRecording) == 0 {
		return nil
	}

	atomic.StoreInt32(&r.isRecording, 0)
	if r.detach != nil {
		r.detach()
		r.detach = nil
	}

	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			return err
		}
		r.wavEncoder = nil
	}

	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			return err
		}
		r.outputFile = nil
	}

	return nil
}
