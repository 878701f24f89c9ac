// SPDX-License-Identifier: MIT
/*
Package audio implements the signal source side of the visualizer:
- A Source bound to one decoded or live resource with a playback state machine
- A Tap that exposes the playing signal to analyzers without altering output
- PortAudio output and capture streams, plus a headless clock driver
- WAV recording of the tapped signal with atomic state management

Thread Safety:
- Source state is guarded by a mutex held only for bookkeeping, never across listener calls
- Process and Feed run on the audio callback and use pre-allocated buffers
- OnEnded callbacks run on the audio callback after the lock is released
*/
package audio

import (
	"errors"
	"sync"
	"time"

	"audioviz/internal/domain"
	"audioviz/internal/log"
)

const component = "source"

// Source plays one bound resource and feeds its mono mix into a Tap.
// Samples are produced by pulling Process from an output stream or clock,
// or pushed with Feed for live resources.
type Source struct {
	mu        sync.Mutex
	state     State
	name      string
	pcm       *Buffer
	frame     int   // playback position in frames
	liveCount int64 // frames fed to a live source
	failure   error

	endedFired bool
	onEnded    []func()

	mono []float32 // mono mix scratch, reused per quantum
	tap  *Tap
}

// NewSource returns an idle Source with nothing loaded.
func NewSource() *Source {
	return &Source{tap: newTap()}
}

// Tap returns the source's analysis tap.
func (s *Source) Tap() *Tap { return s.tap }

// Load decodes r and binds it to the source, resetting it to Idle at
// position zero. On failure the source transitions to Failed and a
// ResourceError is returned.
func (s *Source) Load(r Resource) error {
	buf, err := r.Decode()
	if err == nil && buf.Channels <= 0 {
		err = domain.NewResourceError("load", r.Name(), "resource has no channels", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.name = r.Name()
	if err != nil {
		var re *domain.ResourceError
		if !errors.As(err, &re) {
			re = domain.NewResourceError("load", r.Name(), "", err)
		}
		s.state = StateFailed
		s.pcm = nil
		s.failure = re
		log.Warnf("Failed to load %s: %v", r.Name(), re)
		return re
	}

	s.pcm = buf
	s.frame = 0
	s.liveCount = 0
	s.failure = nil
	s.endedFired = false
	s.state = StateIdle
	s.tap.setSampleRate(float64(buf.SampleRate))
	s.tap.reset()
	log.Infof("Loaded %s (%d Hz, %d ch, %v)", r.Name(), buf.SampleRate, buf.Channels, buf.Duration())
	return nil
}

// Play starts or resumes playback. From Ended, playback restarts at zero
// unless the position was moved back with Seek.
func (s *Source) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pcm == nil || s.state == StateFailed {
		return domain.NewInvalidStateError(component, "play", s.stateLabel())
	}
	switch s.state {
	case StatePlaying:
		return nil
	case StateEnded:
		if !s.pcm.live && s.frame >= s.pcm.Frames() {
			s.frame = 0
		}
		s.endedFired = false
	}
	s.state = StatePlaying
	return nil
}

// Pause suspends playback, keeping the position. It has no effect unless
// the source is playing.
func (s *Source) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		s.state = StatePaused
	}
}

// Seek moves the playback position, clamped to [0, Duration]. The state is
// unchanged. Seeking a live source has no effect.
func (s *Source) Seek(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pcm == nil || s.state == StateFailed {
		return domain.NewInvalidStateError(component, "seek", s.stateLabel())
	}
	if s.pcm.live {
		return nil
	}

	frame := int(pos.Seconds() * float64(s.pcm.SampleRate))
	s.frame = max(0, min(frame, s.pcm.Frames()))
	return nil
}

// State returns the current playback state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the load failure while the source is Failed.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Position returns the playback position.
func (s *Source) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pcm == nil || s.pcm.SampleRate == 0 {
		return 0
	}
	frames := int64(s.frame)
	if s.pcm.live {
		frames = s.liveCount
	}
	return time.Duration(frames) * time.Second / time.Duration(s.pcm.SampleRate)
}

// Duration returns the length of the bound resource. ok is false when the
// duration is unknown, as for live resources or before a successful Load.
func (s *Source) Duration() (d time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pcm == nil || s.pcm.live {
		return 0, false
	}
	return s.pcm.Duration(), true
}

// Format returns the sample rate and channel count of the bound resource.
func (s *Source) Format() (sampleRate, channels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pcm == nil {
		return 0, 0
	}
	return s.pcm.SampleRate, s.pcm.Channels
}

// Metadata returns the descriptive tags of the bound resource.
func (s *Source) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pcm == nil {
		return Metadata{Title: s.name}
	}
	return s.pcm.Meta
}

// OnEnded registers fn to run once each time playback reaches the end of
// the resource. fn runs on the audio callback and must not block.
func (s *Source) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = append(s.onEnded, fn)
}

// Close unbinds the resource and detaches every tap listener. A closed
// source can be reused with Load.
func (s *Source) Close() error {
	s.mu.Lock()
	s.pcm = nil
	s.frame = 0
	s.state = StateIdle
	s.mu.Unlock()

	s.tap.close()
	return nil
}

// Process renders the next quantum into out, interleaved with the bound
// resource's channel count. While not playing, out is filled with silence
// and the tap is not fed. Live sources always render silence; their
// samples reach the tap through Feed.
//
// Performance Critical:
// - Called from the output stream callback
// - Reuses the mono scratch buffer once it has grown to the quantum size
func (s *Source) Process(out []float32) {
	s.mu.Lock()
	if s.state != StatePlaying || s.pcm == nil || s.pcm.live {
		s.mu.Unlock()
		clear(out)
		return
	}

	ch := s.pcm.Channels
	total := s.pcm.Frames()
	n := min(len(out)/ch, total-s.frame)
	copy(out, s.pcm.Data[s.frame*ch:(s.frame+n)*ch])
	clear(out[n*ch:])
	s.frame += n

	mono := s.mixDown(out[:n*ch], ch)
	var ended []func()
	if s.frame >= total {
		s.state = StateEnded
		if !s.endedFired {
			s.endedFired = true
			ended = s.onEnded
		}
	}
	s.mu.Unlock()

	if len(mono) > 0 {
		s.tap.write(mono)
	}
	for _, fn := range ended {
		fn()
	}
}

// Feed pushes interleaved samples captured from a live input. They reach the
// tap only while the source is playing.
func (s *Source) Feed(in []float32) {
	s.mu.Lock()
	if s.state != StatePlaying || s.pcm == nil || !s.pcm.live {
		s.mu.Unlock()
		return
	}
	ch := s.pcm.Channels
	frames := len(in) / ch
	s.liveCount += int64(frames)
	mono := s.mixDown(in[:frames*ch], ch)
	s.mu.Unlock()

	if len(mono) > 0 {
		s.tap.write(mono)
	}
}

// mixDown averages interleaved frames into the mono scratch buffer.
// Callers hold s.mu.
func (s *Source) mixDown(interleaved []float32, channels int) []float32 {
	frames := len(interleaved) / channels
	if cap(s.mono) < frames {
		s.mono = make([]float32, frames)
	}
	mono := s.mono[:frames]

	if channels == 1 {
		copy(mono, interleaved)
		return mono
	}
	inv := 1 / float32(channels)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum * inv
	}
	return mono
}

func (s *Source) stateLabel() string {
	if s.pcm == nil && s.state != StateFailed {
		return "Unloaded"
	}
	return s.state.String()
}
