// SPDX-License-Identifier: MIT
/*
Package scheduler runs a render callback once per display refresh.

A Scheduler asks its Driver for one frame at a time and only requests the
next frame after the current tick has returned, so ticks never overlap and a
slow tick lowers the frame rate instead of queueing work. Errors and panics
raised by a tick are reported as *domain.RenderTickError and the loop keeps
going.

Stop may be called from any goroutine, including from inside a tick. It
does not block: once Stop returns no new tick begins, but a tick already
running on another goroutine may still be executing. Callers that release
resources the tick uses call Wait after Stop, from outside the tick.
*/
package scheduler

import (
	"sync"
	"time"

	"audioviz/internal/domain"
	"audioviz/internal/log"
)

// TickFunc renders one frame. elapsed is the time since the previous tick
// of the same run, zero for the first.
type TickFunc func(elapsed time.Duration) error

// Scheduler drives a TickFunc from a Driver.
type Scheduler struct {
	driver Driver

	mu      sync.Mutex
	running bool
	gen     uint64 // incremented by every Start and Stop
	handle  FrameID
	last    time.Time
	tick    TickFunc
	frames  uint64
	onError func(error)

	// tickMu serializes callbacks so a frame from a stale run cannot
	// overlap the first tick of a new one.
	tickMu sync.Mutex
}

// New returns a stopped scheduler on d.
func New(d Driver) *Scheduler {
	return &Scheduler{driver: d}
}

// OnError registers fn to receive tick failures. It replaces any previous
// observer; nil restores logging only.
func (s *Scheduler) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Start begins invoking tick once per frame. A nil tick returns a
// ConfigError. Starting a running scheduler returns an InvalidStateError and
// leaves the active loop untouched.
func (s *Scheduler) Start(tick TickFunc) error {
	if tick == nil {
		return domain.NewConfigError("tick", nil, "tick function is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return domain.NewInvalidStateError("scheduler", "start", "Running")
	}

	s.running = true
	s.gen++
	s.tick = tick
	s.last = time.Time{}

	s.handle = s.driver.RequestFrame(s.bind(s.gen))
	log.Debugf("Scheduler: started run %d", s.gen)
	return nil
}

// bind returns the frame callback for run gen. It is allocated once per
// Start and reused for every frame request of that run.
func (s *Scheduler) bind(gen uint64) func(time.Time) {
	var fn func(time.Time)
	fn = func(now time.Time) {
		if s.frame(gen, now) {
			s.mu.Lock()
			if s.running && s.gen == gen {
				s.handle = s.driver.RequestFrame(fn)
			}
			s.mu.Unlock()
		}
	}
	return fn
}

// Stop cancels the pending frame. It is idempotent and safe to call from
// inside a tick. Stop does not wait for a tick running on another goroutine;
// use Wait for that.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.gen++
	s.driver.CancelFrame(s.handle)
	log.Debugf("Scheduler: stopped after %d frames", s.frames)
}

// Wait blocks until no tick is executing. After Stop it returns once the
// last tick of the run has returned. Calling Wait from inside a tick
// deadlocks.
func (s *Scheduler) Wait() {
	s.tickMu.Lock()
	s.tickMu.Unlock()
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Frames returns the number of ticks invoked since the scheduler was created.
func (s *Scheduler) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// frame runs one tick for run gen. It reports whether the run is still
// current afterwards.
func (s *Scheduler) frame(gen uint64, now time.Time) bool {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return false
	}
	var elapsed time.Duration
	if !s.last.IsZero() {
		elapsed = now.Sub(s.last)
	}
	s.last = now
	s.frames++
	seq := s.frames
	tick := s.tick
	s.mu.Unlock()

	if err := s.invoke(tick, seq, elapsed); err != nil {
		s.report(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.gen == gen
}

func (s *Scheduler) invoke(tick TickFunc, seq uint64, elapsed time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.RenderTickError{Frame: seq, Panic: r}
		}
	}()
	if tickErr := tick(elapsed); tickErr != nil {
		return &domain.RenderTickError{Frame: seq, Err: tickErr}
	}
	return nil
}

func (s *Scheduler) report(err error) {
	log.Warnf("Scheduler: %v", err)

	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
