// SPDX-License-Identifier: MIT

// Package engine wires a playing source, its analyzer and a frame scheduler
// into one visualization loop that hands every frame to its consumers.
package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"audioviz/internal/analysis"
	"audioviz/internal/audio"
	"audioviz/internal/domain"
	"audioviz/internal/log"
	"audioviz/internal/scheduler"
)

// Player is the playback state the loop reports with each frame.
// *audio.Source implements it.
type Player interface {
	State() audio.State
	Position() time.Duration
	OnEnded(fn func())
}

// Sampler provides the latest spectrum. *analysis.Analyzer and *analysis.Reader
// implement it.
type Sampler interface {
	Sample() analysis.Spectrum
}

// Frame is what consumers receive each tick. Spectrum and Bands are views
// that stay valid only until the consumer returns.
type Frame struct {
	Seq      uint64
	Elapsed  time.Duration // Since the previous frame, 0 for the first.
	Time     time.Time     // First frame of the run plus the summed elapsed time.
	Spectrum analysis.Spectrum
	Bands    []analysis.BandLevel
	Position time.Duration
	State    audio.State
}

// Consumer renders or publishes a frame. Errors are reported for the frame
// and do not stop the loop.
type Consumer interface {
	Consume(f *Frame) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(f *Frame) error

func (fn ConsumerFunc) Consume(f *Frame) error { return fn(f) }

// Options tunes a Visualization.
type Options struct {
	// Bands are measured into Frame.Bands each tick when set.
	Bands []analysis.FrequencyBand

	// StopOnEnd stops the loop after delivering the frame in which the
	// source ended.
	StopOnEnd bool

	// Now is read once at the first frame of each run. Defaults to time.Now.
	Now func() time.Time
}

// Visualization samples the analyzer exactly once per scheduler tick and
// passes the same frame to every consumer in the order they were added.
//
// Thread Safety:
// - Start, Stop and AddConsumer may be called from any goroutine, including from a consumer
// - ended is set on the audio thread and observed by the next tick
type Visualization struct {
	player    Player
	sampler   Sampler
	scheduler *scheduler.Scheduler
	meter     *analysis.BandMeter
	stopOnEnd bool
	now       func() time.Time

	mu        sync.Mutex
	consumers []Consumer
	done      chan struct{}
	doneOnce  *sync.Once

	ended atomic.Bool
	run   atomic.Uint64 // incremented by Start

	// Tick state, touched only by the tick.
	frame   Frame
	tickRun uint64
	base    time.Time
	total   time.Duration
}

// New wires player, sampler and sched together and registers an ended
// callback on player.
func New(player Player, sampler Sampler, sched *scheduler.Scheduler, opts Options) (*Visualization, error) {
	if player == nil || sampler == nil || sched == nil {
		return nil, errors.New("engine: player, sampler and scheduler are required")
	}
	v := &Visualization{
		player:    player,
		sampler:   sampler,
		scheduler: sched,
		stopOnEnd: opts.StopOnEnd,
		now:       opts.Now,
		done:      make(chan struct{}),
		doneOnce:  new(sync.Once),
	}
	if v.now == nil {
		v.now = time.Now
	}
	if len(opts.Bands) > 0 {
		v.meter = analysis.NewBandMeter(opts.Bands...)
	}
	player.OnEnded(func() { v.ended.Store(true) })
	return v, nil
}

// AddConsumer appends c. Consumers added while running see the next frame.
func (v *Visualization) AddConsumer(c Consumer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	// Copy so a tick iterating the old slice is unaffected.
	v.consumers = append(v.consumers[:len(v.consumers):len(v.consumers)], c)
}

// Start begins the render loop. Starting a running visualization returns an
// InvalidStateError.
func (v *Visualization) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.scheduler.Running() {
		return domain.NewInvalidStateError("visualization", "start", "Running")
	}
	select {
	case <-v.done:
		v.done = make(chan struct{})
		v.doneOnce = new(sync.Once)
	default:
	}

	v.ended.Store(false)
	v.run.Add(1)
	if err := v.scheduler.Start(v.tick); err != nil {
		return err
	}
	log.Infof("Engine: Visualization started")
	return nil
}

// Stop ends the render loop. It is idempotent and safe from a consumer.
func (v *Visualization) Stop() {
	v.scheduler.Stop()
	v.finish()
}

// Shutdown stops the loop and waits for a frame still being built on the
// scheduler's goroutine to finish, so consumers can be released afterwards.
// It must not be called from a consumer; use Stop there.
func (v *Visualization) Shutdown() {
	v.Stop()
	v.scheduler.Wait()
}

// Done is closed when the current run stops, either through Stop or because
// the source ended with StopOnEnd set.
func (v *Visualization) Done() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.done
}

// Running reports whether the loop is active.
func (v *Visualization) Running() bool {
	return v.scheduler.Running()
}

func (v *Visualization) finish() {
	v.mu.Lock()
	done, once := v.done, v.doneOnce
	v.mu.Unlock()
	once.Do(func() { close(done) })
}

// tick builds one frame and hands it to every consumer.
func (v *Visualization) tick(elapsed time.Duration) error {
	ended := v.ended.Swap(false)

	f := &v.frame
	if run := v.run.Load(); run != v.tickRun {
		v.tickRun = run
		v.base = v.now()
		v.total = 0
		f.Seq = 0
	}
	v.total += elapsed
	f.Seq++
	f.Elapsed = elapsed
	f.Time = v.base.Add(v.total)
	f.Spectrum = v.sampler.Sample()
	f.Bands = nil
	if v.meter != nil {
		f.Bands = v.meter.Measure(f.Spectrum)
	}
	f.Position = v.player.Position()
	f.State = v.player.State()

	v.mu.Lock()
	consumers := v.consumers
	v.mu.Unlock()

	var errs []error
	for _, c := range consumers {
		if err := c.Consume(f); err != nil {
			errs = append(errs, err)
		}
	}

	if ended && v.stopOnEnd {
		log.Infof("Engine: Source ended after %d frames, stopping", f.Seq)
		v.Stop()
	}
	return errors.Join(errs...)
}
