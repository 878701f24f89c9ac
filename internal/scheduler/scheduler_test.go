// SPDX-License-Identifier: MIT
package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"audioviz/internal/domain"
	"audioviz/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameInterval = 16 * time.Millisecond

func newManual() (*Scheduler, *ManualDriver) {
	d := NewManualDriver(time.Unix(1000, 0))
	return New(d), d
}

func TestTicksOncePerFrame(t *testing.T) {
	s, d := newManual()
	var elapsed []time.Duration
	require.NoError(t, s.Start(func(dt time.Duration) error {
		elapsed = append(elapsed, dt)
		return nil
	}))
	assert.True(t, s.Running())

	for range 3 {
		assert.Equal(t, 1, d.Advance(frameInterval))
	}

	assert.Equal(t, []time.Duration{0, frameInterval, frameInterval}, elapsed)
	assert.Equal(t, uint64(3), s.Frames())
	assert.Equal(t, 1, d.Pending(), "exactly one frame is outstanding")
}

func TestStopCancelsPendingFrame(t *testing.T) {
	s, d := newManual()
	var ticks int
	require.NoError(t, s.Start(func(time.Duration) error { ticks++; return nil }))
	d.Advance(frameInterval)

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	assert.Zero(t, d.Pending())

	d.Advance(frameInterval)
	d.Advance(frameInterval)
	assert.Equal(t, 1, ticks, "no tick after Stop")
}

func TestStartWhileRunning(t *testing.T) {
	s, d := newManual()
	var first, second int
	require.NoError(t, s.Start(func(time.Duration) error { first++; return nil }))

	err := s.Start(func(time.Duration) error { second++; return nil })
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 1, d.Pending(), "only one loop is scheduled")

	d.Advance(frameInterval)
	d.Advance(frameInterval)
	assert.Equal(t, 2, first)
	assert.Zero(t, second)
}

func TestStartRejectsNilTick(t *testing.T) {
	s, d := newManual()
	err := s.Start(nil)
	assert.ErrorIs(t, err, domain.ErrConfig)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "tick", cfgErr.Field)
	assert.False(t, s.Running())
	assert.Zero(t, d.Pending())
}

func TestTickErrorDoesNotStopLoop(t *testing.T) {
	s, d := newManual()
	var reported []error
	s.OnError(func(err error) { reported = append(reported, err) })

	boom := errors.New("boom")
	var ticks int
	require.NoError(t, s.Start(func(time.Duration) error {
		ticks++
		if ticks == 2 {
			return boom
		}
		return nil
	}))

	for range 4 {
		d.Advance(frameInterval)
	}

	assert.Equal(t, 4, ticks, "frames after the failing one still run")
	require.Len(t, reported, 1)

	var tickErr *domain.RenderTickError
	require.ErrorAs(t, reported[0], &tickErr)
	assert.Equal(t, uint64(2), tickErr.Frame)
	assert.ErrorIs(t, reported[0], boom)
	assert.ErrorIs(t, reported[0], domain.ErrRenderTick)
}

func TestTickPanicIsRecovered(t *testing.T) {
	s, d := newManual()
	var reported []error
	s.OnError(func(err error) { reported = append(reported, err) })

	var ticks int
	require.NoError(t, s.Start(func(time.Duration) error {
		ticks++
		if ticks == 1 {
			panic("render exploded")
		}
		return nil
	}))

	d.Advance(frameInterval)
	d.Advance(frameInterval)

	assert.Equal(t, 2, ticks)
	require.Len(t, reported, 1)
	var tickErr *domain.RenderTickError
	require.ErrorAs(t, reported[0], &tickErr)
	assert.Equal(t, "render exploded", tickErr.Panic)
}

func TestStopFromInsideTick(t *testing.T) {
	s, d := newManual()
	var ticks int
	require.NoError(t, s.Start(func(time.Duration) error {
		ticks++
		if ticks == 3 {
			s.Stop()
		}
		return nil
	}))

	for range 6 {
		d.Advance(frameInterval)
	}
	assert.Equal(t, 3, ticks)
	assert.False(t, s.Running())
	assert.Zero(t, d.Pending())
}

func TestRestartResetsElapsed(t *testing.T) {
	s, d := newManual()
	var elapsed []time.Duration
	tick := func(dt time.Duration) error { elapsed = append(elapsed, dt); return nil }

	require.NoError(t, s.Start(tick))
	d.Advance(frameInterval)
	d.Advance(frameInterval)
	s.Stop()

	d.Advance(time.Second)
	require.NoError(t, s.Start(tick))
	d.Advance(frameInterval)

	assert.Equal(t, []time.Duration{0, frameInterval, 0}, elapsed)
}

// lossyDriver ignores cancellation, as some hosts only cancel best effort.
type lossyDriver struct{ *ManualDriver }

func (lossyDriver) CancelFrame(FrameID) {}

func TestStaleFrameIsIgnored(t *testing.T) {
	d := lossyDriver{NewManualDriver(time.Unix(0, 0))}
	s := New(d)

	var ticks int
	tick := func(time.Duration) error { ticks++; return nil }

	require.NoError(t, s.Start(tick))
	s.Stop()
	require.NoError(t, s.Start(tick))
	require.Equal(t, 2, d.Pending(), "the cancelled frame is still queued")

	d.Advance(frameInterval)
	assert.Equal(t, 1, ticks, "only the current run ticks")
	assert.Equal(t, 1, d.Pending())

	s.Stop()
	d.Advance(frameInterval)
	assert.Equal(t, 1, ticks)
}

func TestTickerDriverLoop(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	d := NewTickerDriver(200)
	s := New(d)

	var ticks atomic.Int32
	done := make(chan struct{})
	require.NoError(t, s.Start(func(time.Duration) error {
		if ticks.Add(1) == 5 {
			close(done)
		}
		return nil
	}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ticks")
	}

	s.Stop()
	time.Sleep(10 * time.Millisecond) // let a tick that passed the gate before Stop finish
	stopped := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, ticks.Load(), "no tick begins after Stop")
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}

func TestTickerDriverNoOverlap(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	d := NewTickerDriver(1000)
	defer d.Close()
	s := New(d)

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	wg.Add(10)
	var ticks atomic.Int32
	require.NoError(t, s.Start(func(time.Duration) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(3 * time.Millisecond) // slower than the refresh interval
		active.Add(-1)
		if ticks.Add(1) <= 10 {
			wg.Done()
		}
		return nil
	}))

	wg.Wait()
	s.Stop()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestWaitBlocksUntilRunningTickReturns(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	d := NewTickerDriver(1000)
	defer d.Close()
	s := New(d)

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once
	require.NoError(t, s.Start(func(time.Duration) error {
		once.Do(func() {
			close(entered)
			<-release
			finished.Store(true)
		})
		return nil
	}))
	<-entered

	s.Stop()
	assert.False(t, s.Running())
	assert.False(t, finished.Load(), "Stop returns while another goroutine is inside a tick")

	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("Wait returned while the tick was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the tick finished")
	}
	assert.True(t, finished.Load())
}

func TestWaitOnIdleScheduler(t *testing.T) {
	s, _ := newManual()
	s.Wait()
	require.NoError(t, s.Start(func(time.Duration) error { return nil }))
	s.Stop()
	s.Wait()
	assert.False(t, s.Running())
}

func TestTickerDriverCancel(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	d := NewTickerDriver(500)
	var fired atomic.Bool
	id := d.RequestFrame(func(time.Time) { fired.Store(true) })
	d.CancelFrame(id)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired.Load())
	assert.Equal(t, 2*time.Millisecond, d.Interval())
	require.NoError(t, d.Close())

	// Requests after Close are dropped.
	d.RequestFrame(func(time.Time) { fired.Store(true) })
	time.Sleep(10 * time.Millisecond)
	assert.False(t, fired.Load())
}
