// SPDX-License-Identifier: MIT
package scheduler

import (
	"sync"
	"time"
)

// FrameID identifies a pending frame request.
type FrameID uint64

// Driver is the host's display-refresh primitive. RequestFrame schedules fn
// to run once at the next refresh; CancelFrame withdraws a request that has
// not yet fired. Cancellation may be best effort.
type Driver interface {
	RequestFrame(fn func(now time.Time)) FrameID
	CancelFrame(id FrameID)
}

type request struct {
	id FrameID
	fn func(time.Time)
}

// TickerDriver emulates a display refresh with a time.Ticker. Requests made
// during a refresh fire on the following one. The ticker goroutine starts
// with the first request and stops on Close.
type TickerDriver struct {
	interval time.Duration

	mu       sync.Mutex
	next     FrameID
	pending  []request
	firing   []request
	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

// NewTickerDriver returns a driver refreshing refreshHz times per second.
func NewTickerDriver(refreshHz float64) *TickerDriver {
	if refreshHz <= 0 {
		refreshHz = 60
	}
	return &TickerDriver{interval: time.Duration(float64(time.Second) / refreshHz)}
}

// Interval returns the refresh period.
func (d *TickerDriver) Interval() time.Duration { return d.interval }

func (d *TickerDriver) RequestFrame(fn func(now time.Time)) FrameID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	id := d.next
	if d.closed {
		return id
	}
	d.pending = append(d.pending, request{id: id, fn: fn})

	if d.ticker == nil {
		d.ticker = time.NewTicker(d.interval)
		d.doneChan = make(chan struct{})
		d.wg.Add(1)
		go d.run(d.ticker, d.doneChan)
	}
	return id
}

func (d *TickerDriver) CancelFrame(id FrameID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, r := range d.pending {
		if r.id == id {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			return
		}
	}
}

func (d *TickerDriver) run(ticker *time.Ticker, done <-chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			d.fire(now)
		}
	}
}

// fire runs every request pending at the start of this refresh.
func (d *TickerDriver) fire(now time.Time) {
	d.mu.Lock()
	batch := append(d.firing[:0], d.pending...)
	d.pending = d.pending[:0]
	d.mu.Unlock()

	for _, r := range batch {
		r.fn(now)
	}

	d.mu.Lock()
	clear(batch)
	d.firing = batch[:0]
	d.mu.Unlock()
}

// Close stops the refresh goroutine and drops pending requests. It must not
// be called from inside a frame callback.
func (d *TickerDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.pending = nil
	ticker, done := d.ticker, d.doneChan
	d.ticker = nil
	d.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(done)
		d.wg.Wait()
	}
	return nil
}

// ManualDriver fires frames only when Advance is called. Tests use it as a
// deterministic display.
type ManualDriver struct {
	mu      sync.Mutex
	now     time.Time
	next    FrameID
	pending []request
}

// NewManualDriver returns a driver whose clock starts at start.
func NewManualDriver(start time.Time) *ManualDriver {
	return &ManualDriver{now: start}
}

func (d *ManualDriver) RequestFrame(fn func(now time.Time)) FrameID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.pending = append(d.pending, request{id: d.next, fn: fn})
	return d.next
}

func (d *ManualDriver) CancelFrame(id FrameID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.pending {
		if r.id == id {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			return
		}
	}
}

// Pending returns the number of outstanding requests.
func (d *ManualDriver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Advance moves the clock by dt and fires the requests that were pending
// before the call. It returns the number of callbacks run.
func (d *ManualDriver) Advance(dt time.Duration) int {
	d.mu.Lock()
	d.now = d.now.Add(dt)
	now := d.now
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, r := range batch {
		r.fn(now)
	}
	return len(batch)
}
