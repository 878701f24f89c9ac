// SPDX-License-Identifier: MIT
package tui

import (
	"sync/atomic"
	"time"

	"audioviz/internal/analysis"
	"audioviz/internal/audio"
	"audioviz/internal/engine"

	tea "github.com/charmbracelet/bubbletea"
)

// FrameMsg carries a copy of one visualization frame into the program.
type FrameMsg struct {
	Seq      uint64
	Bins     []uint8
	Bands    []analysis.BandLevel
	Position time.Duration
	State    audio.State
}

// DoneMsg tells the model the visualization has stopped.
type DoneMsg struct{}

// Feed forwards frames from the render loop to a running program. Frames
// arriving while the previous one has not been drawn yet are dropped, so a
// slow terminal never holds up the loop.
type Feed struct {
	send    atomic.Pointer[func(tea.Msg)]
	pending atomic.Bool
	dropped atomic.Uint64
}

// NewFeed returns an unbound feed. Frames are discarded until Bind.
func NewFeed() *Feed {
	return &Feed{}
}

// Bind routes frames to send, usually (*tea.Program).Send. nil unbinds.
func (f *Feed) Bind(send func(tea.Msg)) {
	if send == nil {
		f.send.Store(nil)
		return
	}
	f.send.Store(&send)
}

// Consume implements engine.Consumer.
func (f *Feed) Consume(fr *engine.Frame) error {
	send := f.send.Load()
	if send == nil {
		return nil
	}
	if !f.pending.CompareAndSwap(false, true) {
		f.dropped.Add(1)
		return nil
	}

	msg := FrameMsg{
		Seq:      fr.Seq,
		Bins:     fr.Spectrum.Bytes(),
		Position: fr.Position,
		State:    fr.State,
	}
	if len(fr.Bands) > 0 {
		msg.Bands = append([]analysis.BandLevel(nil), fr.Bands...)
	}
	(*send)(msg)
	return nil
}

// Ack marks the last frame as drawn.
func (f *Feed) Ack() { f.pending.Store(false) }

// Dropped returns the number of frames skipped while the program was busy.
func (f *Feed) Dropped() uint64 { return f.dropped.Load() }

var _ engine.Consumer = (*Feed)(nil)
