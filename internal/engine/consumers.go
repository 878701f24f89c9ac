// SPDX-License-Identifier: MIT
package engine

import (
	"audioviz/internal/render"
	"audioviz/internal/transport"
)

// Bars draws each frame's spectrum as bars onto ctx.
func Bars(r render.BarRenderer, ctx *render.Context) Consumer {
	return ConsumerFunc(func(f *Frame) error {
		r.Draw(ctx, f.Spectrum)
		return nil
	})
}

// Publisher converts frames to their wire form and sends them. The wire
// frame and its buffers are reused, so it must be used by one visualization.
type Publisher struct {
	t     transport.Transport
	out   transport.Frame
	bins  []uint8
	bands []transport.Band
}

// Publish returns a consumer sending every frame to t.
func Publish(t transport.Transport) *Publisher {
	return &Publisher{t: t}
}

// Consume implements Consumer.
func (p *Publisher) Consume(f *Frame) error {
	n := f.Spectrum.Len()
	if cap(p.bins) < n {
		p.bins = make([]uint8, n)
	}
	p.bins = p.bins[:n]
	f.Spectrum.CopyTo(p.bins)

	p.bands = p.bands[:0]
	for _, b := range f.Bands {
		p.bands = append(p.bands, transport.Band{Name: b.Name, Level: b.Level})
	}

	p.out = transport.Frame{
		Seq:        f.Seq,
		Timestamp:  f.Time.UnixNano(),
		Position:   f.Position.Seconds(),
		State:      f.State.String(),
		FFTSize:    f.Spectrum.FFTSize(),
		SampleRate: f.Spectrum.SampleRate(),
		Bins:       p.bins,
		Bands:      p.bands,
	}
	if len(p.bands) == 0 {
		p.out.Bands = nil
	}
	return p.t.Send(&p.out)
}
