// SPDX-License-Identifier: MIT

// Package render maps magnitude frames onto bar geometry and draws it onto
// a host surface.
package render

// Magnitudes is a read-only sequence of byte magnitudes. analysis.Spectrum
// satisfies it.
type Magnitudes interface {
	Len() int
	At(i int) uint8
}

// Bytes adapts a plain slice to Magnitudes.
type Bytes []uint8

func (b Bytes) Len() int       { return len(b) }
func (b Bytes) At(i int) uint8 { return b[i] }

// Bar is one rectangle in viewport coordinates. Y is the top edge with the
// origin at the top-left, so bars sit on the bottom of the viewport.
type Bar struct {
	X, Y          float64
	Width, Height float64
	Level         uint8
}

// BarRenderer turns a frame into evenly spaced bars across the viewport.
// Gap is the horizontal space in viewport units removed from the right of
// each bar; it never makes a bar narrower than zero.
type BarRenderer struct {
	Gap float64
}

// Render computes one bar per magnitude. Bar i starts at i·width/n, is
// width/n wide (less Gap) and magnitude/255·height tall. Render is pure: it
// reads m once, keeps nothing between calls and never mutates m.
func (r BarRenderer) Render(m Magnitudes, width, height float64) []Bar {
	return r.RenderInto(nil, m, width, height)
}

// RenderInto is Render appending into dst[:0], letting callers reuse a slice
// across frames.
func (r BarRenderer) RenderInto(dst []Bar, m Magnitudes, width, height float64) []Bar {
	dst = dst[:0]
	n := m.Len()
	if n == 0 || width <= 0 || height <= 0 {
		return dst
	}

	slot := width / float64(n)
	barWidth := max(0, slot-r.Gap)
	for i := range n {
		v := m.At(i)
		h := float64(v) / 255 * height
		dst = append(dst, Bar{
			X:      float64(i) * slot,
			Y:      height - h,
			Width:  barWidth,
			Height: h,
			Level:  v,
		})
	}
	return dst
}

// Draw clears the context's surface and fills one rectangle per bar, sized
// to the surface's current dimensions.
func (r BarRenderer) Draw(ctx *Context, m Magnitudes) {
	w, h := ctx.Surface.Size()
	ctx.bars = r.RenderInto(ctx.bars, m, w, h)

	ctx.Surface.Clear()
	for _, b := range ctx.bars {
		if b.Height > 0 {
			ctx.Surface.FillRect(b.X, b.Y, b.Width, b.Height, b.Level)
		}
	}
}
