// SPDX-License-Identifier: MIT
package render

// Surface is a host drawing target. Coordinates are in surface units with
// the origin at the top-left.
type Surface interface {
	Size() (width, height float64)
	Clear()
	FillRect(x, y, width, height float64, level uint8)
}

// Context is the drawing context passed to renderers each frame. It owns
// scratch geometry reused between Draw calls; bars from one frame are never
// read by the next.
type Context struct {
	Surface Surface

	bars []Bar
}

// NewContext returns a context drawing onto s.
func NewContext(s Surface) *Context {
	return &Context{Surface: s}
}

// Recorder is a Surface that records fill calls. It is useful for hosts that
// forward draw commands elsewhere and in tests.
type Recorder struct {
	Width, Height float64
	Rects         []Bar
	Clears        int
}

func (r *Recorder) Size() (float64, float64) { return r.Width, r.Height }

func (r *Recorder) Clear() {
	r.Rects = r.Rects[:0]
	r.Clears++
}

func (r *Recorder) FillRect(x, y, width, height float64, level uint8) {
	r.Rects = append(r.Rects, Bar{X: x, Y: y, Width: width, Height: height, Level: level})
}
