// SPDX-License-Identifier: MIT
package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int) Bytes {
	b := make(Bytes, n)
	for i := range b {
		b[i] = uint8(i)
	}
	return b
}

func TestRenderGeometry(t *testing.T) {
	m := ramp(256)
	bars := BarRenderer{}.Render(m, 512, 200)
	require.Len(t, bars, 256)

	for i, b := range bars {
		wantH := float64(m[i]) / 255 * 200
		assert.InDelta(t, float64(i)*2, b.X, 1e-9, "bar %d x", i)
		assert.InDelta(t, 2, b.Width, 1e-9, "bar %d width", i)
		assert.InDelta(t, wantH, b.Height, 1e-9, "bar %d height", i)
		assert.InDelta(t, 200-wantH, b.Y, 1e-9, "bar %d anchored to bottom", i)
		assert.Equal(t, m[i], b.Level)
	}
	assert.Zero(t, bars[0].Height)
	assert.InDelta(t, 200, BarRenderer{}.Render(Bytes{255}, 512, 200)[0].Height, 1e-9)
}

func TestRenderDoesNotMutateInput(t *testing.T) {
	m := ramp(64)
	orig := append(Bytes(nil), m...)
	BarRenderer{Gap: 1}.Render(m, 100, 50)
	assert.Equal(t, orig, m)
}

func TestRenderFollowsViewport(t *testing.T) {
	r := BarRenderer{}
	m := Bytes{255, 128}

	small := r.Render(m, 100, 50)
	large := r.Render(m, 400, 300)

	assert.InDelta(t, 50, small[0].Width, 1e-9)
	assert.InDelta(t, 200, large[0].Width, 1e-9)
	assert.InDelta(t, 300, large[0].Height, 1e-9)
	assert.InDelta(t, 200, large[1].X, 1e-9)
}

func TestRenderEmpty(t *testing.T) {
	r := BarRenderer{}
	assert.Empty(t, r.Render(Bytes{}, 100, 100))
	assert.Empty(t, r.Render(ramp(8), 0, 100))
	assert.Empty(t, r.Render(ramp(8), 100, -1))
}

func TestRenderGap(t *testing.T) {
	bars := BarRenderer{Gap: 1}.Render(ramp(4), 16, 10)
	assert.InDelta(t, 3, bars[0].Width, 1e-9)
	assert.InDelta(t, 4, bars[1].X, 1e-9, "gap does not shift slots")

	tight := BarRenderer{Gap: 10}.Render(ramp(4), 16, 10)
	assert.Zero(t, tight[0].Width)
}

func TestRenderIntoReusesSlice(t *testing.T) {
	r := BarRenderer{}
	dst := make([]Bar, 0, 32)
	out := r.RenderInto(dst, ramp(32), 64, 64)
	require.Len(t, out, 32)
	assert.Same(t, &dst[:1][0], &out[0])

	var m Magnitudes = ramp(32)
	allocs := testing.AllocsPerRun(100, func() {
		out = r.RenderInto(out, m, 64, 64)
	})
	assert.Zero(t, allocs)
}

func TestDrawFillsSurface(t *testing.T) {
	rec := &Recorder{Width: 40, Height: 10}
	ctx := NewContext(rec)
	r := BarRenderer{}

	r.Draw(ctx, Bytes{0, 255, 51, 0})
	require.Len(t, rec.Rects, 2, "zero-height bars are not filled")
	assert.Equal(t, Bar{X: 10, Y: 0, Width: 10, Height: 10, Level: 255}, rec.Rects[0])
	assert.InDelta(t, 2, rec.Rects[1].Height, 1e-9)

	rec.Width = 80
	r.Draw(ctx, Bytes{0, 255, 51, 0})
	assert.Equal(t, 2, rec.Clears)
	require.Len(t, rec.Rects, 2, "surface is cleared between frames")
	assert.InDelta(t, 20, rec.Rects[0].X, 1e-9)
}

func TestGridDraw(t *testing.T) {
	g := NewGrid(4, 2)
	BarRenderer{}.Draw(NewContext(g), Bytes{255, 0, 160, 64})

	lines := strings.Split(g.Plain(), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "█ ▂ ", lines[0])
	assert.Equal(t, "█ █▄", lines[1])
}

func TestGridColumnsShared(t *testing.T) {
	g := NewGrid(2, 1)
	BarRenderer{}.Draw(NewContext(g), Bytes{32, 255, 0, 128})
	assert.Equal(t, "█▄", g.Plain(), "tallest bar in a column wins")
}

func TestGridResize(t *testing.T) {
	g := NewGrid(2, 1)
	g.FillRect(0, 0, 2, 1, 255)
	g.Resize(3, 2)
	w, h := g.Size()
	assert.Equal(t, 3.0, w)
	assert.Equal(t, 2.0, h)
	assert.Equal(t, "   \n   ", g.Plain())

	empty := NewGrid(-1, 5)
	assert.Equal(t, "", empty.Plain())
}

func TestGridStringContainsBlocks(t *testing.T) {
	g := NewGrid(1, 1)
	g.FillRect(0, 0, 1, 1, 255)
	assert.Contains(t, g.String(), "█")
}
