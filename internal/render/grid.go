// SPDX-License-Identifier: MIT
package render

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Vertical eighth blocks, index = filled eighths of a cell.
var blocks = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Pre-built styles so String does not allocate a style per cell.
var (
	lowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	midStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	highStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))
)

type cell struct {
	eighths uint8
	level   uint8
}

// Grid is a terminal Surface of Cols x Rows character cells. One surface
// unit is one cell; partial cell heights are drawn with eighth blocks.
type Grid struct {
	cols, rows int
	cells      []cell
}

// NewGrid returns an empty grid. Non-positive dimensions give an empty grid.
func NewGrid(cols, rows int) *Grid {
	g := &Grid{}
	g.Resize(cols, rows)
	return g
}

// Resize changes the grid dimensions and clears it.
func (g *Grid) Resize(cols, rows int) {
	g.cols, g.rows = max(0, cols), max(0, rows)
	if n := g.cols * g.rows; cap(g.cells) >= n {
		g.cells = g.cells[:n]
	} else {
		g.cells = make([]cell, n)
	}
	g.Clear()
}

func (g *Grid) Size() (float64, float64) { return float64(g.cols), float64(g.rows) }

func (g *Grid) Clear() { clear(g.cells) }

// FillRect fills every column the rectangle covers for at least half its
// width. Where bars share a column the tallest one wins.
func (g *Grid) FillRect(x, y, width, height float64, level uint8) {
	if width <= 0 || height <= 0 {
		return
	}
	need := min(width, 1) / 2
	top, bottom := y, y+height

	first := max(0, int(math.Floor(x)))
	last := min(g.cols-1, int(math.Ceil(x+width))-1)
	for c := first; c <= last; c++ {
		if math.Min(x+width, float64(c+1))-math.Max(x, float64(c)) < need {
			continue
		}
		for r := range g.rows {
			cover := math.Min(bottom, float64(r+1)) - math.Max(top, float64(r))
			if cover <= 0 {
				continue
			}
			e := uint8(math.Round(min(cover, 1) * 8))
			i := r*g.cols + c
			if e > g.cells[i].eighths {
				g.cells[i] = cell{eighths: e, level: max(level, g.cells[i].level)}
			}
		}
	}
}

// Plain returns the grid as unstyled text, one line per row.
func (g *Grid) Plain() string {
	return g.text(func(r rune, _ uint8) string { return string(r) })
}

// String renders the grid with a level-based color gradient.
func (g *Grid) String() string {
	return g.text(func(r rune, level uint8) string {
		if r == ' ' {
			return " "
		}
		switch {
		case level > 190:
			return highStyle.Render(string(r))
		case level > 115:
			return midStyle.Render(string(r))
		default:
			return lowStyle.Render(string(r))
		}
	})
}

func (g *Grid) text(draw func(rune, uint8) string) string {
	var sb strings.Builder
	for r := range g.rows {
		if r > 0 {
			sb.WriteByte('\n')
		}
		for c := range g.cols {
			cl := g.cells[r*g.cols+c]
			sb.WriteString(draw(blocks[cl.eighths], cl.level))
		}
	}
	return sb.String()
}
