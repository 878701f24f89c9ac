// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"time"

	"audioviz/internal/audio"
	"audioviz/internal/log"
	"audioviz/internal/render"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// seekStep is how far the arrow keys move the playback position.
const seekStep = 5 * time.Second

// Rows used by everything but the bar grid: title, blank, status, progress, help.
const chromeRows = 6

// Player is the playback control surface of the visualizer.
// *audio.Source implements it.
type Player interface {
	Play() error
	Pause()
	Seek(pos time.Duration) error
	State() audio.State
	Position() time.Duration
	Duration() (time.Duration, bool)
}

type keyMap struct {
	Toggle  key.Binding
	Back    key.Binding
	Forward key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Back, k.Forward, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultKeys = keyMap{
	Toggle:  key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "play/pause")),
	Back:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "-5s")),
	Forward: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "+5s")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

// Options configures a VisualizerModel.
type Options struct {
	Title string
	Gap   float64 // Columns between bars.

	// Width and Height fix the bar grid size in cells instead of following
	// the terminal. Zero follows the terminal.
	Width, Height int
}

// VisualizerModel is the Bubble Tea model for the spectrum display.
type VisualizerModel struct {
	player   Player
	feed     *Feed
	opts     Options
	keys     keyMap
	help     help.Model
	progress progress.Model
	renderer render.BarRenderer
	grid     *render.Grid
	ctx      *render.Context

	width, height int
	frame         FrameMsg
	err           error
	done          bool
}

// NewVisualizerModel creates a model controlling player and drawing the
// frames delivered through feed. feed may be nil when frames are sent by
// other means.
func NewVisualizerModel(player Player, feed *Feed, opts Options) VisualizerModel {
	grid := render.NewGrid(opts.Width, opts.Height)
	return VisualizerModel{
		player:   player,
		feed:     feed,
		opts:     opts,
		keys:     defaultKeys,
		help:     help.New(),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		renderer: render.BarRenderer{Gap: opts.Gap},
		grid:     grid,
		ctx:      render.NewContext(grid),
	}
}

// Init implements tea.Model.
func (m VisualizerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m VisualizerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()

	case FrameMsg:
		m.frame = msg
		m.renderer.Draw(m.ctx, render.Bytes(msg.Bins))
		if m.feed != nil {
			m.feed.Ack()
		}

	case DoneMsg:
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Toggle):
			if m.player.State() == audio.StatePlaying {
				m.player.Pause()
			} else if err := m.player.Play(); err != nil {
				m.err = err
			}

		case key.Matches(msg, m.keys.Back):
			m.seek(-seekStep)

		case key.Matches(msg, m.keys.Forward):
			m.seek(seekStep)
		}
	}
	return m, nil
}

func (m *VisualizerModel) seek(delta time.Duration) {
	pos := max(0, m.player.Position()+delta)
	if err := m.player.Seek(pos); err != nil {
		m.err = err
		log.Debugf("TUI: Seek failed: %v", err)
		return
	}
	m.err = nil
}

// resize fits the grid to the terminal unless a fixed size was requested.
func (m *VisualizerModel) resize() {
	cols, rows := m.opts.Width, m.opts.Height
	if cols == 0 {
		cols = m.width
	}
	if rows == 0 {
		rows = max(1, m.height-chromeRows)
	}
	m.grid.Resize(cols, rows)
	m.progress.Width = max(10, cols)
	m.help.Width = m.width
	if m.frame.Bins != nil {
		m.renderer.Draw(m.ctx, render.Bytes(m.frame.Bins))
	}
}

// View implements tea.Model.
func (m VisualizerModel) View() string {
	if m.width == 0 && m.opts.Width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.opts.Title))
	sb.WriteString("\n\n")
	sb.WriteString(m.grid.String())
	sb.WriteString("\n")
	sb.WriteString(m.status())
	sb.WriteString("\n")
	sb.WriteString(m.progress.ViewAs(m.fraction()))
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m VisualizerModel) status() string {
	state := m.player.State()
	line := fmt.Sprintf("%-8s %s", state, formatPosition(m.player.Position()))
	if d, ok := m.player.Duration(); ok {
		line += " / " + formatPosition(d)
	} else {
		line += " (live)"
	}
	if m.err != nil {
		return infoStyle.Render(line) + "  " + errorStyle.Render(m.err.Error())
	}
	if state == audio.StatePlaying {
		return highlightStyle.Render(line)
	}
	return infoStyle.Render(line)
}

func (m VisualizerModel) fraction() float64 {
	d, ok := m.player.Duration()
	if !ok || d <= 0 {
		return 0
	}
	return min(1, float64(m.player.Position())/float64(d))
}

func formatPosition(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// Program builds the full screen program for m and binds m's feed to it.
func Program(m VisualizerModel) *tea.Program {
	p := tea.NewProgram(m, tea.WithAltScreen())
	if m.feed != nil {
		m.feed.Bind(p.Send)
	}
	return p
}

// RunVisualizer runs the model until the user quits or DoneMsg arrives.
func RunVisualizer(m VisualizerModel) error {
	p := Program(m)
	if m.feed != nil {
		defer m.feed.Bind(nil)
	}
	_, err := p.Run()
	return err
}
