// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"audioviz/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// DeviceListModel is the interactive picker behind `audioviz list -i`. It
// shows every host device and reports the chosen one on exit.
type DeviceListModel struct {
	query    func() ([]audio.Device, error)
	devices  []audio.Device
	selected int
	chosen   *audio.Device
	viewport viewport.Model
	ready    bool
	err      error
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

var (
	upKey     = key.NewBinding(key.WithKeys("up", "k"))
	downKey   = key.NewBinding(key.WithKeys("down", "j"))
	chooseKey = key.NewBinding(key.WithKeys("enter"))
	quitKey   = key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"))
)

// NewDeviceListModel creates a picker over the devices query returns,
// usually audio.HostDevices.
func NewDeviceListModel(query func() ([]audio.Device, error)) DeviceListModel {
	return DeviceListModel{query: query}
}

// Init fetches the device list.
func (m DeviceListModel) Init() tea.Cmd {
	query := m.query
	return func() tea.Msg {
		devices, err := query()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Update handles input and updates the model.
func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.viewport.SetContent(m.renderDevices())

	case devicesMsg:
		m.devices = msg.devices
		m.selected = 0
		m.viewport.SetContent(m.renderDevices())

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKey):
			return m, tea.Quit

		case key.Matches(msg, upKey):
			if m.selected > 0 {
				m.selected--
				m.viewport.SetContent(m.renderDevices())
			}

		case key.Matches(msg, downKey):
			if m.selected < len(m.devices)-1 {
				m.selected++
				m.viewport.SetContent(m.renderDevices())
			}

		case key.Matches(msg, chooseKey):
			if len(m.devices) > 0 {
				d := m.devices[m.selected]
				m.chosen = &d
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// Chosen returns the device picked with enter, if any.
func (m DeviceListModel) Chosen() (audio.Device, bool) {
	if m.chosen == nil {
		return audio.Device{}, false
	}
	return *m.chosen, true
}

// View renders the UI.
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	title := titleStyle.Render("Audio Devices")
	help := infoStyle.Render("↑/↓: Navigate • Enter: Select • q: Quit")
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list.
func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		kind := ""
		switch {
		case device.MaxInputChannels > 0 && device.MaxOutputChannels > 0:
			kind = "Input/Output"
		case device.MaxInputChannels > 0:
			kind = "Input"
		case device.MaxOutputChannels > 0:
			kind = "Output"
		}

		info := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, kind)
		info += fmt.Sprintf("    Channels in/out: %d/%d, %.0f Hz, latency %.1f-%.1f ms\n",
			device.MaxInputChannels, device.MaxOutputChannels, device.DefaultSampleRate,
			device.LowLatency, device.HighLatency)

		if i == m.selected {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

// PickDevice runs the picker full screen and returns the chosen device.
func PickDevice(query func() ([]audio.Device, error)) (audio.Device, bool, error) {
	final, err := tea.NewProgram(NewDeviceListModel(query), tea.WithAltScreen()).Run()
	if err != nil {
		return audio.Device{}, false, err
	}
	d, ok := final.(DeviceListModel).Chosen()
	return d, ok, nil
}
