package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"iocapture/internal/audio"
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

var sampleRates = []float64{44100, 48000, 88200, 96000}

// Selection is the device and rate picked in the device list.
type Selection struct {
	Device     audio.Device
	SampleRate float64
}

// DeviceListModel lists input devices and lets the user pick one along with
// a sample rate.
type DeviceListModel struct {
	host          audio.Host
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	sampleRateIndex int
	selection       *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a device list backed by host.
func NewDeviceListModel(host audio.Host) DeviceListModel {
	return DeviceListModel{host: host, activeScreen: ListScreen}
}

// Init fetches the device list.
func (m DeviceListModel) Init() tea.Cmd {
	host := m.host
	return func() tea.Msg {
		devices, err := host.Devices()
		if err != nil {
			return errMsg{err}
		}
		inputs := devices[:0:0]
		for _, d := range devices {
			if d.MaxInputChannels > 0 {
				inputs = append(inputs, d)
			}
		}
		return devicesMsg{inputs}
	}
}

// Selected returns the confirmed selection, if any.
func (m DeviceListModel) Selected() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, quitKey) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, upKey):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, downKey):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, enterKey):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
					m.sampleRateIndex = rateIndex(m.devices[m.selectedIndex].DefaultSampleRate)
				}
			}

		case ConfigScreen:
			switch {
			case key.Matches(msg, backKey):
				m.activeScreen = ListScreen
			case key.Matches(msg, upKey):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
				}
			case key.Matches(msg, downKey):
				if m.sampleRateIndex < len(sampleRates)-1 {
					m.sampleRateIndex++
				}
			case key.Matches(msg, enterKey):
				m.selection = &Selection{
					Device:     m.devices[m.selectedIndex],
					SampleRate: sampleRates[m.sampleRateIndex],
				}
				return m, tea.Quit
			}
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the UI
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Audio Device List")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Select • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		deviceType := "Input"
		if device.MaxOutputChannels > 0 {
			deviceType = "Input/Output"
		}

		info := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, deviceType)
		info += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		info += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configure Device: %s\n\nSample Rate:\n", m.devices[m.selectedIndex].Name)

	for i, rate := range sampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func rateIndex(rate float64) int {
	for i, r := range sampleRates {
		if r == rate {
			return i
		}
	}
	return 0
}

// PickDevice runs the device list full screen and returns the user's
// choice. ok is false if the user quit without choosing.
func PickDevice(host audio.Host) (sel Selection, ok bool, err error) {
	final, err := tea.NewProgram(NewDeviceListModel(host), tea.WithAltScreen()).Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok = final.(DeviceListModel).Selected()
	return sel, ok, nil
}
