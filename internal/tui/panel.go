// Package tui is the terminal control surface: a device picker and a live
// control panel for a running engine.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"iocapture/internal/audio"
	"iocapture/internal/meter"
)

// Controller is the part of audio.Engine the panel drives.
type Controller interface {
	Stats() audio.Stats
	Device() audio.Device
	RecordingDestination() string
	SetRecordingDestination(path string) error
	SetRecordingEnabled(enabled bool) error
	SetLoopbackEnabled(enabled bool)
	LastError() error
}

const (
	meterWidth   = 40
	meterFloorDB = -60.0
)

type tickMsg time.Time

// PanelModel shows the engine's state, counters and levels, and toggles
// recording (r) and loopback (l).
type PanelModel struct {
	ctrl     Controller
	levels   meter.Source
	interval time.Duration
	next     func() string // Destination for a take after the current one.

	stats  audio.Stats
	lv     meter.Levels
	device audio.Device
	dest   string
	err    error
}

// NewPanelModel returns a panel refreshing every interval. levels may be nil.
func NewPanelModel(ctrl Controller, levels meter.Source, interval time.Duration) PanelModel {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	m := PanelModel{ctrl: ctrl, levels: levels, interval: interval}
	m.refresh()
	return m
}

// WithDestinations makes the record key start a new take at next() once the
// previous take has been finalised. Without it, recording can be started once.
func (m PanelModel) WithDestinations(next func() string) PanelModel {
	m.next = next
	return m
}

func (m PanelModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the refresh ticker.
func (m PanelModel) Init() tea.Cmd {
	return m.tick()
}

func (m PanelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		return m, m.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKey):
			return m, tea.Quit
		case key.Matches(msg, recordKey):
			m.err = m.toggleRecording()
			m.refresh()
		case key.Matches(msg, loopbackKey):
			m.ctrl.SetLoopbackEnabled(!m.stats.Loopback)
			m.refresh()
		}
	}
	return m, nil
}

func (m *PanelModel) toggleRecording() error {
	if m.stats.Recording {
		return m.ctrl.SetRecordingEnabled(false)
	}
	err := m.ctrl.SetRecordingEnabled(true)
	if m.next == nil || !errors.Is(err, audio.ErrInvalidState) {
		return err
	}
	if err := m.ctrl.SetRecordingDestination(m.next()); err != nil {
		return err
	}
	return m.ctrl.SetRecordingEnabled(true)
}

func (m *PanelModel) refresh() {
	m.stats = m.ctrl.Stats()
	m.device = m.ctrl.Device()
	m.dest = m.ctrl.RecordingDestination()
	if m.err == nil {
		m.err = m.ctrl.LastError()
	}
	if m.levels != nil {
		m.levels.Snapshot(&m.lv)
	}
}

// View renders the panel.
func (m PanelModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("iocapture"))
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Device:    %s\n", m.device.Name)
	fmt.Fprintf(&sb, "State:     %s\n", m.stats.State)
	fmt.Fprintf(&sb, "Recording: %s", onOff(m.stats.Recording))
	if m.dest != "" {
		fmt.Fprintf(&sb, "  -> %s", m.dest)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Loopback:  %s\n\n", onOff(m.stats.Loopback))

	fmt.Fprintf(&sb, "Cycles %d  Frames %d  Written %d\n", m.stats.Cycles, m.stats.Frames, m.stats.SinkWritten)
	drops := fmt.Sprintf("Dropped: sink %d  handler %d  overflow %d  underflow %d",
		m.stats.SinkDropped, m.stats.DispatchDropped, m.stats.InputOverflows, m.stats.OutputUnderflows)
	if m.stats.SinkDropped+m.stats.DispatchDropped+m.stats.InputOverflows+m.stats.OutputUnderflows > 0 {
		drops = alertStyle.Render(drops)
	}
	sb.WriteString(drops)
	sb.WriteString("\n\n")

	for ch := range m.lv.Peak {
		fmt.Fprintf(&sb, "ch%-2d %s %6.1f dB\n", ch+1, bar(m.lv.Peak[ch]), clampDB(meter.DBFS(m.lv.Peak[ch])))
	}

	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(alertStyle.Render("Error: " + m.err.Error()))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("r: Record • l: Loopback • q: Quit"))
	return sb.String()
}

func onOff(b bool) string {
	if b {
		return highlightStyle.Render("ON")
	}
	return "off"
}

func clampDB(db float64) float64 {
	if math.IsInf(db, -1) || db < meterFloorDB {
		return meterFloorDB
	}
	return db
}

// bar draws a level on a dB scale from meterFloorDB to 0.
func bar(level float64) string {
	n := int((clampDB(meter.DBFS(level)) - meterFloorDB) / -meterFloorDB * meterWidth)
	n = max(0, min(meterWidth, n))
	return "[" + meterStyle.Render(strings.Repeat("█", n)) + strings.Repeat(" ", meterWidth-n) + "]"
}

// RunPanel shows the control panel until the user quits or ctx is done.
// next names the file for each take after the first; it may be nil.
func RunPanel(ctx context.Context, ctrl Controller, levels meter.Source, next func() string) error {
	m := NewPanelModel(ctrl, levels, 0).WithDestinations(next)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
