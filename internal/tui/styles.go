package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	alertStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F25D94")).
			Bold(true)

	meterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))
)

var (
	quitKey     = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	upKey       = key.NewBinding(key.WithKeys("up", "k"))
	downKey     = key.NewBinding(key.WithKeys("down", "j"))
	enterKey    = key.NewBinding(key.WithKeys("enter"))
	backKey     = key.NewBinding(key.WithKeys("esc"))
	recordKey   = key.NewBinding(key.WithKeys("r"))
	loopbackKey = key.NewBinding(key.WithKeys("l"))
)
