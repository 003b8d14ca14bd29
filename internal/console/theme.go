// Package console renders a conversation on the terminal and reads the
// operator's replies when a human is interrogated.
package console

import "github.com/charmbracelet/lipgloss"

// Theme defines all colors used on the console.
type Theme struct {
	Interrogator lipgloss.Color // interrogator questions
	Interrogated lipgloss.Color // interrogated answers
	Verdict      lipgloss.Color // final verdict
	Error        lipgloss.Color // degraded turns, failures
	Text         lipgloss.Color // primary text
	TextMuted    lipgloss.Color // labels, hints
	Border       lipgloss.Color // separators
}

// DarkTheme returns the default dark theme.
func DarkTheme() Theme {
	return Theme{
		Interrogator: lipgloss.Color("#fab283"),
		Interrogated: lipgloss.Color("#5c9cf5"),
		Verdict:      lipgloss.Color("#9d7cd8"),
		Error:        lipgloss.Color("#e06c75"),
		Text:         lipgloss.Color("#eeeeee"),
		TextMuted:    lipgloss.Color("#808080"),
		Border:       lipgloss.Color("#484848"),
	}
}

// LightTheme returns a light theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Interrogator: lipgloss.Color("#b35c00"),
		Interrogated: lipgloss.Color("#0550ae"),
		Verdict:      lipgloss.Color("#6639ba"),
		Error:        lipgloss.Color("#cf222e"),
		Text:         lipgloss.Color("#1f2328"),
		TextMuted:    lipgloss.Color("#656d76"),
		Border:       lipgloss.Color("#d0d7de"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// styles holds all lipgloss styles derived from a Theme.
type styles struct {
	title        lipgloss.Style
	rule         lipgloss.Style
	label        lipgloss.Style
	interrogator lipgloss.Style
	interrogated lipgloss.Style
	verdict      lipgloss.Style
	err          lipgloss.Style
	dim          lipgloss.Style
	text         lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title:        lipgloss.NewStyle().Bold(true).Foreground(t.Text),
		rule:         lipgloss.NewStyle().Foreground(t.Border),
		label:        lipgloss.NewStyle().Bold(true).Foreground(t.TextMuted),
		interrogator: lipgloss.NewStyle().Foreground(t.Interrogator),
		interrogated: lipgloss.NewStyle().Foreground(t.Interrogated),
		verdict:      lipgloss.NewStyle().Bold(true).Foreground(t.Verdict),
		err:          lipgloss.NewStyle().Foreground(t.Error),
		dim:          lipgloss.NewStyle().Foreground(t.TextMuted),
		text:         lipgloss.NewStyle().Foreground(t.Text),
	}
}
