package viz

import "github.com/charmbracelet/lipgloss"

// Theme is the color scheme of the panel title and the Braille canvas.
type Theme struct {
	Name      string
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	// Dots colors lit Braille dots.
	Dots  lipgloss.Color
	Muted lipgloss.Color
}

var Themes = []Theme{
	{
		Name:      "phosphor",
		Primary:   lipgloss.Color("#00ff66"),
		Secondary: lipgloss.Color("#00aa44"),
		Dots:      lipgloss.Color("#33ff88"),
		Muted:     lipgloss.Color("#005522"),
	},
	{
		Name:      "cyberpunk",
		Primary:   lipgloss.Color("#ff00ff"),
		Secondary: lipgloss.Color("#00ffff"),
		Dots:      lipgloss.Color("#ff66ff"),
		Muted:     lipgloss.Color("#666666"),
	},
	{
		Name:      "ember",
		Primary:   lipgloss.Color("#ff6b6b"),
		Secondary: lipgloss.Color("#feca57"),
		Dots:      lipgloss.Color("#ff9f43"),
		Muted:     lipgloss.Color("#8b6b8c"),
	},
	{
		Name:      "ice",
		Primary:   lipgloss.Color("#00a8cc"),
		Secondary: lipgloss.Color("#e0f0ff"),
		Dots:      lipgloss.Color("#aee6ff"),
		Muted:     lipgloss.Color("#4488aa"),
	},
	{
		Name:      "mono",
		Primary:   lipgloss.Color("#ffffff"),
		Secondary: lipgloss.Color("#888888"),
		Dots:      lipgloss.Color("#ffffff"),
		Muted:     lipgloss.Color("#555555"),
	},
}

// ThemeIndex returns the index of the named theme, or 0.
func ThemeIndex(name string) int {
	for i, t := range Themes {
		if t.Name == name {
			return i
		}
	}
	return 0
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}
