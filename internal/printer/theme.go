package printer

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors used for terminal output.
type Theme struct {
	Name string

	Text    string
	Muted   string
	Faint   string
	Accent  string
	Success string
	Warning string
	Danger  string
	Info    string

	// StatusColors maps a VRChat presence status to a badge color.
	StatusColors map[string]string
}

// Styles returns Lipgloss styles for this theme.
func (t Theme) Styles() Styles {
	return Styles{
		Text:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.Text)),
		MutedText:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		FaintText:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Faint)),
		AccentText:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)),
		SuccessText: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Success)).Bold(true),
		WarningText: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning)),
		DangerText:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Danger)).Bold(true),
		InfoText:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Info)),
		Name:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.Text)).Bold(true),

		statusColors: t.StatusColors,
		muted:        t.Muted,
	}
}

// Styles contains pre-built Lipgloss styles for the theme.
type Styles struct {
	Text        lipgloss.Style
	MutedText   lipgloss.Style
	FaintText   lipgloss.Style
	AccentText  lipgloss.Style
	SuccessText lipgloss.Style
	WarningText lipgloss.Style
	DangerText  lipgloss.Style
	InfoText    lipgloss.Style
	Name        lipgloss.Style

	statusColors map[string]string
	muted        string
}

// StatusStyle returns the badge style for a presence status.
func (s Styles) StatusStyle(status string) lipgloss.Style {
	color := s.statusColors[strings.ToLower(status)]
	if color == "" {
		color = s.muted
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
}

var themes = map[string]Theme{
	"Nightfox": nightfoxTheme(),
	"Kanagawa": kanagawaTheme(),
	"Slate":    slateTheme(),
}

var themeOrder = []string{"Nightfox", "Kanagawa", "Slate"}

// DefaultTheme is used when no theme is configured.
const DefaultTheme = "Nightfox"

// GetTheme returns a theme by name, case-insensitively. Unknown names
// fall back to Nightfox.
func GetTheme(name string) Theme {
	for _, n := range themeOrder {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return themes[n]
		}
	}
	return nightfoxTheme()
}

// ThemeNames returns available theme names.
func ThemeNames() []string {
	return append([]string(nil), themeOrder...)
}

func nightfoxTheme() Theme {
	// Nightfox palette: https://github.com/EdenEast/nightfox.nvim
	return Theme{
		Name: "Nightfox",

		Text:    "#cdcecf", // fg1
		Muted:   "#738091", // comment
		Faint:   "#71839b", // fg3
		Accent:  "#719cd6", // blue
		Success: "#81b29a", // green
		Warning: "#dbc074", // yellow
		Danger:  "#c94f6d", // red
		Info:    "#63cdcf", // cyan

		StatusColors: map[string]string{
			"join me": "#63cdcf", // cyan
			"active":  "#81b29a", // green
			"ask me":  "#f4a261", // orange
			"busy":    "#c94f6d", // red
			"offline": "#738091", // comment
		},
	}
}

func kanagawaTheme() Theme {
	// Kanagawa palette: https://github.com/rebelot/kanagawa.nvim
	return Theme{
		Name: "Kanagawa",

		Text:    "#DCD7BA", // fujiWhite
		Muted:   "#C8C093", // oldWhite
		Faint:   "#727169", // fujiGray
		Accent:  "#7E9CD8", // crystalBlue
		Success: "#98BB6C", // springGreen
		Warning: "#E6C384", // carpYellow
		Danger:  "#E46876", // waveRed
		Info:    "#7FB4CA", // springBlue

		StatusColors: map[string]string{
			"join me": "#7FB4CA", // springBlue
			"active":  "#98BB6C", // springGreen
			"ask me":  "#E6C384", // carpYellow
			"busy":    "#E46876", // waveRed
			"offline": "#727169", // fujiGray
		},
	}
}

func slateTheme() Theme {
	// Tailwind CSS Slate/Sky palette: https://tailwindcss.com/docs/colors
	return Theme{
		Name: "Slate",

		Text:    "#f1f5f9", // slate-100
		Muted:   "#94a3b8", // slate-400
		Faint:   "#64748b", // slate-500
		Accent:  "#38bdf8", // sky-400
		Success: "#22c55e", // green-500
		Warning: "#f59e0b", // amber-500
		Danger:  "#ef4444", // red-500
		Info:    "#06b6d4", // cyan-500

		StatusColors: map[string]string{
			"join me": "#38bdf8", // sky-400
			"active":  "#22c55e", // green-500
			"ask me":  "#f59e0b", // amber-500
			"busy":    "#dc2626", // red-600
			"offline": "#64748b", // slate-500
		},
	}
}
