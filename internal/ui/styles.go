package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Palette
	Primary   = lipgloss.Color("#7D56F4") // Indigo
	Secondary = lipgloss.Color("#00E5FF") // Cyan
	Success   = lipgloss.Color("#00C853") // Green
	Warning   = lipgloss.Color("#FFD600") // Gold
	ErrorCol  = lipgloss.Color("#FF1744") // Red
	Text      = lipgloss.Color("#C0CAF5") // Soft White/Blue
	Muted     = lipgloss.Color("#565F89") // Muted Blue Gray

	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(Primary).
			Bold(true).
			Padding(0, 2).
			MarginTop(1).
			MarginLeft(1)

	SubHeaderStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true).
			MarginLeft(2).
			MarginBottom(1)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(1, 2).
			Margin(0, 1).
			Width(72)

	RosterStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(Muted).
			PaddingRight(2).
			Width(18)

	OnlineDotStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	SelectedPeerStyle = lipgloss.NewStyle().
				Foreground(Primary).
				Bold(true)

	UnreadStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	OwnMessageStyle = lipgloss.NewStyle().
			Foreground(Secondary)

	PeerMessageStyle = lipgloss.NewStyle().
				Foreground(Text)

	StatusTagStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Faint(true)

	InputStyle = lipgloss.NewStyle().
			Foreground(Text).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	AlertStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ErrorCol).
			Padding(0, 1).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ErrorCol)

	FooterStyle = lipgloss.NewStyle().
			Foreground(Muted).
			MarginLeft(2).
			MarginTop(1).
			Italic(true)
)

func SuccessStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(Success)
}
