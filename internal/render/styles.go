// Package render draws the REPL's terminal output: tool call panels, status
// messages and the loading indicator.
package render

import (
	"github.com/charmbracelet/lipgloss"
)

const (
	ColorCyan   = lipgloss.Color("12") // Agent header/footer, argument labels
	ColorYellow = lipgloss.Color("11") // Tool pending, panels
	ColorGreen  = lipgloss.Color("10") // Success
	ColorRed    = lipgloss.Color("9")  // Error
	ColorGray   = lipgloss.Color("8")  // Dim/secondary
)

const (
	SymbolExec          = "▶"
	SymbolToolPending   = "○"
	SymbolToolComplete  = "●"
	SymbolSuccess       = "✓"
	SymbolError         = "✗"
	SymbolSystemMessage = "→"
)

var (
	HeaderStyle = lipgloss.NewStyle().Foreground(ColorCyan)

	ExecStartStyle = lipgloss.NewStyle().Foreground(ColorYellow)

	ToolPendingStyle = lipgloss.NewStyle().Foreground(ColorYellow)

	SuccessStyle = lipgloss.NewStyle().Foreground(ColorGreen)

	ErrorStyle = lipgloss.NewStyle().Foreground(ColorRed)

	WarningStyle = lipgloss.NewStyle().Foreground(ColorYellow)

	DimStyle = lipgloss.NewStyle().Foreground(ColorGray)

	SystemMessageStyle = lipgloss.NewStyle().Foreground(ColorGray)

	// PanelStyle frames a tool call awaiting approval.
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorYellow).
			Padding(0, 1)

	ToolLabelStyle = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)

	ArgsLabelStyle = lipgloss.NewStyle().Foreground(ColorCyan).Bold(true)

	QuestionStyle = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
)

// StyledSymbol returns a symbol with appropriate styling applied
func StyledSymbol(symbol string, success bool) string {
	switch symbol {
	case SymbolExec:
		return ExecStartStyle.Render(symbol)
	case SymbolToolPending:
		return ToolPendingStyle.Render(symbol)
	case SymbolToolComplete:
		if success {
			return SuccessStyle.Render(symbol)
		}
		return ErrorStyle.Render(symbol)
	case SymbolSuccess:
		return SuccessStyle.Render(symbol)
	case SymbolError:
		return ErrorStyle.Render(symbol)
	case SymbolSystemMessage:
		return SystemMessageStyle.Render(symbol)
	default:
		return symbol
	}
}
