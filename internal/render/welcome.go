package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// WelcomeInfo contains information to display in the welcome screen.
type WelcomeInfo struct {
	Provider string
	Model    string
	Version  string
	// MCPServers is the number of MCP servers that connected.
	MCPServers int
}

// tips is the list of tips to display in the welcome screen.
// A "tip of the day" is selected based on the current date.
var tips = []string{
	"answer 'a' at an approval prompt to trust a tool for the rest of the session",
	"use /model to switch provider and model",
	"use /tools to see what the agent can call",
	"use /history to review recent tool executions",
	"use /clear to reset the conversation",
	"shell commands run without a shell: no pipes, redirection or chaining",
	"add MCP servers to ~/.farcode/settings.json to give the agent more tools",
	"set sandbox.allowedCommands in settings.json to change what the agent may run",
	"set FARCODE_LOG_LEVEL=debug to trace sandbox decisions in ~/.farcode/farcode.log",
}

var farcodeLogo = []string{
	" ___              _     ",
	"| __|_ _ _ _ __ ___  __| |___ ",
	"| _/ _` | '_/ _/ _ \\/ _` / -_)",
	"|_|\\__,_|_| \\__\\___/\\__,_\\___|",
}

// getTipOfTheDay returns a tip based on the current date.
func getTipOfTheDay(now time.Time) string {
	if len(tips) == 0 {
		return ""
	}
	return tips[now.YearDay()%len(tips)]
}

// RenderWelcome renders the welcome screen to the given writer.
func RenderWelcome(w io.Writer, info WelcomeInfo, termWidth int) {
	titleStyle := lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	logoStyle := lipgloss.NewStyle().Foreground(ColorYellow)
	labelStyle := lipgloss.NewStyle().Foreground(ColorGray)
	valueStyle := lipgloss.NewStyle().Foreground(ColorYellow)
	dimStyle := lipgloss.NewStyle().Foreground(ColorGray).Italic(true)

	var output strings.Builder
	output.WriteString("\n")

	logoWidth := lipgloss.Width(strings.Join(farcodeLogo, "\n"))
	if termWidth >= logoWidth {
		for _, line := range farcodeLogo {
			output.WriteString(logoStyle.Render(line) + "\n")
		}
		output.WriteString("\n")
	}

	output.WriteString(titleStyle.Render("Welcome to farcode, a coding agent that asks before it acts.") + "\n")

	if info.Version != "" {
		output.WriteString(labelStyle.Render("version:  ") + valueStyle.Render(info.Version) + "\n")
	}
	model := dimStyle.Render("not configured")
	if info.Model != "" {
		model = valueStyle.Render(info.Provider + "/" + info.Model)
	}
	output.WriteString(labelStyle.Render("model:    ") + model + "\n")
	if info.MCPServers > 0 {
		output.WriteString(labelStyle.Render("mcp:      ") + valueStyle.Render(fmt.Sprintf("%d server(s)", info.MCPServers)) + "\n")
	}

	output.WriteString("\n")
	output.WriteString(lipgloss.NewStyle().Foreground(ColorYellow).Render("Type 'exit' or 'quit' to stop the conversation.") + "\n")
	output.WriteString(lipgloss.NewStyle().Foreground(ColorCyan).Render("Type '/help' to see available commands.") + "\n")

	if tip := getTipOfTheDay(time.Now()); tip != "" {
		output.WriteString(dimStyle.Render("tip: "+tip) + "\n")
	}
	output.WriteString("\n")

	fmt.Fprint(w, output.String())
}
