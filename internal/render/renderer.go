package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/atinylittleshell/farcode/internal/approval"
	"github.com/muesli/reflow/wordwrap"
)

// maxArgsLines bounds how much of a tool's arguments the approval panel shows.
const maxArgsLines = 20

// Renderer writes styled REPL output.
type Renderer struct {
	writer    io.Writer
	termWidth func() int
}

func New(writer io.Writer, termWidth func() int) *Renderer {
	return &Renderer{
		writer:    writer,
		termWidth: termWidth,
	}
}

func (r *Renderer) Writer() io.Writer {
	return r.writer
}

// RenderToolCall draws the panel shown before a tool runs.
func (r *Renderer) RenderToolCall(req approval.Request) {
	args := req.Preview
	if args == "" {
		args = req.Args
	}

	// Border and padding take four columns.
	width := r.getTerminalWidth() - 4
	if width < 20 {
		width = 20
	}

	body := ToolLabelStyle.Render("Tool Call:") + " " + req.Tool + "\n" +
		ArgsLabelStyle.Render("Arguments:") + " " + clampLines(wordwrap.String(args, width-len("Arguments: ")), maxArgsLines)

	fmt.Fprintln(r.writer, PanelStyle.Render(body))
}

// RenderQuestion prints text without a trailing newline, for input prompts.
func (r *Renderer) RenderQuestion(text string) {
	fmt.Fprint(r.writer, QuestionStyle.Render(text))
}

func (r *Renderer) RenderSuccess(message string) {
	fmt.Fprintln(r.writer, SuccessStyle.Render(message))
}

func (r *Renderer) RenderError(message string) {
	fmt.Fprintln(r.writer, ErrorStyle.Render(message))
}

// RenderWarning prints a hint in the warning color.
func (r *Renderer) RenderWarning(message string) {
	fmt.Fprintln(r.writer, WarningStyle.Render(message))
}

// RenderSystemMessage renders a system/status message with → prefix
func (r *Renderer) RenderSystemMessage(message string) {
	fmt.Fprintln(r.writer, SystemMessageStyle.Render(fmt.Sprintf("%s %s", SymbolSystemMessage, message)))
}

// RenderAgentHeader renders the line printed before a model response.
func (r *Renderer) RenderAgentHeader(provider, model string) {
	fmt.Fprintln(r.writer, HeaderStyle.Render(fmt.Sprintf("── %s · %s ───", provider, model)))
}

// RenderAgentFooter renders token usage and elapsed time for a turn.
func (r *Renderer) RenderAgentFooter(inputTokens, outputTokens int, duration time.Duration) {
	fmt.Fprintln(r.writer)
	fmt.Fprintln(r.writer, HeaderStyle.Render(fmt.Sprintf("── %d in · %d out · %.1fs ───", inputTokens, outputTokens, duration.Seconds())))
}

// RenderAgentText renders agent response text (no special formatting)
func (r *Renderer) RenderAgentText(text string) {
	fmt.Fprint(r.writer, text)
}

// RenderToolResult prints a one-line status for a finished tool call.
func (r *Renderer) RenderToolResult(toolName string, duration time.Duration, success bool) {
	symbol := SymbolSuccess
	if !success {
		symbol = SymbolError
	}
	fmt.Fprintf(r.writer, "%s %s %s %s\n",
		StyledSymbol(SymbolToolComplete, success),
		toolName,
		StyledSymbol(symbol, success),
		DimStyle.Render(fmt.Sprintf("(%.1fs)", duration.Seconds())),
	)
}

// getTerminalWidth returns the current terminal width, with a sensible default
func (r *Renderer) getTerminalWidth() int {
	if r.termWidth != nil {
		width := r.termWidth()
		if width > 0 {
			return width
		}
	}
	return 80
}

func clampLines(s string, max int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	return strings.Join(lines[:max], "\n") + "\n" + DimStyle.Render(fmt.Sprintf("... (%d more lines)", len(lines)-max))
}
