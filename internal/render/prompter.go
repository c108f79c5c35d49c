package render

import (
	"context"
	"fmt"

	"github.com/atinylittleshell/farcode/internal/approval"
)

// TerminalPrompter asks for tool approval on the terminal.
type TerminalPrompter struct {
	renderer *Renderer
	input    *LineReader
}

func NewTerminalPrompter(renderer *Renderer, input *LineReader) *TerminalPrompter {
	return &TerminalPrompter{renderer: renderer, input: input}
}

func (p *TerminalPrompter) Prompt(ctx context.Context, req approval.Request) (string, error) {
	p.renderer.RenderToolCall(req)
	p.renderer.RenderQuestion(fmt.Sprintf(
		"Do you want to allow '%s'? (y/Y to approve, n/N to deny, a/A to approve for all future calls) [y]: ",
		req.Tool,
	))

	answer, err := p.input.ReadLine(ctx)
	if err != nil {
		fmt.Fprintln(p.renderer.Writer())
		return "", err
	}
	return answer, nil
}

func (p *TerminalPrompter) Announce(req approval.Request, event approval.Event) {
	switch event {
	case approval.EventCached:
		p.renderer.RenderToolCall(req)
		p.renderer.RenderSuccess(fmt.Sprintf("Using previously approved tool: %s", req.Tool))
	case approval.EventApprovedForSession:
		p.renderer.RenderSuccess(fmt.Sprintf("Approved '%s' for all future calls in this session.", req.Tool))
	case approval.EventDenied:
		p.renderer.RenderError(fmt.Sprintf("Denied '%s'. Skipping this tool call.", req.Tool))
	case approval.EventExecuting:
		p.renderer.RenderSuccess(fmt.Sprintf("Executing %s...", req.Tool))
	case approval.EventCompleted:
		p.renderer.RenderSuccess("Tool execution completed.")
	}
}
