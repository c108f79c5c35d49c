// Package tools holds the actions the agent may request. Every tool reports
// failures as text so the model can react to them.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// ErrorPrefix starts every failure message a tool returns.
const ErrorPrefix = "Error: "

// Tool is one callable action offered to the model.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments object.
	Parameters() map[string]any
	// Invoke runs the tool with the raw argument text from the model.
	Invoke(ctx context.Context, args string) string
}

// Previewer is implemented by tools that can render their arguments more
// readably than the raw text for the approval panel.
type Previewer interface {
	Preview(args string) string
}

// Outcome is the result of an invocation with the details the audit log
// keeps.
type Outcome struct {
	Text     string
	ExitCode *int
	Err      error
}

// OutcomeInvoker is implemented by tools that know more about how a call
// ended than their text result shows.
type OutcomeInvoker interface {
	InvokeOutcome(ctx context.Context, args string) Outcome
}

// Run invokes tool and reports the outcome. Tools that only return text are
// considered failed when the text starts with ErrorPrefix.
func Run(ctx context.Context, tool Tool, args string) Outcome {
	if invoker, ok := tool.(OutcomeInvoker); ok {
		return invoker.InvokeOutcome(ctx, args)
	}

	text := tool.Invoke(ctx, args)
	outcome := Outcome{Text: text}
	if strings.HasPrefix(text, ErrorPrefix) {
		outcome.Err = toolError(strings.TrimPrefix(text, ErrorPrefix))
	}
	return outcome
}

// Preview returns the text shown in the approval panel for a call.
func Preview(tool Tool, args string) string {
	if previewer, ok := tool.(Previewer); ok {
		return previewer.Preview(args)
	}
	return args
}

type toolError string

func (e toolError) Error() string { return string(e) }

func errorText(format string, a ...any) string {
	return ErrorPrefix + fmt.Sprintf(format, a...)
}

// Registry is the ordered set of tools offered to the model.
type Registry struct {
	tools []Tool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds tools in order. A name can only be registered once.
func (r *Registry) Register(tools ...Tool) error {
	for _, tool := range tools {
		if r.Get(tool.Name()) != nil {
			return fmt.Errorf("tool '%s' already registered", tool.Name())
		}
		r.tools = append(r.tools, tool)
	}
	return nil
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	tool, _ := lo.Find(r.tools, func(t Tool) bool { return t.Name() == name })
	return tool
}

func (r *Registry) Tools() []Tool {
	return append([]Tool(nil), r.tools...)
}

func (r *Registry) Names() []string {
	return lo.Map(r.tools, func(t Tool, _ int) string { return t.Name() })
}

func (r *Registry) Len() int {
	return len(r.tools)
}
