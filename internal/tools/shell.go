package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/atinylittleshell/farcode/internal/sandbox"
)

// ShellToolName is the name the command sandbox is offered under.
const ShellToolName = "Shell"

// ShellTool runs single commands through the command sandbox.
type ShellTool struct {
	sandbox *sandbox.Sandbox
}

func NewShellTool(sb *sandbox.Sandbox) *ShellTool {
	return &ShellTool{sandbox: sb}
}

func (t *ShellTool) Name() string { return ShellToolName }

func (t *ShellTool) Description() string {
	return "Execute a single shell command with security safeguards in place. " +
		"The command runs without a shell: pipes, redirection, chaining and substitution are rejected. " +
		"Only allow-listed programs may run and path arguments must stay inside the allowed directories."
}

func (t *ShellTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"command": stringParam("The command line to execute, e.g. 'ls -la src'"),
	}, "command")
}

// commandFromArgs accepts either {"command": "..."} or the bare command
// line, which some models send for single-argument tools.
func commandFromArgs(args string) (string, bool) {
	trimmed := strings.TrimSpace(args)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed, true
	}

	var parsed struct {
		Command *string `json:"command"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil || parsed.Command == nil {
		return "", false
	}
	return *parsed.Command, true
}

// Preview shows the command as it will be executed when it validates, and
// the raw text otherwise.
func (t *ShellTool) Preview(args string) string {
	command, ok := commandFromArgs(args)
	if !ok {
		return args
	}
	req, err := t.sandbox.Check(command)
	if err != nil {
		return command
	}
	return req.String()
}

func (t *ShellTool) Invoke(ctx context.Context, args string) string {
	return t.InvokeOutcome(ctx, args).Text
}

func (t *ShellTool) InvokeOutcome(ctx context.Context, args string) Outcome {
	command, ok := commandFromArgs(args)
	if !ok {
		err := toolError("Shell tool requires a 'command' argument as a string")
		return Outcome{Text: ErrorPrefix + err.Error(), Err: err}
	}

	result, err := t.sandbox.Execute(ctx, command)
	if err != nil {
		return Outcome{Text: ErrorPrefix + err.Error(), Err: err}
	}

	exitCode := result.ExitCode
	return Outcome{Text: result.Output, ExitCode: &exitCode}
}
