package repl

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/atinylittleshell/farcode/internal/agent"
	"github.com/atinylittleshell/farcode/internal/config"
	"github.com/atinylittleshell/farcode/internal/history"
	"github.com/atinylittleshell/farcode/internal/render"
	"github.com/atinylittleshell/farcode/internal/tools"
)

const testCatalog = `
default_provider: alpha
providers:
  - key: alpha
    name: Alpha
    api_key_env: ALPHA_KEY
    base_url: https://alpha.invalid/v1
    default_model: a-small
    models: [a-small, a-large]
  - key: beta
    name: Beta
    api_key_env: BETA_KEY
    base_url: https://beta.invalid/v1
    default_model: b-one
    models: [b-one, b-two]
`

type fakeProvider struct {
	name    string
	replies []*agent.ChatResponse
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) StreamingChatCompletion(ctx context.Context, req agent.ChatRequest, onContent agent.StreamCallback) (*agent.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return &agent.ChatResponse{Content: "ok"}, nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	if onContent != nil && reply.Content != "" {
		onContent(reply.Content)
	}
	return reply, nil
}

type staticTool struct{ name string }

func (s staticTool) Name() string                                   { return s.name }
func (s staticTool) Description() string                            { return "static" }
func (s staticTool) Parameters() map[string]any                     { return map[string]any{"type": "object"} }
func (s staticTool) Invoke(ctx context.Context, args string) string { return "done" }

type harness struct {
	repl       *REPL
	agent      *agent.Manager
	provider   *fakeProvider
	history    *history.HistoryManager
	output     *bytes.Buffer
	built      []string
	factoryErr error
}

// newHarness wires a REPL whose input is the given lines.
func newHarness(t *testing.T, input string) *harness {
	t.Helper()

	catalog, err := config.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	historyManager, err := history.NewHistoryManager(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = historyManager.Close() })

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(staticTool{name: "Shell"}, staticTool{name: "read_file"}))

	output := &bytes.Buffer{}
	renderer := render.New(output, func() int { return 100 })
	lineReader := render.NewLineReader(strings.NewReader(input))
	provider := &fakeProvider{name: "alpha"}

	manager := agent.NewManager(agent.Options{
		Logger:   zaptest.NewLogger(t),
		Provider: provider,
		Model:    "a-small",
		Tools:    registry,
		Prompter: render.NewTerminalPrompter(renderer, lineReader),
		History:  historyManager,
		Renderer: renderer,
		WorkDir:  t.TempDir(),
	})

	h := &harness{agent: manager, provider: provider, history: historyManager, output: output}

	r, err := New(Options{
		Logger:   zaptest.NewLogger(t),
		Agent:    manager,
		Catalog:  catalog,
		History:  historyManager,
		Renderer: renderer,
		Input:    lineReader,
		NewProvider: func(p *config.Provider) (agent.Provider, error) {
			if h.factoryErr != nil {
				return nil, h.factoryErr
			}
			h.built = append(h.built, p.Key)
			return &fakeProvider{name: p.Key}, nil
		},
		Version: "test",
		Interrupt: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithCancel(ctx)
		},
	})
	require.NoError(t, err)
	h.repl = r
	return h
}

func (h *harness) run(t *testing.T) string {
	t.Helper()
	require.NoError(t, h.repl.Run(context.Background()))
	return h.output.String()
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestRun_WelcomeAndGoodbyeOnEOF(t *testing.T) {
	h := newHarness(t, "")
	out := h.run(t)
	assert.Contains(t, out, "Welcome to farcode")
	assert.Contains(t, out, "alpha/a-small")
	assert.Contains(t, out, "Enter your query: ")
	assert.Contains(t, out, "Goodbye!")
}

func TestRun_ExitWords(t *testing.T) {
	for _, word := range []string{"exit", "QUIT", "/exit", "/quit"} {
		t.Run(word, func(t *testing.T) {
			h := newHarness(t, word+"\nhello\n")
			out := h.run(t)
			assert.Contains(t, out, "Goodbye!")
			assert.Equal(t, 0, h.provider.calls)
		})
	}
}

func TestRun_SendsMessagesToAgent(t *testing.T) {
	h := newHarness(t, "\n   \nhello\n")
	h.provider.replies = []*agent.ChatResponse{{Content: "hi back"}}

	out := h.run(t)
	assert.Equal(t, 1, h.provider.calls)
	assert.Contains(t, out, "hi back")
	assert.Equal(t, 2, h.agent.MessageCount())
}

func TestRun_ToolCallApprovalFromSameInput(t *testing.T) {
	h := newHarness(t, "list files\ny\n/history\n")
	h.provider.replies = []*agent.ChatResponse{
		{ToolCalls: []agent.ChatToolCall{{ID: "c1", Name: "Shell", Arguments: `{"command":"ls"}`}}},
		{Content: "listed"},
	}

	out := h.run(t)
	assert.Contains(t, out, "Do you want to allow 'Shell'?")
	assert.Contains(t, out, "listed")
	assert.Contains(t, out, "Recent Tool Executions:")
	assert.Contains(t, out, `{"command":"ls"}`)
}

func TestRun_DeniedToolCallShowsHint(t *testing.T) {
	h := newHarness(t, "delete stuff\nn\n")
	h.provider.replies = []*agent.ChatResponse{
		{ToolCalls: []agent.ChatToolCall{{ID: "c1", Name: "Shell", Arguments: `{"command":"ls"}`}}},
	}

	out := h.run(t)
	assert.Contains(t, out, "Tool call was denied by user.")
	assert.NotContains(t, out, "Error: ")
	assert.Equal(t, 0, h.agent.MessageCount())

	counts, err := h.history.CountByDecision()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[history.DecisionDenied])
}

func TestRun_ProviderErrorShowsHint(t *testing.T) {
	h := newHarness(t, "hello\n")
	h.provider.err = errors.New("error, status code: 429, message: Too Many Requests")

	out := h.run(t)
	assert.Contains(t, out, "Error: agent error:")
	assert.Contains(t, out, "Throttling error")
	assert.Equal(t, 0, h.agent.MessageCount())
}

func TestCommand_Help(t *testing.T) {
	h := newHarness(t, "/help\n")
	out := h.run(t)
	for _, name := range []string{"/help", "/model", "/providers", "/tools", "/status", "/clear", "/history", "/exit"} {
		assert.Contains(t, out, name)
	}
}

func TestCommand_UnknownSuggests(t *testing.T) {
	h := newHarness(t, "/provid\n/\n")
	out := h.run(t)
	assert.Contains(t, out, "Unknown command: /provid")
	assert.Contains(t, out, "Did you mean /providers?")
	assert.Contains(t, out, "Empty command")
}

func TestCommand_ModelDirect(t *testing.T) {
	h := newHarness(t, "/model beta b-two\n/status\n")
	out := h.run(t)

	assert.Equal(t, []string{"beta"}, h.built)
	assert.Equal(t, "beta", h.agent.ProviderName())
	assert.Equal(t, "b-two", h.agent.Model())
	assert.Contains(t, out, "Agent successfully updated with Beta/b-two")
	assert.Contains(t, out, "Provider: Beta")
	assert.Contains(t, out, "Model: b-two")
}

func TestCommand_ModelByNumber(t *testing.T) {
	h := newHarness(t, "/model 2 b-one\n")
	h.run(t)
	assert.Equal(t, "b-one", h.agent.Model())
}

func TestCommand_ModelErrors(t *testing.T) {
	h := newHarness(t, "/model beta\n/model 9 x\n/model gamma x\n/model bet x\n/model alpha a-lrg\n")
	out := h.run(t)

	assert.Contains(t, out, "Usage: /model <provider> <model_name>")
	assert.Contains(t, out, "Invalid provider number: 9. Valid range: 1-2")
	assert.Contains(t, out, "Unknown provider: gamma")
	assert.Contains(t, out, "Did you mean beta?")
	assert.Contains(t, out, "Unknown model: a-lrg")
	assert.Contains(t, out, "Did you mean a-large?")
	assert.Contains(t, out, "Available models for Alpha: a-small, a-large")
	assert.Empty(t, h.built)
	assert.Equal(t, "a-small", h.agent.Model())
}

func TestCommand_ModelInteractive(t *testing.T) {
	h := newHarness(t, "/model\nbeta\n5\n2\nx\n3\n2\n")
	out := h.run(t)

	assert.Contains(t, out, "[1] Alpha (alpha)")
	assert.Contains(t, out, "Enter provider number: ")
	assert.Contains(t, out, "Please enter a number corresponding to the provider")
	assert.Contains(t, out, "Invalid provider number. Please enter a number between 1 and 2")
	assert.Contains(t, out, "Selected provider: Beta (beta)")
	assert.Contains(t, out, "Enter model number: ")
	assert.Contains(t, out, "Please enter a number corresponding to the model")
	assert.Contains(t, out, "Invalid model number. Please enter a number between 1 and 2")
	assert.Equal(t, "beta", h.agent.ProviderName())
	assert.Equal(t, "b-two", h.agent.Model())
}

func TestCommand_SlashCancelsSelection(t *testing.T) {
	h := newHarness(t, "/model\n/status\nhello\n")
	h.run(t)
	assert.Equal(t, 1, h.provider.calls)
	assert.Equal(t, "a-small", h.agent.Model())
}

func TestCommand_ModelKeepsProviderOnFailure(t *testing.T) {
	h := newHarness(t, "/model beta b-one\n")
	h.factoryErr = errors.New("BETA_KEY environment variable is not set")

	out := h.run(t)
	assert.Contains(t, out, "Failed to update agent: BETA_KEY environment variable is not set")
	assert.Contains(t, out, "Keeping the previous configuration.")
	assert.Equal(t, "alpha", h.agent.ProviderName())
	assert.Equal(t, "a-small", h.agent.Model())
}

func TestCommand_ProvidersAndTools(t *testing.T) {
	h := newHarness(t, "/providers\n/tools\n")
	out := h.run(t)
	assert.Contains(t, out, "[2] Beta (beta)")
	assert.Contains(t, out, "• b-two")
	assert.Contains(t, out, "• Shell")
	assert.Contains(t, out, "• read_file")
}

func TestCommand_StatusAndClear(t *testing.T) {
	h := newHarness(t, "hello\n/status\n/clear\n")
	h.agent.Session().Approve("Shell")

	out := h.run(t)
	assert.Contains(t, out, "Conversation history: 2 messages")
	assert.Contains(t, out, "Approved tools: 1 tools")
	assert.Contains(t, out, "Conversation history cleared")
	assert.Equal(t, 0, h.agent.MessageCount())
	assert.True(t, h.agent.Session().IsApproved("Shell"))
}

func TestCommand_History(t *testing.T) {
	h := newHarness(t, "/history\n/history abc\n")
	out := h.run(t)
	assert.Contains(t, out, "No tool executions recorded yet")
	assert.Contains(t, out, "Usage: /history [count]")
}

func TestFormatHistoryEntry(t *testing.T) {
	h := newHarness(t, "")
	code := 3
	entry, err := h.history.StartExecution("id", "Shell", `{"command":"`+strings.Repeat("x", 100)+`"}`, "/w", history.DecisionApproved)
	require.NoError(t, err)
	entry, err = h.history.FinishExecution(entry, 0, &code, nil)
	require.NoError(t, err)

	line := formatHistoryEntry(entry)
	assert.Contains(t, line, "exit 3")
	assert.Contains(t, line, "Shell")
	assert.Contains(t, line, "...")

	denied, err := h.history.RecordDenial("id2", "read_file", "{}", "/w")
	require.NoError(t, err)
	assert.Contains(t, formatHistoryEntry(denied), "denied")
}

func TestClosestMatch(t *testing.T) {
	assert.Equal(t, "history", closestMatch("hist", commandNames))
	assert.Equal(t, "", closestMatch("zzz", commandNames))
	assert.Equal(t, "", closestMatch("", commandNames))
}
