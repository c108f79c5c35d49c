package agent

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/atinylittleshell/farcode/internal/approval"
	"github.com/atinylittleshell/farcode/internal/history"
	"github.com/atinylittleshell/farcode/internal/render"
	"github.com/atinylittleshell/farcode/internal/tools"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxIterations is the default maximum number of model calls per user
// message.
const DefaultMaxIterations = 100

//go:embed system_prompt.md
var DefaultSystemPrompt string

// timeNow is a variable that can be overridden for testing.
var timeNow = time.Now

// Recorder is the audit log of tool calls.
type Recorder interface {
	StartExecution(requestID, tool, arguments, directory, decision string) (*history.ExecutionEntry, error)
	FinishExecution(entry *history.ExecutionEntry, duration time.Duration, exitCode *int, execErr error) (*history.ExecutionEntry, error)
	RecordDenial(requestID, tool, arguments, directory string) (*history.ExecutionEntry, error)
}

// Options configures a Manager. Session and Prompter are required.
type Options struct {
	Logger       *zap.Logger
	Provider     Provider
	Model        string
	SystemPrompt string
	Tools        *tools.Registry
	Session      *approval.Session
	Prompter     approval.Prompter
	Indicator    approval.Indicator
	History      Recorder
	Renderer     *render.Renderer
	// WorkDir is recorded with every history entry.
	WorkDir       string
	MaxIterations int
}

// Manager holds the conversation and runs the agentic loop.
type Manager struct {
	logger        *zap.Logger
	provider      Provider
	model         string
	systemPrompt  string
	registry      *tools.Registry
	session       *approval.Session
	prompter      approval.Prompter
	indicator     approval.Indicator
	history       Recorder
	renderer      *render.Renderer
	workDir       string
	maxIterations int

	conversation []ChatMessage
}

func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewRegistry()
	}
	if opts.Session == nil {
		opts.Session = approval.NewSession()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	return &Manager{
		logger:        opts.Logger,
		provider:      opts.Provider,
		model:         opts.Model,
		systemPrompt:  opts.SystemPrompt,
		registry:      opts.Tools,
		session:       opts.Session,
		prompter:      opts.Prompter,
		indicator:     opts.Indicator,
		history:       opts.History,
		renderer:      opts.Renderer,
		workDir:       opts.WorkDir,
		maxIterations: opts.MaxIterations,
	}
}

// SetProvider switches the model used for the following messages. The
// conversation is kept.
func (m *Manager) SetProvider(provider Provider, model string) {
	m.provider = provider
	m.model = model
}

// ProviderName returns the current provider's name, or "" if none is set.
func (m *Manager) ProviderName() string {
	if m.provider == nil {
		return ""
	}
	return m.provider.Name()
}

func (m *Manager) Model() string {
	return m.model
}

func (m *Manager) Tools() *tools.Registry {
	return m.registry
}

func (m *Manager) Session() *approval.Session {
	return m.session
}

// Conversation returns a copy of the conversation so far.
func (m *Manager) Conversation() []ChatMessage {
	return append([]ChatMessage(nil), m.conversation...)
}

func (m *Manager) MessageCount() int {
	return len(m.conversation)
}

// ClearConversation drops the conversation. Session approvals are kept.
func (m *Manager) ClearConversation() {
	m.conversation = nil
}

// SendMessage sends a user message and runs the loop until the model answers
// without tool calls. On any error, including a denied tool call, the
// conversation is restored to its state before the message.
func (m *Manager) SendMessage(ctx context.Context, message string) error {
	if m.provider == nil {
		return ErrNoProvider
	}

	checkpoint := len(m.conversation)
	m.conversation = append(m.conversation, ChatMessage{Role: "user", Content: message})

	err := m.runLoop(ctx)
	if err != nil {
		m.conversation = m.conversation[:checkpoint]
		m.logger.Info("agent turn failed, conversation rolled back",
			zap.Int("messages", checkpoint),
			zap.Error(err))
	}
	return err
}

func (m *Manager) runLoop(ctx context.Context) error {
	startTime := timeNow()
	var totalInputTokens, totalOutputTokens int

	if m.renderer != nil {
		m.renderer.RenderAgentHeader(m.provider.Name(), m.model)
	}
	renderFooter := func() {
		if m.renderer != nil {
			m.renderer.RenderAgentFooter(totalInputTokens, totalOutputTokens, timeNow().Sub(startTime))
		}
	}

	turn := newTurn(m)

	for iteration := 0; iteration < m.maxIterations; iteration++ {
		request := ChatRequest{
			Model:    m.model,
			Messages: m.buildMessages(),
			Tools:    m.chatTools(),
		}

		m.startIndicator("Thinking")
		response, err := m.provider.StreamingChatCompletion(ctx, request, func(content string) {
			// Stop blocks until the spinner line is cleared.
			m.stopIndicator()
			if m.renderer != nil {
				m.renderer.RenderAgentText(content)
			}
		})
		m.stopIndicator()

		if err != nil {
			m.logger.Warn("model request failed",
				zap.String("provider", m.provider.Name()),
				zap.String("model", m.model),
				zap.Error(err))
			renderFooter()
			return fmt.Errorf("agent error: %w", err)
		}

		if response.Usage != nil {
			totalInputTokens += response.Usage.PromptTokens
			totalOutputTokens += response.Usage.CompletionTokens
		}

		m.conversation = append(m.conversation, ChatMessage{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		if len(response.ToolCalls) == 0 {
			m.logger.Debug("agent interaction",
				zap.String("provider", m.provider.Name()),
				zap.String("model", m.model),
				zap.Int("iterations", iteration+1),
				zap.Duration("duration", timeNow().Sub(startTime)))
			renderFooter()
			return nil
		}

		for _, call := range response.ToolCalls {
			if err := turn.execute(ctx, call); err != nil {
				renderFooter()
				return err
			}
		}
	}

	renderFooter()
	return fmt.Errorf("%w (%d)", ErrMaxIterations, m.maxIterations)
}

func (m *Manager) buildMessages() []ChatMessage {
	messages := make([]ChatMessage, 0, len(m.conversation)+1)
	if m.systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: m.systemPrompt})
	}
	return append(messages, m.conversation...)
}

func (m *Manager) chatTools() []ChatTool {
	registered := m.registry.Tools()
	chatTools := make([]ChatTool, 0, len(registered))
	for _, tool := range registered {
		chatTools = append(chatTools, ChatTool{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return chatTools
}

func (m *Manager) startIndicator(label string) {
	if m.indicator != nil {
		m.indicator.Start(label)
	}
}

func (m *Manager) stopIndicator() {
	if m.indicator != nil {
		m.indicator.Stop()
	}
}

// turn is the state of one user message: the gate that authorizes its tool
// calls and the decisions it made.
type turn struct {
	m         *Manager
	gate      *approval.Gate
	decisions map[string]approval.Decision
}

func newTurn(m *Manager) *turn {
	t := &turn{
		m:         m,
		decisions: make(map[string]approval.Decision),
	}
	t.gate = approval.NewGate(m.session, m.prompter, m.indicator,
		approval.WithLogger(m.logger),
		approval.WithObserver(t.observe))
	return t
}

func (t *turn) observe(req approval.Request, decision approval.Decision) {
	t.decisions[req.ID] = decision
	if decision == approval.Denied && t.m.history != nil {
		if _, err := t.m.history.RecordDenial(req.ID, req.Tool, req.Args, t.m.workDir); err != nil {
			t.m.logger.Warn("failed to record denied tool call", zap.Error(err))
		}
	}
}

// execute authorizes and runs one tool call and appends its result to the
// conversation. Only a denial is returned as an error.
func (t *turn) execute(ctx context.Context, call ChatToolCall) error {
	m := t.m

	tool := m.registry.Get(call.Name)
	if tool == nil {
		m.logger.Warn("model requested unknown tool", zap.String("tool", call.Name))
		m.appendToolResult(call, fmt.Sprintf("%sUnknown tool '%s'", tools.ErrorPrefix, call.Name))
		return nil
	}

	req := approval.Request{
		ID:      uuid.NewString(),
		Tool:    call.Name,
		Args:    call.Arguments,
		Preview: tools.Preview(tool, call.Arguments),
	}

	var outcome tools.Outcome
	var elapsed time.Duration
	_, err := t.gate.Run(ctx, req, func(ctx context.Context) error {
		entry := t.startEntry(req)
		start := timeNow()
		outcome = tools.Run(ctx, tool, call.Arguments)
		elapsed = timeNow().Sub(start)
		t.finishEntry(entry, elapsed, outcome)
		return nil
	})
	if err != nil {
		var denied *approval.DeniedError
		if errors.As(err, &denied) {
			return err
		}
		return fmt.Errorf("tool execution error: %w", err)
	}

	if outcome.Err != nil {
		m.logger.Debug("tool call failed", zap.String("tool", call.Name), zap.Error(outcome.Err))
	}
	if m.renderer != nil {
		success := outcome.Err == nil && (outcome.ExitCode == nil || *outcome.ExitCode == 0)
		m.renderer.RenderToolResult(call.Name, elapsed, success)
	}

	m.appendToolResult(call, outcome.Text)
	return nil
}

func (t *turn) startEntry(req approval.Request) *history.ExecutionEntry {
	if t.m.history == nil {
		return nil
	}
	decision := history.DecisionApproved
	if t.decisions[req.ID] == approval.ApprovedForSession || t.m.session.IsApproved(req.Tool) {
		decision = history.DecisionApprovedForSession
	}
	entry, err := t.m.history.StartExecution(req.ID, req.Tool, req.Args, t.m.workDir, decision)
	if err != nil {
		t.m.logger.Warn("failed to record tool execution", zap.Error(err))
		return nil
	}
	return entry
}

func (t *turn) finishEntry(entry *history.ExecutionEntry, elapsed time.Duration, outcome tools.Outcome) {
	if entry == nil {
		return
	}
	if _, err := t.m.history.FinishExecution(entry, elapsed, outcome.ExitCode, outcome.Err); err != nil {
		t.m.logger.Warn("failed to record tool result", zap.Error(err))
	}
}

func (m *Manager) appendToolResult(call ChatToolCall, text string) {
	if text == "" {
		text = "(no output)"
	}
	m.conversation = append(m.conversation, ChatMessage{
		Role:       "tool",
		Content:    text,
		Name:       call.Name,
		ToolCallID: call.ID,
	})
}
