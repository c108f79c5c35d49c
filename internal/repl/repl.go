// Package repl runs farcode's interactive loop: it reads user input, handles
// slash commands and hands everything else to the agent.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/atinylittleshell/farcode/internal/agent"
	"github.com/atinylittleshell/farcode/internal/config"
	"github.com/atinylittleshell/farcode/internal/history"
	"github.com/atinylittleshell/farcode/internal/render"
)

// ErrExit is returned when the user requests to exit the REPL.
var ErrExit = errors.New("exit requested")

// HistoryReader is the part of the history store used by /history.
type HistoryReader interface {
	GetRecentEntries(tool string, limit int) ([]history.ExecutionEntry, error)
}

// ProviderFactory builds a provider for a catalog entry.
type ProviderFactory func(p *config.Provider) (agent.Provider, error)

type Options struct {
	Logger      *zap.Logger
	Agent       *agent.Manager
	Catalog     *config.Catalog
	History     HistoryReader
	Renderer    *render.Renderer
	Input       *render.LineReader
	NewProvider ProviderFactory
	Version     string
	MCPServers  int
	TermWidth   func() int
	// Interrupt scopes a context to one agent turn so Ctrl-C cancels the
	// turn instead of the process. Defaults to os.Interrupt handling.
	Interrupt func(ctx context.Context) (context.Context, context.CancelFunc)
}

// selectionStep tracks the interactive /model flow.
type selectionStep int

const (
	selectNone selectionStep = iota
	selectProvider
	selectModel
)

type REPL struct {
	logger      *zap.Logger
	agent       *agent.Manager
	catalog     *config.Catalog
	history     HistoryReader
	renderer    *render.Renderer
	input       *render.LineReader
	newProvider ProviderFactory
	version     string
	mcpServers  int
	termWidth   func() int
	interrupt   func(ctx context.Context) (context.Context, context.CancelFunc)

	step             selectionStep
	selectedProvider *config.Provider
}

func New(opts Options) (*REPL, error) {
	if opts.Agent == nil {
		return nil, errors.New("repl requires an agent")
	}
	if opts.Catalog == nil {
		return nil, errors.New("repl requires a provider catalog")
	}
	if opts.Renderer == nil || opts.Input == nil {
		return nil, errors.New("repl requires a renderer and an input reader")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewProvider == nil {
		opts.NewProvider = agent.NewProvider
	}
	if opts.Interrupt == nil {
		opts.Interrupt = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		}
	}

	return &REPL{
		logger:      opts.Logger,
		agent:       opts.Agent,
		catalog:     opts.Catalog,
		history:     opts.History,
		renderer:    opts.Renderer,
		input:       opts.Input,
		newProvider: opts.NewProvider,
		version:     opts.Version,
		mcpServers:  opts.MCPServers,
		termWidth:   opts.TermWidth,
		interrupt:   opts.Interrupt,
	}, nil
}

// Run shows the welcome screen and processes input until exit, end of input
// or ctx is canceled.
func (r *REPL) Run(ctx context.Context) error {
	r.showWelcomeScreen()

	for {
		r.renderer.RenderQuestion(r.prompt() + ": ")
		line, err := r.input.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				r.sayGoodbye()
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		if err := r.processInput(ctx, line); err != nil {
			if errors.Is(err, ErrExit) {
				r.sayGoodbye()
				return nil
			}
			return err
		}
	}
}

// prompt is the input label for the current state.
func (r *REPL) prompt() string {
	switch r.step {
	case selectProvider:
		return "Enter provider number"
	case selectModel:
		return "Enter model number"
	default:
		return "Enter your query"
	}
}

func (r *REPL) processInput(ctx context.Context, line string) error {
	trimmed := strings.TrimSpace(line)

	if r.step != selectNone {
		if strings.HasPrefix(trimmed, "/") {
			r.resetSelection()
		} else {
			r.handleSelection(trimmed)
			return nil
		}
	}

	if strings.HasPrefix(trimmed, "/") {
		return r.handleCommand(trimmed)
	}

	switch strings.ToLower(trimmed) {
	case "exit", "quit":
		return ErrExit
	}

	r.sendMessage(ctx, line)
	return nil
}

func (r *REPL) sendMessage(ctx context.Context, message string) {
	turnCtx, cancel := r.interrupt(ctx)
	defer cancel()

	err := r.agent.SendMessage(turnCtx, message)
	if err == nil {
		return
	}

	r.logger.Info("agent turn ended with error", zap.Error(err))
	if errors.Is(err, agent.ErrNoProvider) {
		r.renderer.RenderError("No model configured. Use /model to select a provider and model.")
		return
	}

	kind := agent.Classify(err)
	if kind != agent.KindDenied {
		r.renderer.RenderError("Error: " + err.Error())
	}
	if hint := kind.Hint(); hint != "" {
		r.renderer.RenderWarning(hint)
	}
}

func (r *REPL) sayGoodbye() {
	fmt.Fprintln(r.renderer.Writer())
	r.renderer.RenderSuccess("Goodbye!")
}

func (r *REPL) showWelcomeScreen() {
	width := 80
	if r.termWidth != nil {
		if w := r.termWidth(); w > 0 {
			width = w
		}
	}

	info := render.WelcomeInfo{
		Provider:   r.agent.ProviderName(),
		Model:      r.agent.Model(),
		Version:    r.version,
		MCPServers: r.mcpServers,
	}
	render.RenderWelcome(r.renderer.Writer(), info, width)
}
