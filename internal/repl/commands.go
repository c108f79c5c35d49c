package repl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/atinylittleshell/farcode/internal/config"
	"github.com/atinylittleshell/farcode/internal/history"
	"github.com/atinylittleshell/farcode/internal/render"
)

const (
	defaultHistoryLimit = 10
	maxHistoryArgsLen   = 60
)

// commandNames lists the slash commands in the order /help shows them.
var commandNames = []string{"help", "model", "providers", "tools", "status", "clear", "history", "exit", "quit"}

// handleCommand runs a slash command. Only /exit and /quit return an error.
func (r *REPL) handleCommand(input string) error {
	parts := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(parts) == 0 {
		r.renderer.RenderError("Empty command")
		r.renderer.RenderSystemMessage("Use /help to see available commands")
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	r.logger.Debug("repl command", zap.String("command", cmd), zap.Strings("args", args))

	switch cmd {
	case "help":
		r.handleHelpCommand()
	case "model":
		r.handleModelCommand(args)
	case "providers":
		r.handleProvidersCommand()
	case "tools":
		r.handleToolsCommand()
	case "status":
		r.handleStatusCommand()
	case "clear":
		r.handleClearCommand()
	case "history":
		r.handleHistoryCommand(args)
	case "exit", "quit":
		return ErrExit
	default:
		r.renderer.RenderError(fmt.Sprintf("Unknown command: /%s", cmd))
		if suggestion := closestMatch(cmd, commandNames); suggestion != "" {
			r.renderer.RenderSystemMessage(fmt.Sprintf("Did you mean /%s?", suggestion))
		}
		r.renderer.RenderSystemMessage("Use /help to see available commands")
	}
	return nil
}

func (r *REPL) println(format string, a ...any) {
	fmt.Fprintf(r.renderer.Writer(), format+"\n", a...)
}

func (r *REPL) title(text string) {
	r.println("")
	r.println("%s", render.HeaderStyle.Bold(true).Render(text))
}

func (r *REPL) handleHelpCommand() {
	r.title("Available Commands:")
	r.println("  /help      - Show this help message")
	r.println("  /model     - Change AI model and provider (use /model for interactive selection, or /model <provider> <model_name>)")
	r.println("  /providers - List available providers")
	r.println("  /tools     - List available tools")
	r.println("  /status    - Show current configuration")
	r.println("  /clear     - Clear conversation history")
	r.println("  /history   - Show recent tool executions (/history [count])")
	r.println("  /exit or /quit - Exit the agent")
}

// handleModelCommand starts the interactive selection with no arguments, or
// switches directly with /model <provider|number> <model>.
func (r *REPL) handleModelCommand(args []string) {
	if len(args) == 0 {
		r.title("Available Providers:")
		for i, p := range r.catalog.Providers {
			r.println("  [%d] %s (%s)", i+1, p.Name, p.Key)
		}
		r.println("")
		r.println("%s", render.DimStyle.Render("Please enter the number of the provider you want to use:"))
		r.step = selectProvider
		return
	}

	if len(args) < 2 {
		r.renderer.RenderError("Usage: /model <provider> <model_name>")
		r.renderer.RenderSystemMessage("Example: /model google gemini-2.5-flash")
		r.renderer.RenderSystemMessage("Or use number from /model list: /model 2 gemini-2.5-flash")
		return
	}

	provider := r.lookupProvider(args[0])
	if provider == nil {
		return
	}

	model := args[1]
	if !provider.HasModel(model) {
		r.renderer.RenderError(fmt.Sprintf("Unknown model: %s", model))
		if suggestion := closestMatch(model, provider.Models); suggestion != "" {
			r.renderer.RenderSystemMessage(fmt.Sprintf("Did you mean %s?", suggestion))
		}
		r.renderer.RenderSystemMessage(fmt.Sprintf("Available models for %s: %s", provider.Name, strings.Join(provider.Models, ", ")))
		return
	}

	r.switchModel(provider, model)
}

// lookupProvider resolves a provider key or 1-based number, reporting
// failures to the user.
func (r *REPL) lookupProvider(arg string) *config.Provider {
	if n, err := strconv.Atoi(arg); err == nil {
		provider := r.catalog.ProviderAt(n)
		if provider == nil {
			r.renderer.RenderError(fmt.Sprintf("Invalid provider number: %s. Valid range: 1-%d", arg, len(r.catalog.Providers)))
		}
		return provider
	}

	provider := r.catalog.Provider(arg)
	if provider == nil {
		r.renderer.RenderError(fmt.Sprintf("Unknown provider: %s", arg))
		if suggestion := closestMatch(strings.ToLower(arg), r.catalog.Keys()); suggestion != "" {
			r.renderer.RenderSystemMessage(fmt.Sprintf("Did you mean %s?", suggestion))
		}
		r.renderer.RenderSystemMessage("Use /providers to see available providers")
	}
	return provider
}

// handleSelection consumes one numeric answer of the interactive /model flow.
func (r *REPL) handleSelection(input string) {
	n, err := strconv.Atoi(input)

	switch r.step {
	case selectProvider:
		if err != nil {
			r.renderer.RenderError("Please enter a number corresponding to the provider")
			return
		}
		provider := r.catalog.ProviderAt(n)
		if provider == nil {
			r.renderer.RenderError(fmt.Sprintf("Invalid provider number. Please enter a number between 1 and %d", len(r.catalog.Providers)))
			return
		}
		r.renderer.RenderSuccess(fmt.Sprintf("Selected provider: %s (%s)", provider.Name, provider.Key))
		r.selectedProvider = provider
		r.step = selectModel

		r.title(fmt.Sprintf("Available Models for %s:", provider.Name))
		for i, model := range provider.Models {
			r.println("  [%d] %s", i+1, model)
		}
		r.println("")
		r.println("%s", render.DimStyle.Render("Please enter the number of the model you want to use:"))

	case selectModel:
		if err != nil {
			r.renderer.RenderError("Please enter a number corresponding to the model")
			return
		}
		models := r.selectedProvider.Models
		if n < 1 || n > len(models) {
			r.renderer.RenderError(fmt.Sprintf("Invalid model number. Please enter a number between 1 and %d", len(models)))
			return
		}
		provider := r.selectedProvider
		r.resetSelection()
		r.switchModel(provider, models[n-1])
	}
}

func (r *REPL) resetSelection() {
	r.step = selectNone
	r.selectedProvider = nil
}

// switchModel replaces the agent's provider. The previous one is kept if the
// new provider cannot be built, e.g. its API key is missing.
func (r *REPL) switchModel(provider *config.Provider, model string) {
	r.renderer.RenderSuccess(fmt.Sprintf("%s Model selected: %s/%s", render.SymbolSuccess, provider.Name, model))

	p, err := r.newProvider(provider)
	if err != nil {
		r.logger.Warn("failed to switch provider", zap.String("provider", provider.Key), zap.String("model", model), zap.Error(err))
		r.renderer.RenderError(fmt.Sprintf("%s Failed to update agent: %v", render.SymbolError, err))
		r.renderer.RenderWarning("Keeping the previous configuration.")
		return
	}

	r.agent.SetProvider(p, model)
	r.logger.Info("switched provider", zap.String("provider", provider.Key), zap.String("model", model))
	r.renderer.RenderSuccess(fmt.Sprintf("%s Agent successfully updated with %s/%s", render.SymbolSuccess, provider.Name, model))
}

func (r *REPL) handleProvidersCommand() {
	r.title("Available Providers and Models:")
	for i, p := range r.catalog.Providers {
		r.println("")
		r.println("%s", render.SuccessStyle.Bold(true).Render(fmt.Sprintf("[%d] %s (%s)", i+1, p.Name, p.Key)))
		for _, model := range p.Models {
			r.println("  • %s", model)
		}
	}
}

func (r *REPL) handleToolsCommand() {
	r.title("Available Tools:")
	for _, name := range r.agent.Tools().Names() {
		r.println("  • %s", name)
	}
	r.println("")
	r.println("%s", render.DimStyle.Render("The agent can use these tools to help with your requests"))
}

func (r *REPL) handleStatusCommand() {
	providerName := "not configured"
	if key := r.agent.ProviderName(); key != "" {
		providerName = key
		if p := r.catalog.Provider(key); p != nil {
			providerName = p.Name
		}
	}
	model := r.agent.Model()
	if model == "" {
		model = "not configured"
	}

	r.title("Current Configuration:")
	r.println("  Provider: %s", render.SuccessStyle.Render(providerName))
	r.println("  Model: %s", render.SuccessStyle.Render(model))
	r.println("  Conversation history: %s", render.SuccessStyle.Render(fmt.Sprintf("%d messages", r.agent.MessageCount())))
	r.println("  Approved tools: %s", render.SuccessStyle.Render(fmt.Sprintf("%d tools", r.agent.Session().Len())))
}

func (r *REPL) handleClearCommand() {
	r.agent.ClearConversation()
	r.renderer.RenderSuccess(fmt.Sprintf("%s Conversation history cleared", render.SymbolSuccess))
}

func (r *REPL) handleHistoryCommand(args []string) {
	if r.history == nil {
		r.renderer.RenderError("Execution history is not available")
		return
	}

	limit := defaultHistoryLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			r.renderer.RenderError("Usage: /history [count]")
			return
		}
		limit = n
	}

	entries, err := r.history.GetRecentEntries("", limit)
	if err != nil {
		r.renderer.RenderError(fmt.Sprintf("Failed to read history: %v", err))
		return
	}
	if len(entries) == 0 {
		r.renderer.RenderSystemMessage("No tool executions recorded yet")
		return
	}

	r.title("Recent Tool Executions:")
	for i := len(entries) - 1; i >= 0; i-- {
		r.println("  %s", formatHistoryEntry(&entries[i]))
	}
}

// formatHistoryEntry renders one line of /history.
func formatHistoryEntry(entry *history.ExecutionEntry) string {
	var status string
	switch {
	case entry.Decision == history.DecisionDenied:
		status = render.ErrorStyle.Render("denied")
	case !entry.Finished:
		status = render.DimStyle.Render("unfinished")
	case entry.Succeeded():
		status = render.SuccessStyle.Render(render.SymbolSuccess)
	case entry.ExitCode.Valid && entry.Error == "":
		status = render.ErrorStyle.Render(fmt.Sprintf("exit %d", entry.ExitCode.Int32))
	default:
		status = render.ErrorStyle.Render(render.SymbolError)
	}

	args := strings.Join(strings.Fields(entry.Arguments), " ")
	if len(args) > maxHistoryArgsLen {
		args = args[:maxHistoryArgsLen-3] + "..."
	}

	return fmt.Sprintf("%s %s %s %s",
		status,
		render.ToolLabelStyle.Render(entry.Tool),
		args,
		render.DimStyle.Render("("+humanize.Time(entry.CreatedAt)+")"),
	)
}

// closestMatch returns the best fuzzy match for pattern among candidates, or
// "" when nothing matches.
func closestMatch(pattern string, candidates []string) string {
	if pattern == "" {
		return ""
	}
	matches := fuzzy.Find(pattern, candidates)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}
