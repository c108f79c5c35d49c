package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/atinylittleshell/farcode/internal/agent"
	"github.com/atinylittleshell/farcode/internal/approval"
	"github.com/atinylittleshell/farcode/internal/config"
	"github.com/atinylittleshell/farcode/internal/core"
	"github.com/atinylittleshell/farcode/internal/history"
	"github.com/atinylittleshell/farcode/internal/mcp"
	"github.com/atinylittleshell/farcode/internal/pathsandbox"
	"github.com/atinylittleshell/farcode/internal/render"
	"github.com/atinylittleshell/farcode/internal/repl"
	"github.com/atinylittleshell/farcode/internal/sandbox"
	"github.com/atinylittleshell/farcode/internal/tools"
)

var BUILD_VERSION = "dev"

// logLevelEnv selects the log level written to ~/.farcode/farcode.log.
const logLevelEnv = "FARCODE_LOG_LEVEL"

// mcpStartTimeout bounds how long startup waits for each MCP server.
const mcpStartTimeout = 30 * time.Second

var providerFlag = flag.String("provider", "", "model provider to start with (see /providers)")
var modelFlag = flag.String("model", "", "model to start with")
var dirFlag = flag.String("dir", "", "working directory the agent is confined to (default: current directory)")

var helpFlag = flag.Bool("h", false, "display help information")
var versionFlag = flag.Bool("ver", false, "display build version")

const helpText = `farcode - a coding agent that asks before it acts

USAGE:
  farcode [options]

Every shell command the model proposes runs without a shell, only if its
program is allowed, and only after you approve it. File tools are confined
to the working directory.

CONFIGURATION:
  ~/.farcode/settings.json   MCP servers and sandbox policy (override with FARCODE_SETTINGS_PATH)
  OPEN_ROUTER_API_KEY, GOOGLE_API_KEY, GROQ_API_KEY   provider API keys

OPTIONS:
`

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(BUILD_VERSION)
		return
	}

	if *helpFlag {
		fmt.Print(helpText)
		flag.PrintDefaults()
		return
	}

	logger, err := initializeLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "farcode: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // Flush any buffered log entries

	logger.Info("-------- new farcode session --------", zap.Any("args", os.Args))

	if err := run(context.Background(), logger); err != nil {
		logger.Error("unhandled error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "farcode: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	workDir := *dirFlag
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to determine working directory: %w", err)
		}
		workDir = wd
	}

	loaded := config.NewLoader(logger).LoadFromFile(core.SettingsFile())
	for _, err := range loaded.Errors {
		fmt.Fprintf(os.Stderr, "farcode: %v\n", err)
	}
	settings := loaded.Settings

	catalog, err := config.LoadCatalog()
	if err != nil {
		return err
	}

	resolver, err := pathsandbox.NewResolver(workDir)
	if err != nil {
		return fmt.Errorf("failed to open working directory: %w", err)
	}

	policyConfig, err := settings.Sandbox.PolicyConfig(resolver.Base())
	if err != nil {
		return fmt.Errorf("invalid sandbox settings: %w", err)
	}
	policy, err := sandbox.NewPolicy(policyConfig)
	if err != nil {
		return fmt.Errorf("invalid sandbox settings: %w", err)
	}

	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewShellTool(sandbox.New(policy, logger))); err != nil {
		return err
	}
	if err := registry.Register(tools.FileTools(resolver)...); err != nil {
		return err
	}

	mcpManager := mcp.NewManager(logger, BUILD_VERSION)
	defer mcpManager.Close()
	connectCtx, cancel := context.WithTimeout(ctx, mcpStartTimeout*time.Duration(max(1, len(settings.MCPServers))))
	for _, err := range mcpManager.ConnectAll(connectCtx, settings.MCPServers) {
		fmt.Fprintf(os.Stderr, "farcode: %v\n", err)
	}
	cancel()
	if err := registry.Register(tools.MCPTools(mcpManager)...); err != nil {
		fmt.Fprintf(os.Stderr, "farcode: %v\n", err)
	}

	historyManager, err := history.NewHistoryManager(core.HistoryFile())
	if err != nil {
		return fmt.Errorf("failed to open execution history: %w", err)
	}
	defer historyManager.Close()

	termWidth := func() int {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			return 0
		}
		return width
	}

	renderer := render.New(os.Stdout, termWidth)
	input := render.NewLineReader(os.Stdin)

	var indicator approval.Indicator
	if term.IsTerminal(int(os.Stdout.Fd())) {
		indicator = render.NewLoadingIndicator(os.Stdout)
	}

	providerEntry, model, err := startupModel(catalog, settings, *providerFlag, *modelFlag)
	if err != nil {
		return err
	}
	provider, err := agent.NewProvider(providerEntry)
	if err != nil {
		logger.Warn("starting without a provider", zap.String("provider", providerEntry.Key), zap.Error(err))
		fmt.Fprintf(os.Stderr, "farcode: %v\n", err)
		model = ""
	}

	manager := agent.NewManager(agent.Options{
		Logger:    logger,
		Provider:  provider,
		Model:     model,
		Tools:     registry,
		Session:   approval.NewSession(),
		Prompter:  render.NewTerminalPrompter(renderer, input),
		Indicator: indicator,
		History:   historyManager,
		Renderer:  renderer,
		WorkDir:   resolver.Base(),
	})

	r, err := repl.New(repl.Options{
		Logger:     logger,
		Agent:      manager,
		Catalog:    catalog,
		History:    historyManager,
		Renderer:   renderer,
		Input:      input,
		Version:    BUILD_VERSION,
		MCPServers: len(mcpManager.ListServers()),
		TermWidth:  termWidth,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}

	return r.Run(ctx)
}

// startupModel picks the provider and model from flags, then settings, then
// the catalog default.
func startupModel(catalog *config.Catalog, settings *config.Settings, providerKey, model string) (*config.Provider, string, error) {
	if providerKey == "" && settings != nil {
		providerKey = settings.Provider
	}
	if model == "" && settings != nil {
		model = settings.Model
	}
	if providerKey == "" {
		providerKey = catalog.DefaultProvider
	}

	provider := catalog.Provider(providerKey)
	if provider == nil {
		return nil, "", fmt.Errorf("unknown provider '%s', expected one of: %s", providerKey, strings.Join(catalog.Keys(), ", "))
	}
	if model == "" {
		model = provider.DefaultModel
	}
	return provider, model, nil
}

func initializeLogger() (*zap.Logger, error) {
	logLevel, err := parseLogLevel(os.Getenv(logLevelEnv))
	if err != nil {
		return nil, err
	}
	if BUILD_VERSION == "dev" && os.Getenv(logLevelEnv) == "" {
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = logLevel
	// Logs only go to file so they never interleave with the REPL.
	// Use `tail -f ~/.farcode/farcode.log` to monitor logs in real-time
	loggerConfig.OutputPaths = []string{
		core.LogFile(),
	}
	loggerConfig.ErrorOutputPaths = []string{
		core.LogFile(),
	}

	return loggerConfig.Build()
}

// parseLogLevel reads a zap level name; empty means info.
func parseLogLevel(value string) (zap.AtomicLevel, error) {
	if value == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	level, err := zapcore.ParseLevel(strings.ToLower(value))
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid %s: %w", logLevelEnv, err)
	}
	return zap.NewAtomicLevelAt(level), nil
}
