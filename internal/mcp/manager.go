// Package mcp starts the MCP servers named in the settings file and exposes
// their tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/atinylittleshell/farcode/internal/config"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Server is a connected MCP server.
type Server struct {
	Name    string
	Config  config.MCPServer
	Session *mcp.ClientSession
	Tools   map[string]*mcp.Tool
	mu      sync.RWMutex
}

// ToolInfo names one tool together with the server that provides it.
type ToolInfo struct {
	Server string
	Tool   *mcp.Tool
}

// Manager owns the sessions of every configured MCP server.
type Manager struct {
	logger  *zap.Logger
	version string
	servers map[string]*Server
	mu      sync.RWMutex
}

func NewManager(logger *zap.Logger, version string) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:  logger,
		version: version,
		servers: make(map[string]*Server),
	}
}

// ConnectAll starts every server and returns one error per server that could
// not be started. The others stay usable.
func (m *Manager) ConnectAll(ctx context.Context, servers []config.MCPServer) []error {
	var errs []error
	for _, server := range servers {
		if err := m.RegisterServer(ctx, server); err != nil {
			m.logger.Warn("failed to start MCP server", zap.String("server", server.Name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errs
}

// RegisterServer starts a stdio server and lists its tools.
func (m *Manager) RegisterServer(ctx context.Context, cfg config.MCPServer) error {
	if cfg.Command == "" {
		return fmt.Errorf("MCP server '%s' must specify a command", cfg.Name)
	}
	if cfg.Transport != "" && cfg.Transport != config.TransportStdio {
		return fmt.Errorf("MCP server '%s' uses unsupported transport '%s'", cfg.Name, cfg.Transport)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	return m.connect(ctx, cfg, &mcp.CommandTransport{Command: cmd})
}

func (m *Manager) connect(ctx context.Context, cfg config.MCPServer, transport mcp.Transport) error {
	if strings.Contains(cfg.Name, toolSeparator) {
		return fmt.Errorf("MCP server name '%s' must not contain '%s'", cfg.Name, toolSeparator)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.servers[cfg.Name]; exists {
		return fmt.Errorf("MCP server '%s' already registered", cfg.Name)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "farcode",
		Version: m.version,
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server '%s': %w", cfg.Name, err)
	}

	toolsList, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("failed to list tools of MCP server '%s': %w", cfg.Name, err)
	}

	server := &Server{
		Name:    cfg.Name,
		Config:  cfg,
		Session: session,
		Tools:   make(map[string]*mcp.Tool, len(toolsList.Tools)),
	}
	for _, tool := range toolsList.Tools {
		server.Tools[tool.Name] = tool
	}

	m.servers[cfg.Name] = server
	m.logger.Info("connected to MCP server",
		zap.String("server", cfg.Name),
		zap.Int("tools", len(server.Tools)))
	return nil
}

func (m *Manager) GetServer(name string) (*Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	server, exists := m.servers[name]
	if !exists {
		return nil, fmt.Errorf("MCP server '%s' not found", name)
	}

	return server, nil
}

// ListServers returns the connected server names, sorted.
func (m *Manager) ListServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns every tool of every server, ordered by server then tool name.
func (m *Manager) Tools() []ToolInfo {
	var infos []ToolInfo
	for _, name := range m.ListServers() {
		server, err := m.GetServer(name)
		if err != nil {
			continue
		}
		server.mu.RLock()
		for _, tool := range server.Tools {
			infos = append(infos, ToolInfo{Server: name, Tool: tool})
		}
		server.mu.RUnlock()
	}
	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].Server != infos[j].Server {
			return infos[i].Server < infos[j].Server
		}
		return infos[i].Tool.Name < infos[j].Tool.Name
	})
	return infos
}

// CallTool invokes a tool and returns its result.
func (m *Manager) CallTool(ctx context.Context, serverName, toolName string, arguments map[string]any) (*mcp.CallToolResult, error) {
	server, err := m.GetServer(serverName)
	if err != nil {
		return nil, err
	}

	server.mu.RLock()
	_, exists := server.Tools[toolName]
	server.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("tool '%s' not found in MCP server '%s'", toolName, serverName)
	}

	result, err := server.Session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool '%s' on server '%s': %w", toolName, serverName, err)
	}

	return result, nil
}

// Close shuts down every server session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, server := range m.servers {
		if server.Session != nil {
			if err := server.Session.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close server '%s': %w", name, err))
			}
		}
	}
	m.servers = make(map[string]*Server)

	return errors.Join(errs...)
}

// ResultText flattens a tool result into the text handed back to the model.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}

	var parts []string
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s]", c.MIMEType))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio: %s]", c.MIMEType))
		case *mcp.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource: %s]", c.URI))
		}
	}

	if len(parts) == 0 && result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			parts = append(parts, string(data))
		}
	}

	return strings.Join(parts, "\n")
}
