// Package config loads farcode's provider catalog and the user's settings
// file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/atinylittleshell/farcode/internal/sandbox"
	"go.uber.org/zap"
)

// TransportStdio is the only MCP transport farcode starts servers with.
const TransportStdio = "stdio"

// MCPServer is one entry of the settings file's mcpServers.
type MCPServer struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport,omitempty"`
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// SandboxSettings overrides the shell sandbox policy. Empty fields keep the
// defaults.
type SandboxSettings struct {
	AllowedCommands   []string `json:"allowedCommands,omitempty"`
	ForbiddenCommands []string `json:"forbiddenCommands,omitempty"`
	AllowedRoots      []string `json:"allowedRoots,omitempty"`
	TimeoutSeconds    int      `json:"timeoutSeconds,omitempty"`
	MaxOutputBytes    int      `json:"maxOutputBytes,omitempty"`
	Screen            string   `json:"screen,omitempty"`
}

// PolicyConfig converts the settings into a sandbox policy configuration
// rooted at workDir.
func (s SandboxSettings) PolicyConfig(workDir string) (sandbox.PolicyConfig, error) {
	screen, err := sandbox.ParseScreenMode(s.Screen)
	if err != nil {
		return sandbox.PolicyConfig{}, err
	}
	if s.TimeoutSeconds < 0 {
		return sandbox.PolicyConfig{}, fmt.Errorf("sandbox.timeoutSeconds must not be negative, got %d", s.TimeoutSeconds)
	}
	if s.MaxOutputBytes < 0 {
		return sandbox.PolicyConfig{}, fmt.Errorf("sandbox.maxOutputBytes must not be negative, got %d", s.MaxOutputBytes)
	}

	return sandbox.PolicyConfig{
		AllowedCommands:   s.AllowedCommands,
		ForbiddenCommands: s.ForbiddenCommands,
		AllowedRoots:      s.AllowedRoots,
		Timeout:           time.Duration(s.TimeoutSeconds) * time.Second,
		MaxOutputBytes:    s.MaxOutputBytes,
		WorkDir:           workDir,
		Screen:            screen,
	}, nil
}

// Settings is the parsed settings file.
type Settings struct {
	// Provider and Model select the startup model. Empty means the catalog
	// default.
	Provider   string
	Model      string
	MCPServers []MCPServer
	Sandbox    SandboxSettings
}

// MCPServer returns a configured server by name, or nil if not found.
func (s *Settings) MCPServer(name string) *MCPServer {
	for i := range s.MCPServers {
		if s.MCPServers[i].Name == name {
			return &s.MCPServers[i]
		}
	}
	return nil
}

// rawSettings mirrors the file layout; mcpServers is either an array of
// servers or an object keyed by server name.
type rawSettings struct {
	Provider   string          `json:"provider"`
	Model      string          `json:"model"`
	MCPServers json.RawMessage `json:"mcpServers"`
	Sandbox    SandboxSettings `json:"sandbox"`
}

// Loader reads settings files.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		logger: logger,
	}
}

// LoadResult contains the settings and the problems that were skipped over
// while reading them.
type LoadResult struct {
	Settings *Settings
	Errors   []error
}

// LoadFromFile loads settings from path. A missing file yields empty
// settings and no error; an unreadable or malformed file yields empty
// settings and a non-fatal error in the result.
func (l *Loader) LoadFromFile(path string) *LoadResult {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &LoadResult{Settings: &Settings{}}
		}
		return l.warn(&LoadResult{Settings: &Settings{}},
			fmt.Errorf("could not read settings file: %w", err))
	}

	return l.LoadFromBytes(content)
}

// LoadFromBytes parses a settings document.
func (l *Loader) LoadFromBytes(content []byte) *LoadResult {
	result := &LoadResult{Settings: &Settings{}}

	var raw rawSettings
	if err := json.Unmarshal(content, &raw); err != nil {
		return l.warn(result, fmt.Errorf("invalid JSON in settings file: %w", err))
	}

	result.Settings.Provider = raw.Provider
	result.Settings.Model = raw.Model
	result.Settings.Sandbox = raw.Sandbox
	result.Settings.MCPServers = l.parseMCPServers(raw.MCPServers, result)

	return result
}

func (l *Loader) parseMCPServers(data json.RawMessage, result *LoadResult) []MCPServer {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var entries []json.RawMessage
	var names []string

	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &entries); err != nil {
			l.warn(result, fmt.Errorf("invalid mcpServers array: %w", err))
			return nil
		}
	case '{':
		var byName map[string]json.RawMessage
		if err := json.Unmarshal(data, &byName); err != nil {
			l.warn(result, fmt.Errorf("invalid mcpServers object: %w", err))
			return nil
		}
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			entries = append(entries, byName[name])
		}
	default:
		l.warn(result, errors.New("mcpServers must be an array or an object"))
		return nil
	}

	var servers []MCPServer
	for i, entry := range entries {
		var server MCPServer
		if err := json.Unmarshal(entry, &server); err != nil {
			label := fmt.Sprintf("#%d", i)
			if names != nil {
				label = names[i]
			}
			l.warn(result, fmt.Errorf("invalid config for MCP server '%s', skipping: %w", label, err))
			continue
		}
		if names != nil {
			server.Name = names[i]
		}
		if server.Transport == "" {
			server.Transport = TransportStdio
		}

		switch {
		case server.Name == "":
			l.warn(result, fmt.Errorf("MCP server config #%d missing required field 'name', skipping", i))
			continue
		case server.Command == "":
			l.warn(result, fmt.Errorf("MCP server config '%s' missing required field 'command', skipping", server.Name))
			continue
		case server.Transport != TransportStdio:
			l.warn(result, fmt.Errorf("MCP server '%s' uses unsupported transport '%s', skipping", server.Name, server.Transport))
			continue
		}

		servers = append(servers, server)
	}

	return servers
}

func (l *Loader) warn(result *LoadResult, err error) *LoadResult {
	l.logger.Warn("settings problem", zap.Error(err))
	result.Errors = append(result.Errors, err)
	return result
}
