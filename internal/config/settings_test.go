package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atinylittleshell/farcode/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_Missing(t *testing.T) {
	result := NewLoader(nil).LoadFromFile(filepath.Join(t.TempDir(), "settings.json"))

	require.NotNil(t, result.Settings)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Settings.MCPServers)
}

func TestLoadFromFile_Unreadable(t *testing.T) {
	// A directory cannot be read as a file.
	result := NewLoader(nil).LoadFromFile(t.TempDir())

	require.NotNil(t, result.Settings)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "could not read settings file")
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	result := NewLoader(nil).LoadFromFile(path)
	require.NotNil(t, result.Settings)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "invalid JSON")
	assert.Empty(t, result.Settings.MCPServers)
}

func TestLoadFromBytes_ArrayForm(t *testing.T) {
	doc := `{
		"mcpServers": [
			{"name": "fs", "command": "npx", "args": ["-y", "@modelcontextprotocol/server-filesystem", "."]},
			{"name": "git", "transport": "stdio", "command": "uvx", "args": ["mcp-server-git"], "env": {"GIT_DIR": ".git"}}
		]
	}`

	result := NewLoader(nil).LoadFromBytes([]byte(doc))
	assert.Empty(t, result.Errors)
	require.Len(t, result.Settings.MCPServers, 2)

	fs := result.Settings.MCPServer("fs")
	require.NotNil(t, fs)
	assert.Equal(t, TransportStdio, fs.Transport)
	assert.Equal(t, "npx", fs.Command)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "."}, fs.Args)

	git := result.Settings.MCPServer("git")
	require.NotNil(t, git)
	assert.Equal(t, map[string]string{"GIT_DIR": ".git"}, git.Env)
	assert.Nil(t, result.Settings.MCPServer("missing"))
}

func TestLoadFromBytes_ObjectForm(t *testing.T) {
	doc := `{
		"mcpServers": {
			"zeta": {"command": "zeta-server"},
			"alpha": {"name": "ignored", "command": "alpha-server", "args": ["--stdio"]},
			"broken": "not an object"
		}
	}`

	result := NewLoader(nil).LoadFromBytes([]byte(doc))
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "invalid config for MCP server 'broken'")

	require.Len(t, result.Settings.MCPServers, 2)
	assert.Equal(t, "alpha", result.Settings.MCPServers[0].Name)
	assert.Equal(t, "zeta", result.Settings.MCPServers[1].Name)
	for _, server := range result.Settings.MCPServers {
		assert.Equal(t, TransportStdio, server.Transport)
	}
}

func TestLoadFromBytes_InvalidEntriesAreSkipped(t *testing.T) {
	doc := `{
		"mcpServers": [
			{"command": "no-name"},
			{"name": "no-command"},
			{"name": "remote", "transport": "sse", "command": "x"},
			{"name": "ok", "command": "server"}
		]
	}`

	result := NewLoader(nil).LoadFromBytes([]byte(doc))
	assert.Len(t, result.Errors, 3)
	require.Len(t, result.Settings.MCPServers, 1)
	assert.Equal(t, "ok", result.Settings.MCPServers[0].Name)
}

func TestLoadFromBytes_MCPServersWrongType(t *testing.T) {
	result := NewLoader(nil).LoadFromBytes([]byte(`{"mcpServers": 3}`))
	require.Len(t, result.Errors, 1)
	assert.Empty(t, result.Settings.MCPServers)
}

func TestLoadFromBytes_ProviderAndSandbox(t *testing.T) {
	doc := `{
		"provider": "groq",
		"model": "openai/gpt-oss-120b",
		"sandbox": {
			"allowedCommands": ["ls", "go"],
			"forbiddenCommands": ["rm"],
			"allowedRoots": ["."],
			"timeoutSeconds": 5,
			"maxOutputBytes": 2048,
			"screen": "structural"
		}
	}`

	result := NewLoader(nil).LoadFromBytes([]byte(doc))
	require.Empty(t, result.Errors)
	assert.Equal(t, "groq", result.Settings.Provider)
	assert.Equal(t, "openai/gpt-oss-120b", result.Settings.Model)

	workDir := t.TempDir()
	cfg, err := result.Settings.Sandbox.PolicyConfig(workDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ls", "go"}, cfg.AllowedCommands)
	assert.Equal(t, []string{"rm"}, cfg.ForbiddenCommands)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2048, cfg.MaxOutputBytes)
	assert.Equal(t, sandbox.ScreenStructural, cfg.Screen)
	assert.Equal(t, workDir, cfg.WorkDir)

	policy, err := sandbox.NewPolicy(cfg)
	require.NoError(t, err)
	assert.True(t, policy.IsAllowed("go"))
}

func TestSandboxSettings_Defaults(t *testing.T) {
	cfg, err := SandboxSettings{}.PolicyConfig("")
	require.NoError(t, err)

	policy, err := sandbox.NewPolicy(cfg)
	require.NoError(t, err)
	assert.Equal(t, sandbox.DefaultTimeout, policy.Timeout())
	assert.Equal(t, sandbox.DefaultMaxOutputBytes, policy.MaxOutputBytes())
	assert.Equal(t, sandbox.ScreenSubstring, policy.Screen())
}

func TestSandboxSettings_Invalid(t *testing.T) {
	for name, s := range map[string]SandboxSettings{
		"screen":     {Screen: "regex"},
		"timeout":    {TimeoutSeconds: -1},
		"max output": {MaxOutputBytes: -5},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.PolicyConfig("")
			assert.Error(t, err)
		})
	}
}
