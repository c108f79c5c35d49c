package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/atinylittleshell/farcode/internal/mcp"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPCaller is the part of the MCP manager the adapter needs.
type MCPCaller interface {
	CallTool(ctx context.Context, serverName, toolName string, arguments map[string]any) (*sdkmcp.CallToolResult, error)
}

// MCPTool exposes one tool of an MCP server under <server>__<tool>.
type MCPTool struct {
	caller MCPCaller
	server string
	tool   *sdkmcp.Tool
}

func NewMCPTool(caller MCPCaller, server string, tool *sdkmcp.Tool) *MCPTool {
	return &MCPTool{caller: caller, server: server, tool: tool}
}

// MCPTools adapts every tool the manager's servers offer.
func MCPTools(manager *mcp.Manager) []Tool {
	var adapted []Tool
	for _, info := range manager.Tools() {
		adapted = append(adapted, NewMCPTool(manager, info.Server, info.Tool))
	}
	return adapted
}

func (t *MCPTool) Name() string { return mcp.QualifiedName(t.server, t.tool.Name) }

func (t *MCPTool) Description() string {
	if t.tool.Description == "" {
		return "Tool '" + t.tool.Name + "' from MCP server '" + t.server + "'"
	}
	return t.tool.Description
}

func (t *MCPTool) Parameters() map[string]any {
	if t.tool.InputSchema != nil {
		if data, err := json.Marshal(t.tool.InputSchema); err == nil {
			var schema map[string]any
			if json.Unmarshal(data, &schema) == nil && schema != nil {
				return schema
			}
		}
	}
	return objectSchema(map[string]any{})
}

func (t *MCPTool) Invoke(ctx context.Context, args string) string {
	var arguments map[string]any
	if strings.TrimSpace(args) != "" {
		if err := json.Unmarshal([]byte(args), &arguments); err != nil {
			return errorText("invalid arguments: %v", err)
		}
	}

	result, err := t.caller.CallTool(ctx, t.server, t.tool.Name, arguments)
	if err != nil {
		return errorText("%v", err)
	}

	text := mcp.ResultText(result)
	if result.IsError {
		return ErrorPrefix + text
	}
	return text
}
