package tools

import (
	"context"
	"errors"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) CallTool(ctx context.Context, serverName, toolName string, arguments map[string]any) (*sdkmcp.CallToolResult, error) {
	args := m.Called(ctx, serverName, toolName, arguments)
	result, _ := args.Get(0).(*sdkmcp.CallToolResult)
	return result, args.Error(1)
}

func textResult(text string, isError bool) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}},
		IsError: isError,
	}
}

func TestMCPTool_Metadata(t *testing.T) {
	tool := NewMCPTool(&mockCaller{}, "github", &sdkmcp.Tool{
		Name: "create_issue",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"title": map[string]any{"type": "string"}},
		},
	})

	assert.Equal(t, "github__create_issue", tool.Name())
	assert.Equal(t, "Tool 'create_issue' from MCP server 'github'", tool.Description())
	assert.Equal(t, "object", tool.Parameters()["type"])
	assert.Contains(t, tool.Parameters()["properties"], "title")

	bare := NewMCPTool(&mockCaller{}, "s", &sdkmcp.Tool{Name: "t", Description: "does t"})
	assert.Equal(t, "does t", bare.Description())
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, bare.Parameters())
}

func TestMCPTool_Invoke(t *testing.T) {
	caller := &mockCaller{}
	caller.On("CallTool", mock.Anything, "github", "create_issue", map[string]any{"title": "bug"}).
		Return(textResult("created #1", false), nil).Once()
	caller.On("CallTool", mock.Anything, "github", "create_issue", map[string]any(nil)).
		Return(textResult("title is required", true), nil).Once()

	tool := NewMCPTool(caller, "github", &sdkmcp.Tool{Name: "create_issue"})

	assert.Equal(t, "created #1", tool.Invoke(context.Background(), `{"title":"bug"}`))
	assert.Equal(t, "Error: title is required", tool.Invoke(context.Background(), ""))
	caller.AssertExpectations(t)
}

func TestMCPTool_InvokeFailures(t *testing.T) {
	caller := &mockCaller{}
	caller.On("CallTool", mock.Anything, "s", "t", mock.Anything).
		Return(nil, errors.New("connection closed")).Once()

	tool := NewMCPTool(caller, "s", &sdkmcp.Tool{Name: "t"})

	assert.Equal(t, "Error: connection closed", tool.Invoke(context.Background(), "{}"))
	assert.Contains(t, tool.Invoke(context.Background(), "[1,2"), "Error: invalid arguments")

	outcome := Run(context.Background(), tool, "[1,2")
	assert.Error(t, outcome.Err)
	caller.AssertExpectations(t)
}
