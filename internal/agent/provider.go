// Package agent runs the conversation with the model and routes every tool
// call it requests through the approval gate.
package agent

import "context"

// ChatMessage is one message of the conversation.
type ChatMessage struct {
	Role    string // "system", "user", "assistant", "tool"
	Content string

	// Name is the tool name on tool result messages.
	Name string

	// ToolCallID links a tool result to the call it answers.
	ToolCallID string

	// ToolCalls are the calls requested by an assistant message.
	ToolCalls []ChatToolCall
}

// ChatTool is a tool offered to the model.
type ChatTool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatToolCall is a tool call requested by the model. Arguments is the raw
// JSON text the model produced.
type ChatToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ChatRequest struct {
	Model    string
	Messages []ChatMessage
	Tools    []ChatTool
}

type ChatUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type ChatResponse struct {
	Content      string
	FinishReason string
	Usage        *ChatUsage
	ToolCalls    []ChatToolCall
}

// StreamCallback receives each content delta as it arrives.
type StreamCallback func(content string)

// Provider is a chat completion backend.
type Provider interface {
	Name() string
	StreamingChatCompletion(ctx context.Context, request ChatRequest, onContent StreamCallback) (*ChatResponse, error)
}
