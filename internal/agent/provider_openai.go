package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atinylittleshell/farcode/internal/config"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	name   string
	client *openai.Client
}

func NewOpenAIProvider(name, baseURL, apiKey string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAIProvider{
		name:   name,
		client: openai.NewClientWithConfig(cfg),
	}
}

// NewProvider builds the provider for a catalog entry, reading its API key
// from the environment.
func NewProvider(p *config.Provider) (Provider, error) {
	apiKey, err := p.APIKey()
	if err != nil {
		return nil, err
	}
	return NewOpenAIProvider(p.Key, p.BaseURL, apiKey), nil
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) StreamingChatCompletion(ctx context.Context, request ChatRequest, onContent StreamCallback) (*ChatResponse, error) {
	if request.Model == "" {
		return nil, fmt.Errorf("%s provider requires a model", p.name)
	}

	req := openai.ChatCompletionRequest{
		Model:    request.Model,
		Messages: toOpenAIMessages(request.Messages),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	for _, tool := range request.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var content strings.Builder
	var toolCalls []ChatToolCall
	var args []*strings.Builder
	response := &ChatResponse{}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if chunk.Usage != nil {
			response.Usage = &ChatUsage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if onContent != nil {
				onContent(choice.Delta.Content)
			}
		}
		if choice.FinishReason != "" {
			response.FinishReason = string(choice.FinishReason)
		}

		for _, tc := range choice.Delta.ToolCalls {
			// Some endpoints omit the index; a new ID then starts a new call.
			index := len(toolCalls) - 1
			if tc.Index != nil {
				index = *tc.Index
			} else if tc.ID != "" || index < 0 {
				index = len(toolCalls)
			}
			for len(toolCalls) <= index {
				toolCalls = append(toolCalls, ChatToolCall{})
				args = append(args, &strings.Builder{})
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			args[index].WriteString(tc.Function.Arguments)
		}
	}

	for i := range toolCalls {
		toolCalls[i].Arguments = args[i].String()
	}
	response.Content = content.String()
	response.ToolCalls = toolCalls

	return response, nil
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		converted[i] = openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			arguments := tc.Arguments
			if strings.TrimSpace(arguments) == "" {
				arguments = "{}"
			}
			converted[i].ToolCalls = append(converted[i].ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: arguments,
				},
			})
		}
	}
	return converted
}
