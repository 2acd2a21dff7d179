package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/transfa/assistant-service/internal/tools"
)

// ChatCompleter is satisfied by the retrying openaiclient.Client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAssistant drives the conversation through a chat completion model with
// every registered tool bound.
type OpenAIAssistant struct {
	client      ChatCompleter
	model       string
	temperature float32
	toolDefs    []openai.Tool
}

func NewOpenAIAssistant(client ChatCompleter, model string, temperature float32) *OpenAIAssistant {
	return &OpenAIAssistant{
		client:      client,
		model:       model,
		temperature: temperature,
		toolDefs:    toolDefinitions(),
	}
}

func (a *OpenAIAssistant) Next(ctx context.Context, userID uuid.UUID, messages []Message) (Message, error) {
	req := openai.ChatCompletionRequest{
		Model:             a.model,
		Temperature:       a.temperature,
		Messages:          toOpenAIMessages(SystemPrompt(userID.String()), messages),
		Tools:             a.toolDefs,
		ParallelToolCalls: false,
	}
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Message{}, err
	}
	if len(resp.Choices) == 0 {
		return Message{}, errors.New("chat completion returned no choices")
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

func toolDefinitions() []openai.Tool {
	kinds := tools.All()
	defs := make([]openai.Tool, 0, len(kinds))
	for _, k := range kinds {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        k.String(),
				Description: k.Description(),
				Parameters:  k.Parameters(),
			},
		})
	}
	return defs
}

func toOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Content: m.Content}
		switch m.Role {
		case RoleUser:
			msg.Role = openai.ChatMessageRoleUser
		case RoleAssistant:
			msg.Role = openai.ChatMessageRoleAssistant
			for _, c := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       c.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: c.Name, Arguments: string(c.Arguments)},
				})
			}
		case RoleTool:
			msg.Role = openai.ChatMessageRoleTool
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.Name
		default:
			continue
		}
		out = append(out, msg)
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) Message {
	msg := Message{Role: RoleAssistant, Content: m.Content}
	for i, c := range m.ToolCalls {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		args := json.RawMessage(c.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage("{}")
		}
		msg.ToolCalls = append(msg.ToolCalls, tools.Call{ID: id, Name: c.Function.Name, Arguments: args})
	}
	return msg
}
