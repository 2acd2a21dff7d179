package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const classifierSystemPrompt = "You are a banking security classifier"

const intentPromptTemplate = `Classify the customer's message for a retail banking assistant.

Answer "blocked" if it asks for help with money laundering, hiding funds, tax evasion,
fraud, scams or any other illegal banking activity.
Answer "allowed" for balances, transactions, spending, beneficiaries, transfers between
accounts or to saved payees, and general banking or financial questions.

Message: %s

Respond with exactly one word: allowed or blocked.`

// ChatCompleter is the subset of the OpenAI client used by model-backed components.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMSemanticClassifier asks a chat model for an allowed/blocked verdict.
type LLMSemanticClassifier struct {
	client ChatCompleter
	model  string
}

func NewLLMSemanticClassifier(client ChatCompleter, model string) *LLMSemanticClassifier {
	return &LLMSemanticClassifier{client: client, model: model}
}

func (c *LLMSemanticClassifier) ClassifyIntent(ctx context.Context, query string) (SemanticResult, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(intentPromptTemplate, query)},
		},
		MaxTokens: 5,
	})
	if err != nil {
		return SemanticResult{}, fmt.Errorf("intent classification request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return SemanticResult{}, errors.New("intent classification returned no choices")
	}
	model := resp.Model
	if model == "" {
		model = c.model
	}
	return SemanticResult{Reply: strings.TrimSpace(resp.Choices[0].Message.Content), Model: model}, nil
}
