package classify

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is the chat model used for classification when none is
// configured. Classification is a short single-turn task; a small model is
// enough.
const DefaultModel = "gpt-4o-mini"

// OpenAICompleter implements Completer on top of the OpenAI chat completions
// API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// OpenAIOption configures an OpenAICompleter.
type OpenAIOption func(*OpenAICompleter)

// WithModel sets the chat model used for classification calls.
func WithModel(model string) OpenAIOption {
	return func(c *OpenAICompleter) {
		c.model = model
	}
}

// NewOpenAICompleter creates a completer authenticated with the given API key.
func NewOpenAICompleter(apiKey string, opts ...OpenAIOption) *OpenAICompleter {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	c := &OpenAICompleter{
		client: &client,
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the prompt as a single user message and returns the model's
// text response.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
