package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You are a concise daily-workflow assistant for real-estate acquisition staff. " +
	"Answer in two or three short sentences. The JSON context describes where the user is in their day."

// OpenAIClient answers requests with an OpenAI-compatible chat completion API.
type OpenAIClient struct {
	client    openai.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

// NewOpenAIClient creates a client. baseURL may be empty for the public API.
func NewOpenAIClient(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: 400,
		logger:    logger,
	}
}

// Respond implements Responder.
func (c *OpenAIClient) Respond(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt)}
	if len(req.Context) > 0 {
		raw, err := json.Marshal(req.Context)
		if err != nil {
			return Response{}, fmt.Errorf("encode context: %w", err)
		}
		messages = append(messages, openai.SystemMessage("Context: "+string(raw)))
	}
	messages = append(messages, openai.UserMessage(req.Message))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices returned", ErrUnavailable)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Response{}, fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	c.logger.Debug("OpenAI response", "model", c.model, "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	return Response{Response: text}, nil
}

// Close implements Backend.
func (c *OpenAIClient) Close() {}
