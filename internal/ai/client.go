// Package ai generates director replies with the OpenAI chat completion API.
package ai

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/myrjola/directorscut/internal/conversation"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/sashabaranov/go-openai"
)

// Config selects the model and endpoint.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the OpenAI endpoint, e.g. for a compatible local server.
	BaseURL string
}

// Client is a conversation.Generator backed by OpenAI.
type Client struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ conversation.Generator = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.With("source", "ai.Client"),
	}
}

// NewGenerator returns a Client for cfg, or a generator that sends every conversation straight to offline mode when
// no API key is configured.
func NewGenerator(cfg Config, logger *slog.Logger) conversation.Generator {
	if cfg.APIKey == "" {
		logger.LogAttrs(context.Background(), slog.LevelWarn, "no OpenAI API key configured, running offline")
		return conversation.Unavailable()
	}
	return NewClient(cfg, logger)
}

const MaxTokens = 2048

// Generate requests a JSON reply for req and returns the raw message content.
func (c *Client) Generate(ctx context.Context, req conversation.Request) ([]byte, error) {
	messages, err := BuildMessages(req)
	if err != nil {
		return nil, errors.Wrap(err, "build messages")
	}
	completion, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     c.model,
			MaxTokens: MaxTokens,
			Messages:  messages,
			ResponseFormat: &openai.ChatCompletionResponseFormat{ //nolint:exhaustruct // JSON mode needs no schema.
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "create chat completion", slog.String("model", c.model))
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("completion without choices", slog.String("id", completion.ID))
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "completion received",
		slog.String("stage", string(req.Stage)),
		slog.Int("prompt_tokens", completion.Usage.PromptTokens),
		slog.Int("completion_tokens", completion.Usage.CompletionTokens))
	return []byte(completion.Choices[0].Message.Content), nil
}

// userPrompt is serialised as the user message. The generator sees the conversation state as JSON.
type userPrompt struct {
	Vignette       string            `json:"vignette"`
	Emotion        string            `json:"emotion"`
	Details        map[string]string `json:"details"`
	Stage          string            `json:"stage"`
	PriorDraft     string            `json:"prior_draft,omitempty"`
	RecentMessages []promptMessage   `json:"recent_messages"`
}

type promptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildMessages renders req as the system and user messages of a chat completion.
func BuildMessages(req conversation.Request) ([]openai.ChatCompletionMessage, error) {
	system, err := systemPrompt(req.Persona, req.Stage)
	if err != nil {
		return nil, err
	}

	prompt := userPrompt{
		Vignette:       req.Vignette,
		Emotion:        string(req.Emotion),
		Details:        make(map[string]string, len(req.Details)),
		Stage:          string(req.Stage),
		PriorDraft:     req.PriorDraft,
		RecentMessages: make([]promptMessage, 0, len(req.RecentMessages)),
	}
	for stage, text := range req.Details {
		prompt.Details[string(stage)] = text
	}
	for _, m := range req.RecentMessages {
		prompt.RecentMessages = append(prompt.RecentMessages, promptMessage{Role: string(m.Role), Content: m.Content})
	}
	user, err := json.Marshal(prompt)
	if err != nil {
		return nil, errors.Wrap(err, "marshal user prompt")
	}

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system}, //nolint:exhaustruct // plain text message
		{Role: openai.ChatMessageRoleUser, Content: string(user)}, //nolint:exhaustruct // plain text message
	}, nil
}
