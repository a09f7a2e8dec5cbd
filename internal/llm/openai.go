package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the OpenAI-compatible provider
type OpenAIConfig struct {
	APIKey             string
	Endpoint           string // e.g. https://api.openai.com/v1
	ModelName          string
	EmbeddingModelName string
	Retry              RetryPolicy
	Logger             *log.Logger
}

func NewOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Endpoint:           "https://api.openai.com/v1",
		ModelName:          "gpt-4o-mini",
		EmbeddingModelName: string(openai.SmallEmbedding3),
		Retry:              DefaultRetryPolicy(),
	}
}

func (c OpenAIConfig) WithAPIKey(apiKey string) OpenAIConfig {
	c.APIKey = apiKey
	return c
}
func (c OpenAIConfig) WithEndpoint(endpoint string) OpenAIConfig {
	c.Endpoint = endpoint
	return c
}
func (c OpenAIConfig) WithModelName(modelName string) OpenAIConfig {
	c.ModelName = modelName
	return c
}
func (c OpenAIConfig) WithEmbeddingModelName(modelName string) OpenAIConfig {
	c.EmbeddingModelName = modelName
	return c
}
func (c OpenAIConfig) WithRetry(policy RetryPolicy) OpenAIConfig {
	c.Retry = policy
	return c
}
func (c OpenAIConfig) WithLogger(logger *log.Logger) OpenAIConfig {
	c.Logger = logger
	return c
}

func (c OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("openai api key is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return c.Retry.Validate()
}

// OpenAI implements Provider against an OpenAI-compatible API (OpenAI,
// OpenRouter, LMStudio, etc). There is no file API, so uploads are read
// locally and inlined into the prompt.
type OpenAI struct {
	config OpenAIConfig
	client *openai.Client
	logger *log.Logger
}

func NewOpenAI(config OpenAIConfig) (*OpenAI, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg := openai.DefaultConfig(config.APIKey)
	cfg.BaseURL = config.Endpoint
	return &OpenAI{
		config: config,
		client: openai.NewClientWithConfig(cfg),
		logger: config.Logger,
	}, nil
}

func (p *OpenAI) Name() string {
	return "openai"
}

func (p *OpenAI) UploadFile(ctx context.Context, path, mimeType string) (FileRef, error) {
	if err := ctx.Err(); err != nil {
		return FileRef{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: failed to read file: %w", ErrRejected, err)
	}
	if !utf8.Valid(data) {
		return FileRef{}, fmt.Errorf("%w: %s is not valid UTF-8 text", ErrRejected, filepath.Base(path))
	}
	return FileRef{
		Name:        "inline/" + uuid.NewString(),
		MIMEType:    mimeType,
		DisplayName: filepath.Base(path),
		Content:     string(data),
	}, nil
}

// DeleteFile is a no-op, inlined files only live in the conversation
func (p *OpenAI) DeleteFile(ctx context.Context, ref FileRef) error {
	return nil
}

func (p *OpenAI) Generate(ctx context.Context, history []Message, parts []Part, opts Options) (string, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if opts.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemInstruction,
		})
	}
	for _, m := range history {
		messages = append(messages, openAIMessage(m))
	}
	messages = append(messages, openAIMessage(Message{Role: RoleUser, Parts: parts}))

	req := openai.ChatCompletionRequest{
		Model:    p.config.ModelName,
		Messages: messages,
	}
	switch {
	case opts.Schema != nil:
		name := opts.SchemaName
		if name == "" {
			name = "response"
		}
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: opts.Schema,
			},
		}
	case opts.JSON:
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var reply string
	err := p.config.Retry.Do(ctx, p.logger, "openai chat completion", openAIStatus, func(ctx context.Context) error {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%w: no choices in response", ErrUnavailable)
		}
		choice := resp.Choices[0]
		if choice.FinishReason == openai.FinishReasonContentFilter {
			return fmt.Errorf("%w: response blocked by content filter", ErrRejected)
		}
		reply = choice.Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	p.logger.Debug("Generated OpenAI response",
		"model", p.config.ModelName,
		"history", len(history),
		"reply_length", len(reply),
		"duration", time.Since(start))

	return reply, nil
}

func (p *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	start := time.Now()

	err := p.config.Retry.Do(ctx, p.logger, "openai embed", openAIStatus, func(ctx context.Context) error {
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(p.config.EmbeddingModelName),
			Input: []string{text},
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("%w: no embedding returned", ErrUnavailable)
		}
		embedding = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OpenAI embedding: %w", err)
	}
	p.logger.Debug("Generated OpenAI embedding",
		"text_length", len(text),
		"embedding_length", len(embedding),
		"duration", time.Since(start))
	return embedding, nil
}

func openAIStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

func openAIMessage(m Message) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if m.Role == RoleModel {
		role = openai.ChatMessageRoleAssistant
	}

	var sb strings.Builder
	for i, part := range m.Parts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if part.File != nil {
			fmt.Fprintf(&sb, "File %s:\n```\n%s\n```", part.File.DisplayName, part.File.Content)
			continue
		}
		sb.WriteString(part.Text)
	}
	return openai.ChatCompletionMessage{Role: role, Content: sb.String()}
}

// Ensure OpenAI implements the Provider interface
var _ Provider = (*OpenAI)(nil)
