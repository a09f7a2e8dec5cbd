package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const geminiFilePollInterval = 2 * time.Second

// GeminiConfig holds configuration for the Gemini provider
type GeminiConfig struct {
	APIKey             string
	ModelName          string
	EmbeddingModelName string
	Retry              RetryPolicy
	Logger             *log.Logger
}

func NewGeminiConfig() GeminiConfig {
	return GeminiConfig{
		ModelName:          "gemini-2.0-flash",
		EmbeddingModelName: "text-embedding-004",
		Retry:              DefaultRetryPolicy(),
	}
}

func (c GeminiConfig) WithAPIKey(apiKey string) GeminiConfig {
	c.APIKey = apiKey
	return c
}
func (c GeminiConfig) WithModelName(modelName string) GeminiConfig {
	c.ModelName = modelName
	return c
}
func (c GeminiConfig) WithEmbeddingModelName(modelName string) GeminiConfig {
	c.EmbeddingModelName = modelName
	return c
}
func (c GeminiConfig) WithRetry(policy RetryPolicy) GeminiConfig {
	c.Retry = policy
	return c
}
func (c GeminiConfig) WithLogger(logger *log.Logger) GeminiConfig {
	c.Logger = logger
	return c
}

func (c GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("gemini api key is required")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return c.Retry.Validate()
}

// Gemini talks to the Gemini API. Files go through the Files API and are
// referenced by URI in later turns.
type Gemini struct {
	config GeminiConfig
	client *genai.Client
	logger *log.Logger
}

func NewGemini(ctx context.Context, config GeminiConfig) (*Gemini, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{
		config: config,
		client: client,
		logger: config.Logger,
	}, nil
}

func (p *Gemini) Name() string {
	return "gemini"
}

func (p *Gemini) UploadFile(ctx context.Context, path, mimeType string) (FileRef, error) {
	start := time.Now()
	var file *genai.File

	err := p.config.Retry.Do(ctx, p.logger, "gemini upload", geminiStatus, func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("%w: failed to open file: %w", ErrRejected, err)
		}
		defer f.Close()

		file, err = p.client.UploadFile(ctx, "", f, &genai.UploadFileOptions{
			DisplayName: filepath.Base(path),
			MIMEType:    mimeType,
		})
		return err
	})
	if err != nil {
		return FileRef{}, err
	}

	file, err = p.waitForFile(ctx, file)
	if err != nil {
		p.deleteQuietly(file.Name)
		return FileRef{}, err
	}

	p.logger.Debug("Uploaded file to Gemini",
		"name", file.Name,
		"size", file.SizeBytes,
		"duration", time.Since(start))

	return FileRef{
		Name:        file.Name,
		URI:         file.URI,
		MIMEType:    file.MIMEType,
		DisplayName: file.DisplayName,
	}, nil
}

// waitForFile polls until the uploaded file leaves the processing state
func (p *Gemini) waitForFile(ctx context.Context, file *genai.File) (*genai.File, error) {
	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return file, ctx.Err()
		case <-time.After(geminiFilePollInterval):
		}
		var next *genai.File
		err := p.config.Retry.Do(ctx, p.logger, "gemini get file", geminiStatus, func(ctx context.Context) error {
			var err error
			next, err = p.client.GetFile(ctx, file.Name)
			return err
		})
		if err != nil {
			return file, err
		}
		file = next
	}
	if file.State == genai.FileStateFailed {
		return file, fmt.Errorf("%w: file %s failed processing", ErrRejected, file.Name)
	}
	return file, nil
}

func (p *Gemini) deleteQuietly(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.client.DeleteFile(ctx, name); err != nil {
		p.logger.Warn("Failed to delete Gemini file", "name", name, "error", err)
	}
}

func (p *Gemini) DeleteFile(ctx context.Context, ref FileRef) error {
	if ref.Name == "" {
		return nil
	}
	return p.config.Retry.Do(ctx, p.logger, "gemini delete file", geminiStatus, func(ctx context.Context) error {
		return p.client.DeleteFile(ctx, ref.Name)
	})
}

func (p *Gemini) Generate(ctx context.Context, history []Message, parts []Part, opts Options) (string, error) {
	start := time.Now()

	model := p.client.GenerativeModel(p.config.ModelName)
	if opts.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(opts.SystemInstruction)}}
	}
	if opts.Schema != nil || opts.JSON {
		model.ResponseMIMEType = "application/json"
	}
	model.ResponseSchema = geminiSchema(opts.Schema)

	var reply string
	err := p.config.Retry.Do(ctx, p.logger, "gemini generate", geminiStatus, func(ctx context.Context) error {
		cs := model.StartChat()
		cs.History = geminiHistory(history)

		resp, err := cs.SendMessage(ctx, geminiParts(parts)...)
		if err != nil {
			var blocked *genai.BlockedError
			if errors.As(err, &blocked) {
				return fmt.Errorf("%w: %w", ErrRejected, err)
			}
			return err
		}
		reply, err = responseText(resp)
		return err
	})
	if err != nil {
		return "", err
	}

	p.logger.Debug("Generated Gemini response",
		"model", p.config.ModelName,
		"history", len(history),
		"reply_length", len(reply),
		"duration", time.Since(start))

	return reply, nil
}

func (p *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	start := time.Now()
	model := p.client.EmbeddingModel(p.config.EmbeddingModelName)

	err := p.config.Retry.Do(ctx, p.logger, "gemini embed", geminiStatus, func(ctx context.Context) error {
		result, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return err
		}
		if result == nil || result.Embedding == nil {
			return fmt.Errorf("%w: no embedding returned from Gemini API", ErrUnavailable)
		}
		embedding = result.Embedding.Values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get Gemini embedding: %w", err)
	}
	p.logger.Debug("Generated Gemini embedding",
		"text_length", len(text),
		"embedding_length", len(embedding),
		"model", p.config.EmbeddingModelName,
		"duration", time.Since(start))
	return embedding, nil
}

func (p *Gemini) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func geminiStatus(err error) (int, bool) {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPCode() > 0 {
		return apiErr.HTTPCode(), true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code, true
	}
	return 0, false
}

func geminiParts(parts []Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.File != nil {
			out = append(out, genai.FileData{MIMEType: p.File.MIMEType, URI: p.File.URI})
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out
}

func geminiHistory(history []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		out = append(out, &genai.Content{
			Role:  string(m.Role),
			Parts: geminiParts(m.Parts),
		})
	}
	return out
}

func geminiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        geminiType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Items:       geminiSchema(s.Items),
		Required:    s.Required,
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = geminiSchema(prop)
		}
	}
	return out
}

func geminiType(t Type) genai.Type {
	switch t {
	case TypeObject:
		return genai.TypeObject
	case TypeArray:
		return genai.TypeArray
	case TypeString:
		return genai.TypeString
	case TypeNumber:
		return genai.TypeNumber
	case TypeInteger:
		return genai.TypeInteger
	case TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty response from Gemini", ErrUnavailable)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// Ensure Gemini implements the Provider interface
var _ Provider = (*Gemini)(nil)
