package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/spend-advisor/internal/llm"
)

// RetryPolicy builds the retry policy shared by every provider
func (c LLMConfig) RetryPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{
		Attempts: c.RetryAttempts,
		Delay:    c.RetryDelay,
		Timeout:  c.LLMTimeout,
	}
}

// SetupProvider initializes and returns an LLM provider based on the config
func SetupProvider(ctx context.Context, config LLMConfig, logger *log.Logger) (llm.Provider, error) {
	switch config.Provider {
	case "gemini":
		if config.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini api key is required when using Gemini")
		}

		geminiConfig := llm.NewGeminiConfig().
			WithAPIKey(config.GeminiAPIKey).
			WithRetry(config.RetryPolicy()).
			WithLogger(logger)
		if config.GeminiModel != "" {
			geminiConfig = geminiConfig.WithModelName(config.GeminiModel)
		}
		if config.GeminiEmbeddingModel != "" {
			geminiConfig = geminiConfig.WithEmbeddingModelName(config.GeminiEmbeddingModel)
		}

		provider, err := llm.NewGemini(ctx, geminiConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini provider: %w", err)
		}
		logger.Info("Using Gemini", "model", geminiConfig.ModelName)
		return provider, nil

	case "openai":
		if config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai api key is required when using an OpenAI-compatible provider")
		}

		openaiConfig := llm.NewOpenAIConfig().
			WithAPIKey(config.OpenAIAPIKey).
			WithRetry(config.RetryPolicy()).
			WithLogger(logger)
		if config.OpenAIEndpoint != "" {
			openaiConfig = openaiConfig.WithEndpoint(config.OpenAIEndpoint)
		}
		if config.OpenAIModel != "" {
			openaiConfig = openaiConfig.WithModelName(config.OpenAIModel)
		}
		if config.OpenAIEmbeddingModel != "" {
			openaiConfig = openaiConfig.WithEmbeddingModelName(config.OpenAIEmbeddingModel)
		}

		provider, err := llm.NewOpenAI(openaiConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI-compatible provider: %w", err)
		}
		logger.Info("Using OpenAI-compatible API", "model", openaiConfig.ModelName, "endpoint", openaiConfig.Endpoint)
		return provider, nil

	default:
		return nil, fmt.Errorf("unknown llm provider: %s", config.Provider)
	}
}

// CloseProvider attempts to close the provider if it implements Close
func CloseProvider(provider llm.Provider, logger *log.Logger) {
	if closer, ok := provider.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("Failed to close llm provider", "error", err)
		}
	}
}
