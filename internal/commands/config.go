package commands

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
)

// CommonConfig contains configuration common to all commands
type CommonConfig struct {
	// LogLevel is the logging level to use
	LogLevel string `help:"Log level (debug, info, warn, error)" default:"info" enum:"debug,info,warn,error" env:"LOG_LEVEL"`
	// LogFormat selects human readable text or JSON lines
	LogFormat string `help:"Log format (text, json)" default:"text" enum:"text,json" env:"LOG_FORMAT"`
	// Profile is the bank export layout uploads are read with
	Profile string `help:"Bank export profile" default:"capitalone" enum:"capitalone,chase" env:"SPEND_PROFILE"`
}

// LLMConfig contains flag definitions for the model provider
type LLMConfig struct {
	Provider string `help:"LLM provider to use" default:"gemini" enum:"gemini,openai" env:"LLM_PROVIDER"`

	GeminiAPIKey         string `name:"gemini-api-key" help:"Google Gemini API key" env:"GEMINI_API_KEY,GOOGLE_API_KEY"`
	GeminiModel          string `help:"Gemini model for analysis and judgments" default:"gemini-2.0-flash" env:"GEMINI_MODEL"`
	GeminiEmbeddingModel string `help:"Gemini embedding model" default:"text-embedding-004" env:"GEMINI_EMBEDDING_MODEL"`

	OpenAIAPIKey         string `name:"openai-api-key" help:"OpenAI-compatible API key" env:"OPENAI_API_KEY"`
	OpenAIEndpoint       string `name:"openai-endpoint" help:"OpenAI-compatible API endpoint" default:"https://api.openai.com/v1" env:"OPENAI_ENDPOINT"`
	OpenAIModel          string `name:"openai-model" help:"OpenAI-compatible chat model" default:"gpt-4o-mini" env:"OPENAI_MODEL"`
	OpenAIEmbeddingModel string `name:"openai-embedding-model" help:"OpenAI-compatible embedding model" default:"text-embedding-3-small" env:"OPENAI_EMBEDDING_MODEL"`

	RetryAttempts      uint          `help:"Attempts per model call" default:"3" env:"LLM_RETRY_ATTEMPTS"`
	RetryDelay         time.Duration `help:"Initial backoff between attempts" default:"500ms" env:"LLM_RETRY_DELAY"`
	LLMTimeout         time.Duration `name:"llm-timeout" help:"Timeout for each model call attempt" default:"90s" env:"LLM_TIMEOUT"`
	CorrectionAttempts int           `help:"Model replies allowed per operation before giving up on invalid output" default:"3" env:"LLM_CORRECTION_ATTEMPTS"`
}

// SessionConfig contains flag definitions for conversation sessions
type SessionConfig struct {
	SessionDB          string        `name:"session-db" help:"Path to the SQLite session database, empty keeps sessions in memory" env:"SESSION_DB"`
	SessionTTL         time.Duration `name:"session-ttl" help:"Idle time after which a session is forgotten, 0 disables expiry" default:"24h" env:"SESSION_TTL"`
	SessionLockTimeout time.Duration `help:"How long a request waits for a busy session" default:"30s" env:"SESSION_LOCK_TIMEOUT"`
}

// MemoryConfig contains flag definitions for the spending memory
type MemoryConfig struct {
	Memory    bool   `help:"Remember uploaded transactions and cite similar purchases in judgments" default:"false" negatable:"" env:"SPEND_MEMORY"`
	MemoryDir string `help:"Directory to persist spending memory in, empty keeps it in memory" env:"SPEND_MEMORY_DIR"`
}

// LoadEnv loads a .env file from the working directory when one exists
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
