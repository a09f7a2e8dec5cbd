package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/spend-advisor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := SetupLogger(&buf, CommonConfig{LogLevel: "warn", LogFormat: "json"})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"key":"value"`)

	_, err = SetupLogger(io.Discard, CommonConfig{LogLevel: "loud"})
	assert.Error(t, err)

	_, err = SetupLogger(io.Discard, CommonConfig{LogLevel: "info", LogFormat: "xml"})
	assert.Error(t, err)
}

func TestProfiles(t *testing.T) {
	assert.Equal(t, []string{"capitalone", "chase"}, Profiles().List())

	p, err := Profile("chase")
	require.NoError(t, err)
	assert.Equal(t, "chase", p.Name())

	_, err = Profile("monzo")
	assert.ErrorContains(t, err, "unknown profile")
}

func TestSetupSessionStore(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard)

	store, closeFn, err := SetupSessionStore(ctx, SessionConfig{}, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &session.MemoryStore{}, store)

	path := filepath.Join(t.TempDir(), "nested", "sessions.db")
	store, closeFn, err = SetupSessionStore(ctx, SessionConfig{SessionDB: path}, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &session.SQLiteStore{}, store)

	require.NoError(t, store.Save(ctx, session.New("abc", time.Now())))
	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)
}

type zeroEmbedder struct{}

func (zeroEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestSetupMemory(t *testing.T) {
	logger := log.New(io.Discard)

	index, err := SetupMemory(MemoryConfig{}, zeroEmbedder{}, logger)
	require.NoError(t, err)
	assert.Nil(t, index)

	index, err = SetupMemory(MemoryConfig{Memory: true}, zeroEmbedder{}, logger)
	require.NoError(t, err)
	assert.NotNil(t, index)
}

func TestSetupProvider(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard)

	_, err := SetupProvider(ctx, LLMConfig{Provider: "gemini"}, logger)
	assert.ErrorContains(t, err, "api key")

	_, err = SetupProvider(ctx, LLMConfig{Provider: "openai"}, logger)
	assert.ErrorContains(t, err, "api key")

	_, err = SetupProvider(ctx, LLMConfig{Provider: "claude"}, logger)
	assert.ErrorContains(t, err, "unknown llm provider")

	provider, err := SetupProvider(ctx, LLMConfig{
		Provider:      "openai",
		OpenAIAPIKey:  "sk-test",
		OpenAIModel:   "gpt-4o-mini",
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		LLMTimeout:    time.Second,
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, "openai", provider.Name())
	CloseProvider(provider, logger)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SPEND_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("SPEND_TEST_VALUE"))

	require.NoError(t, LoadEnv())

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SPEND_TEST_VALUE=from-dotenv\n"), 0o600))
	require.NoError(t, LoadEnv())
	assert.Equal(t, "from-dotenv", os.Getenv("SPEND_TEST_VALUE"))
}
