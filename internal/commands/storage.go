package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/spend-advisor/internal/memory"
	"github.com/lox/spend-advisor/internal/session"
)

// SetupSessionStore opens the SQLite store when a path is configured and
// falls back to an in-memory store. The returned close func is never nil.
func SetupSessionStore(ctx context.Context, config SessionConfig, logger *log.Logger) (session.Store, func(), error) {
	if config.SessionDB == "" {
		logger.Info("Keeping sessions in memory")
		return session.NewMemoryStore(), func() {}, nil
	}

	store, err := session.OpenSQLite(ctx, config.SessionDB, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session database: %w", err)
	}

	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close session database", "error", err)
		}
	}
	return store, closeFn, nil
}

// SetupMemory returns nil when spending memory is disabled
func SetupMemory(config MemoryConfig, embedder memory.Embedder, logger *log.Logger) (*memory.Index, error) {
	if !config.Memory {
		return nil, nil
	}

	index, err := memory.NewIndex(config.MemoryDir, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create spending memory: %w", err)
	}
	return index, nil
}
