package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/spend-advisor/internal/types"
	"github.com/philippgille/chromem-go"
)

const collectionPrefix = "session-"

// Embedder produces embedding vectors, usually an llm.Provider
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Match is a remembered transaction similar to a query
type Match struct {
	Content     string
	Date        string
	Description string
	Category    string
	Amount      string
	// Similarity is the cosine similarity score (0.0-1.0)
	Similarity float32
}

// Index remembers each session's past transactions so later questions can
// cite similar purchases. Each session gets its own collection.
type Index struct {
	db          *chromem.DB
	embed       chromem.EmbeddingFunc
	logger      *log.Logger
	concurrency int
}

// NewIndex creates an index. An empty dir keeps everything in memory;
// otherwise collections are persisted under dir.
func NewIndex(dir string, embedder Embedder, logger *log.Logger) (*Index, error) {
	db := chromem.NewDB()
	if dir != "" {
		var err error
		db, err = chromem.NewPersistentDB(dir, true)
		if err != nil {
			return nil, fmt.Errorf("failed to create chromem database: %w", err)
		}
	}

	// Create a wrapper embedding function that uses our Embedder
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	logger.Info("Opened spending memory",
		"path", dir,
		"collections", len(db.ListCollections()))

	return &Index{
		db:          db,
		embed:       embed,
		logger:      logger,
		concurrency: runtime.NumCPU(),
	}, nil
}

// Hash creates a SHA-256 hash of the content
func Hash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// Content renders a transaction as the text that gets embedded
func Content(r types.TransactionRecord, spend string) string {
	parts := []string{r.TransactionDate, r.Description}
	if r.Category != "" {
		parts = append(parts, r.Category)
	}
	parts = append(parts, spend)
	return strings.Join(parts, " | ")
}

func collectionName(sessionID string) string {
	return collectionPrefix + sessionID
}

// Remember stores records for the session. spend renders the money a record
// represents. Records already remembered are skipped.
func (i *Index) Remember(ctx context.Context, sessionID string, records []types.TransactionRecord, spend func(types.TransactionRecord) string) (int, error) {
	start := time.Now()

	collection, err := i.db.GetOrCreateCollection(collectionName(sessionID), nil, i.embed)
	if err != nil {
		return 0, fmt.Errorf("failed to create collection: %w", err)
	}

	seen := make(map[string]bool, len(records))
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		amount := spend(r)
		content := Content(r, amount)
		id := Hash(content)
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := collection.GetByID(ctx, id); err == nil {
			continue
		}
		docs = append(docs, chromem.Document{
			ID: id,
			Metadata: map[string]string{
				"date":        r.TransactionDate,
				"description": r.Description,
				"category":    r.Category,
				"amount":      amount,
			},
			Content: content,
		})
	}

	if len(docs) == 0 {
		return 0, nil
	}

	if err := collection.AddDocuments(ctx, docs, i.concurrency); err != nil {
		return 0, fmt.Errorf("failed to add documents to collection: %w", err)
	}

	i.logger.Debug("Remembered transactions",
		"session", sessionID,
		"added", len(docs),
		"total", collection.Count(),
		"duration", time.Since(start))

	return len(docs), nil
}

// Recall returns up to n remembered transactions most similar to query,
// best match first. A session with nothing remembered returns no matches.
func (i *Index) Recall(ctx context.Context, sessionID, query string, n int) ([]Match, error) {
	collection := i.db.GetCollection(collectionName(sessionID), i.embed)
	if collection == nil || n <= 0 {
		return nil, nil
	}
	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if n > count {
		n = count
	}

	results, err := collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			Content:     r.Content,
			Date:        r.Metadata["date"],
			Description: r.Metadata["description"],
			Category:    r.Metadata["category"],
			Amount:      r.Metadata["amount"],
			Similarity:  r.Similarity,
		})
	}

	// Sort results by similarity (highest first)
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Similarity > matches[b].Similarity
	})

	return matches, nil
}

// Count returns the number of remembered transactions for the session
func (i *Index) Count(sessionID string) int {
	collection := i.db.GetCollection(collectionName(sessionID), i.embed)
	if collection == nil {
		return 0
	}
	return collection.Count()
}

// Forget drops everything remembered for the session
func (i *Index) Forget(sessionID string) error {
	if err := i.db.DeleteCollection(collectionName(sessionID)); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}
