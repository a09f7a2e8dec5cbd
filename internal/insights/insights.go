package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/spend-advisor/internal/agent"
	"github.com/lox/spend-advisor/internal/extractor"
	"github.com/lox/spend-advisor/internal/llm"
	"github.com/lox/spend-advisor/internal/memory"
	"github.com/lox/spend-advisor/internal/session"
	"github.com/lox/spend-advisor/internal/types"
)

const csvMIMEType = "text/csv"

var (
	// ErrNoContext means the session has not been primed with an export yet
	ErrNoContext = errors.New("no spending context for session")

	// ErrInvalidResponse means the model kept replying with data that failed
	// validation
	ErrInvalidResponse = errors.New("invalid response from model")
)

type Config struct {
	// CorrectionAttempts bounds model calls per operation, including the first
	CorrectionAttempts int
	// RecallLimit is how many similar past purchases are cited when judging
	RecallLimit int
}

func DefaultConfig() Config {
	return Config{
		CorrectionAttempts: 3,
		RecallLimit:        5,
	}
}

// Orchestrator turns exports and purchases into model-backed insights. Each
// session owns its own conversation.
type Orchestrator struct {
	provider  llm.Provider
	agent     *agent.Agent
	store     session.Store
	locker    *session.Locker
	memory    *memory.Index
	extractor *extractor.Extractor
	logger    *log.Logger
	config    Config
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator with explicit dependencies. index
// may be nil to disable spending memory.
func NewOrchestrator(
	provider llm.Provider,
	store session.Store,
	locker *session.Locker,
	index *memory.Index,
	ex *extractor.Extractor,
	logger *log.Logger,
	config Config,
) *Orchestrator {
	return &Orchestrator{
		provider:  provider,
		agent:     agent.NewAgent(logger, provider, config.CorrectionAttempts),
		store:     store,
		locker:    locker,
		memory:    index,
		extractor: ex,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// AnalyzeSpending asks the model for a structured insight report on the
// export at filePath. It keeps no state between calls.
func (o *Orchestrator) AnalyzeSpending(ctx context.Context, filePath string) (*types.StructuredInsights, error) {
	startTime := time.Now()

	ref, err := o.provider.UploadFile(ctx, filePath, csvMIMEType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}
	defer o.deleteFile(ctx, ref)

	res, err := o.agent.RunLoop(ctx, nil,
		[]llm.Part{llm.File(ref), llm.Text(analysisPrompt)},
		llm.Options{
			SystemInstruction: systemInstruction,
			Schema:            insightsSchema,
			SchemaName:        "spending_insights",
		},
		validateInsights,
	)
	if err != nil {
		return nil, wrapAgentError("failed to analyze spending", err)
	}

	insights := res.Value.(*types.StructuredInsights)

	if counts := countGeneral(insights); !oneOfEach(counts, len(insights.General)) {
		o.logger.Warn("Model did not return exactly one insight of each type, keeping them as returned",
			"warning", counts[types.InsightTypeWarning],
			"tip", counts[types.InsightTypeTip],
			"achievement", counts[types.InsightTypeAchievement])
	}

	o.logger.Info("Analyzed spending",
		"general", len(insights.General),
		"categorical", len(insights.Categorical),
		"attempts", res.Attempts,
		"duration", time.Since(startTime))

	return insights, nil
}

// PrimeConversationContext uploads the export into the session's
// conversation so later judgments can draw on it. The session is created if
// it does not exist.
func (o *Orchestrator) PrimeConversationContext(ctx context.Context, sessionID, filePath string) error {
	startTime := time.Now()

	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := o.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		sess = session.New(sessionID, o.now())
	} else if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	ref, err := o.provider.UploadFile(ctx, filePath, csvMIMEType)
	if err != nil {
		return fmt.Errorf("failed to upload export: %w", err)
	}

	parts := []llm.Part{llm.File(ref), llm.Text(primePrompt)}
	res, err := o.agent.RunLoop(ctx, sess.History, parts,
		llm.Options{SystemInstruction: systemInstruction},
		validateReport,
	)
	if err != nil {
		o.deleteFile(ctx, ref)
		return wrapAgentError("failed to prime conversation", err)
	}

	sess.Append(o.now(),
		llm.Message{Role: llm.RoleUser, Parts: parts},
		llm.Message{Role: llm.RoleModel, Parts: []llm.Part{llm.Text(res.Reply)}},
	)
	sess.Primed = true

	if err := o.store.Save(ctx, sess); err != nil {
		o.deleteFile(ctx, ref)
		return fmt.Errorf("failed to save session: %w", err)
	}

	o.remember(ctx, sessionID, filePath)

	o.logger.Info("Primed conversation",
		"session", sessionID,
		"turns", len(sess.History),
		"duration", time.Since(startTime))

	return nil
}

// ClassifyTransaction asks the session's conversation how necessary a new
// purchase was. The session must have been primed.
func (o *Orchestrator) ClassifyTransaction(ctx context.Context, sessionID string, tx types.NewTransaction) (*types.Judgment, error) {
	startTime := time.Now()

	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := o.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("%w: session %s", ErrNoContext, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !sess.Primed {
		return nil, fmt.Errorf("%w: session %s", ErrNoContext, sessionID)
	}

	parts := []llm.Part{llm.Text(judgmentPrompt(tx, o.recall(ctx, sessionID, tx)))}
	res, err := o.agent.RunLoop(ctx, sess.History, parts,
		llm.Options{
			SystemInstruction: systemInstruction,
			Schema:            judgmentSchema,
			SchemaName:        "purchase_judgment",
		},
		validateJudgment,
	)
	if err != nil {
		return nil, wrapAgentError("failed to classify transaction", err)
	}
	judgment := res.Value.(*types.Judgment)

	sess.Append(o.now(),
		llm.Message{Role: llm.RoleUser, Parts: parts},
		llm.Message{Role: llm.RoleModel, Parts: []llm.Part{llm.Text(res.Reply)}},
	)
	if err := o.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	o.logger.Info("Classified transaction",
		"session", sessionID,
		"description", tx.Description,
		"necessary_spend", judgment.NecessarySpend,
		"attempts", res.Attempts,
		"duration", time.Since(startTime))

	return judgment, nil
}

// ResetSession forgets the session's conversation and memory. Resetting an
// unknown session is not an error.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := o.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		o.forget(sessionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if err := o.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	o.Expire(ctx, sess)

	o.logger.Info("Reset session", "session", sessionID)
	return nil
}

// Expire releases remote files and memory held by a session that has
// already been removed from the store
func (o *Orchestrator) Expire(ctx context.Context, sess *session.Session) {
	for _, ref := range sess.Files() {
		o.deleteFile(ctx, ref)
	}
	o.forget(sess.ID)
}

// Primed reports whether the session can answer judgments
func (o *Orchestrator) Primed(ctx context.Context, sessionID string) (bool, error) {
	sess, err := o.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.Primed, nil
}

// deleteFile removes an uploaded file even if ctx is already cancelled
func (o *Orchestrator) deleteFile(ctx context.Context, ref llm.FileRef) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := o.provider.DeleteFile(ctx, ref); err != nil {
		o.logger.Warn("Failed to delete uploaded file", "name", ref.Name, "error", err)
	}
}

func (o *Orchestrator) remember(ctx context.Context, sessionID, filePath string) {
	if o.memory == nil || o.extractor == nil {
		return
	}
	ex := o.extractor.Extract(ctx, filePath)
	if ex.Err != nil {
		return
	}
	profile := o.extractor.Profile()
	added, err := o.memory.Remember(ctx, sessionID, ex.Transactions, func(r types.TransactionRecord) string {
		return profile.Spend(r).StringFixed(2)
	})
	if err != nil {
		o.logger.Warn("Failed to remember transactions", "session", sessionID, "error", err)
		return
	}
	o.logger.Debug("Remembered transactions", "session", sessionID, "added", added)
}

func (o *Orchestrator) recall(ctx context.Context, sessionID string, tx types.NewTransaction) []memory.Match {
	if o.memory == nil || o.config.RecallLimit <= 0 {
		return nil
	}
	matches, err := o.memory.Recall(ctx, sessionID, tx.Description+" "+tx.Category, o.config.RecallLimit)
	if err != nil {
		o.logger.Warn("Failed to recall similar purchases", "session", sessionID, "error", err)
		return nil
	}
	return matches
}

func (o *Orchestrator) forget(sessionID string) {
	if o.memory == nil {
		return
	}
	if err := o.memory.Forget(sessionID); err != nil {
		o.logger.Warn("Failed to forget session memory", "session", sessionID, "error", err)
	}
}

func wrapAgentError(msg string, err error) error {
	if errors.Is(err, agent.ErrNoValidResponse) {
		return fmt.Errorf("%s: %w: %w", msg, ErrInvalidResponse, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
