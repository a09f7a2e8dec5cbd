package insights

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/spend-advisor/internal/bank/capitalone"
	"github.com/lox/spend-advisor/internal/extractor"
	"github.com/lox/spend-advisor/internal/llm"
	"github.com/lox/spend-advisor/internal/memory"
	"github.com/lox/spend-advisor/internal/session"
	"github.com/lox/spend-advisor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validInsights = `{
	"general": [
		{"title": "Subscription overlap", "description": "Three streaming services cost $35/month.", "type": "warning"},
		{"title": "Shop midweek", "description": "Groceries are cheaper on Wednesdays.", "type": "tip"},
		{"title": "Dining down", "description": "Dining out fell 20% this month.", "type": "achievement"}
	],
	"categorical": [
		{"type": "groceries", "points": ["Most spending at Whole Foods"]}
	]
}`

const exportCSV = `Transaction Date,Posted Date,Card No.,Description,Category,Debit,Credit
2024-01-02,2024-01-03,1234,STARBUCKS STORE 1,Dining,5.25,
2024-01-04,2024-01-05,1234,DELTA AIR LINES,Airfare,412.00,
`

type fixture struct {
	provider     *fakeProvider
	store        *session.MemoryStore
	locker       *session.Locker
	orchestrator *Orchestrator
	path         string
}

func newFixture(t *testing.T, withMemory bool) *fixture {
	t.Helper()
	logger := log.New(io.Discard)

	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(exportCSV), 0o600))

	provider := &fakeProvider{}
	store := session.NewMemoryStore()
	locker := session.NewLocker(50 * time.Millisecond)
	ex := extractor.New(capitalone.New(), logger)

	var index *memory.Index
	if withMemory {
		var err error
		index, err = memory.NewIndex("", provider, logger)
		require.NoError(t, err)
	}

	return &fixture{
		provider:     provider,
		store:        store,
		locker:       locker,
		orchestrator: NewOrchestrator(provider, store, locker, index, ex, logger, DefaultConfig()),
		path:         path,
	}
}

func (f *fixture) prime(t *testing.T, sessionID string) {
	t.Helper()
	f.provider.script("Overview: mostly travel and coffee.")
	require.NoError(t, f.orchestrator.PrimeConversationContext(context.Background(), sessionID, f.path))
}

func TestAnalyzeSpending(t *testing.T) {
	f := newFixture(t, false)
	f.provider.script(validInsights)

	insights, err := f.orchestrator.AnalyzeSpending(context.Background(), f.path)
	require.NoError(t, err)

	require.Len(t, insights.General, 3)
	assert.Equal(t, types.InsightTypeWarning, insights.General[0].Type)
	assert.Equal(t, "Subscription overlap", insights.General[0].Title)
	require.Len(t, insights.Categorical, 1)
	assert.Equal(t, types.InsightCategoryGroceries, insights.Categorical[0].Type)

	require.Len(t, f.provider.generates, 1)
	call := f.provider.generates[0]
	assert.Empty(t, call.history)
	require.Len(t, call.parts, 2)
	assert.NotNil(t, call.parts[0].File)
	assert.Same(t, insightsSchema, call.opts.Schema)

	// uploaded file is always cleaned up
	assert.Equal(t, f.provider.uploads, f.provider.deletes)
}

func TestAnalyzeSpendingKeepsUnexpectedCounts(t *testing.T) {
	f := newFixture(t, false)
	f.provider.script(`{
		"general": [
			{"title": "a", "description": "a", "type": "warning"},
			{"title": "b", "description": "b", "type": "warning"}
		],
		"categorical": []
	}`)

	insights, err := f.orchestrator.AnalyzeSpending(context.Background(), f.path)
	require.NoError(t, err)
	assert.Len(t, insights.General, 2)
	assert.Empty(t, insights.Categorical)
	assert.Len(t, f.provider.generates, 1)
}

func TestAnalyzeSpendingCorrectsInvalidReply(t *testing.T) {
	f := newFixture(t, false)
	f.provider.script(`{"general": [{"title": "a", "description": "b", "type": "alert"}], "categorical": []}`, validInsights)

	insights, err := f.orchestrator.AnalyzeSpending(context.Background(), f.path)
	require.NoError(t, err)
	assert.Len(t, insights.General, 3)

	require.Len(t, f.provider.generates, 2)
	correction := f.provider.generates[1].parts[0].Text
	assert.Contains(t, correction, "general[0].type='alert'")
}

func TestAnalyzeSpendingInvalidResponse(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "Here are your insights!"},
		{"unknown field", `{"general": [], "categorical": [], "summary": "x"}`},
		{"missing categorical", `{"general": []}`},
		{"empty points", `{"general": [], "categorical": [{"type": "travel", "points": []}]}`},
		{"bad category", `{"general": [], "categorical": [{"type": "housing", "points": ["x"]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.provider.script(tt.reply)

			_, err := f.orchestrator.AnalyzeSpending(context.Background(), f.path)
			assert.ErrorIs(t, err, ErrInvalidResponse)
			assert.Len(t, f.provider.generates, DefaultConfig().CorrectionAttempts)
			assert.Len(t, f.provider.deletes, 1)
		})
	}
}

func TestAnalyzeSpendingProviderErrors(t *testing.T) {
	f := newFixture(t, false)
	f.provider.generateErr = llm.ErrQuotaExceeded

	_, err := f.orchestrator.AnalyzeSpending(context.Background(), f.path)
	assert.ErrorIs(t, err, llm.ErrQuotaExceeded)
	assert.NotErrorIs(t, err, ErrInvalidResponse)
	assert.Len(t, f.provider.deletes, 1)
}

func TestAnalyzeSpendingUploadFailure(t *testing.T) {
	f := newFixture(t, false)
	f.provider.uploadErr = llm.ErrUnavailable

	_, err := f.orchestrator.AnalyzeSpending(context.Background(), f.path)
	assert.ErrorIs(t, err, llm.ErrUnavailable)
	assert.Empty(t, f.provider.generates)
	assert.Empty(t, f.provider.deletes)
}

func TestClassifyWithoutContext(t *testing.T) {
	f := newFixture(t, false)
	tx := types.NewTransaction{Description: "Coffee", Category: "Dining", Amount: 4.5}

	_, err := f.orchestrator.ClassifyTransaction(context.Background(), "unknown", tx)
	assert.ErrorIs(t, err, ErrNoContext)

	// a stored but unprimed session has no context either
	require.NoError(t, f.store.Save(context.Background(), session.New("s1", time.Now())))
	_, err = f.orchestrator.ClassifyTransaction(context.Background(), "s1", tx)
	assert.ErrorIs(t, err, ErrNoContext)

	assert.Empty(t, f.provider.generates)
}

func TestPrimeThenClassify(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.prime(t, "s1")

	primed, err := f.orchestrator.Primed(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, primed)

	f.provider.script(`{"necessarySpend": 0.2, "reason": "You already bought coffee today.", "alternatives": "Brew at home."}`)
	judgment, err := f.orchestrator.ClassifyTransaction(ctx, "s1", types.NewTransaction{Description: "Coffee", Category: "Dining", Amount: 4.5})
	require.NoError(t, err)
	assert.Equal(t, &types.Judgment{NecessarySpend: 0.2, Reason: "You already bought coffee today.", Alternatives: "Brew at home."}, judgment)

	// the question is asked inside the primed conversation
	require.Len(t, f.provider.generates, 2)
	classify := f.provider.generates[1]
	require.Len(t, classify.history, 2)
	assert.Equal(t, llm.RoleUser, classify.history[0].Role)
	assert.Len(t, classify.history[0].Files(), 1)
	assert.Equal(t, "Overview: mostly travel and coffee.", classify.history[1].TextContent())
	assert.Contains(t, classify.parts[0].Text, "Description: Coffee")
	assert.Contains(t, classify.parts[0].Text, "Amount: 4.50")

	sess, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.History, 4)
	assert.Contains(t, sess.History[3].TextContent(), "necessarySpend")

	// primed files stay available for later turns
	assert.Empty(t, f.provider.deletes)
}

func TestPrimeTwiceExtendsConversation(t *testing.T) {
	f := newFixture(t, false)
	f.prime(t, "s1")
	f.prime(t, "s1")

	sess, err := f.store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, sess.History, 4)
	assert.Len(t, f.provider.generates[1].history, 2)
}

func TestClassifyRejectsOutOfRangeScores(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"above one", `{"necessarySpend": 1.5, "reason": "r", "alternatives": "a"}`},
		{"negative", `{"necessarySpend": -0.1, "reason": "r", "alternatives": "a"}`},
		{"string score", `{"necessarySpend": "0.5", "reason": "r", "alternatives": "a"}`},
		{"missing score", `{"reason": "r", "alternatives": "a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.prime(t, "s1")
			f.provider.script(tt.reply)

			_, err := f.orchestrator.ClassifyTransaction(context.Background(), "s1", types.NewTransaction{Description: "TV", Category: "Shopping", Amount: 900})
			assert.ErrorIs(t, err, ErrInvalidResponse)

			// failed exchanges are not added to the conversation
			sess, err := f.store.Get(context.Background(), "s1")
			require.NoError(t, err)
			assert.Len(t, sess.History, 2)
		})
	}
}

func TestClassifyCorrectsScore(t *testing.T) {
	f := newFixture(t, false)
	f.prime(t, "s1")
	f.provider.script(
		`{"necessarySpend": 7, "reason": "r", "alternatives": "a"}`,
		`{"necessarySpend": 0.7, "reason": "r", "alternatives": "a"}`,
	)

	judgment, err := f.orchestrator.ClassifyTransaction(context.Background(), "s1", types.NewTransaction{Description: "Rent", Category: "Housing", Amount: 1500})
	require.NoError(t, err)
	assert.Equal(t, 0.7, judgment.NecessarySpend)

	sess, err := f.store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, sess.History, 4)
}

func TestClassifySessionBusy(t *testing.T) {
	f := newFixture(t, false)
	f.prime(t, "s1")

	unlock, err := f.locker.Lock(context.Background(), "s1")
	require.NoError(t, err)
	defer unlock()

	_, err = f.orchestrator.ClassifyTransaction(context.Background(), "s1", types.NewTransaction{Description: "x", Category: "y"})
	assert.ErrorIs(t, err, session.ErrBusy)
}

func TestSweepWaitsForInFlightClassify(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.prime(t, "s1")

	sess, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	sess.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.store.Save(ctx, sess))

	f.provider.script(`{"necessarySpend": 0.6, "reason": "Fair price.", "alternatives": "None."}`)
	f.provider.mu.Lock()
	f.provider.gate = make(chan struct{})
	f.provider.entered = make(chan struct{}, 1)
	f.provider.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		_, err := f.orchestrator.ClassifyTransaction(ctx, "s1", types.NewTransaction{Description: "Gym", Category: "Health", Amount: 40})
		errCh <- err
	}()
	<-f.provider.entered

	sweeper := session.NewSweeper(f.store, f.locker, time.Hour, f.orchestrator.Expire, log.New(io.Discard))
	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	close(f.provider.gate)
	require.NoError(t, <-errCh)

	// the classify refreshed the session, so it is no longer idle
	removed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	sess, err = f.store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, sess.Primed)
	assert.Empty(t, f.provider.deletes)
}

func TestSweepExpiresIdleSession(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.prime(t, "s1")

	sess, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	sess.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.store.Save(ctx, sess))

	sweeper := session.NewSweeper(f.store, f.locker, time.Hour, f.orchestrator.Expire, log.New(io.Discard))
	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, f.provider.deletes, 1)

	_, err = f.orchestrator.ClassifyTransaction(ctx, "s1", types.NewTransaction{Description: "x", Category: "y"})
	assert.ErrorIs(t, err, ErrNoContext)
}

func TestSessionsAreIndependent(t *testing.T) {
	f := newFixture(t, false)
	f.prime(t, "s1")

	_, err := f.orchestrator.ClassifyTransaction(context.Background(), "s2", types.NewTransaction{Description: "x", Category: "y"})
	assert.ErrorIs(t, err, ErrNoContext)
}

func TestResetSession(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.prime(t, "s1")

	require.NoError(t, f.orchestrator.ResetSession(ctx, "s1"))
	assert.Equal(t, f.provider.uploads, f.provider.deletes)
	assert.Equal(t, 0, f.orchestrator.memory.Count("s1"))

	_, err := f.orchestrator.ClassifyTransaction(ctx, "s1", types.NewTransaction{Description: "x", Category: "y"})
	assert.ErrorIs(t, err, ErrNoContext)

	require.NoError(t, f.orchestrator.ResetSession(ctx, "never-existed"))
}

func TestPrimeRemembersAndClassifyRecalls(t *testing.T) {
	f := newFixture(t, true)
	f.prime(t, "s1")
	assert.Equal(t, 2, f.orchestrator.memory.Count("s1"))

	f.provider.script(`{"necessarySpend": 0.4, "reason": "r", "alternatives": "a"}`)
	_, err := f.orchestrator.ClassifyTransaction(context.Background(), "s1", types.NewTransaction{Description: "STARBUCKS", Category: "Dining", Amount: 6})
	require.NoError(t, err)

	prompt := f.provider.generates[len(f.provider.generates)-1].parts[0].Text
	assert.Contains(t, prompt, "Similar past purchases")
	assert.Equal(t, 2, strings.Count(prompt, "\n- 2024-"))
}

func TestPrimeFailureLeavesSessionUnprimed(t *testing.T) {
	f := newFixture(t, false)
	f.provider.generateErr = llm.ErrRejected

	err := f.orchestrator.PrimeConversationContext(context.Background(), "s1", f.path)
	assert.ErrorIs(t, err, llm.ErrRejected)
	assert.Len(t, f.provider.deletes, 1)

	primed, err := f.orchestrator.Primed(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, primed)
}
