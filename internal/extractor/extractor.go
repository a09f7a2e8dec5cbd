package extractor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/spend-advisor/internal/bank"
	"github.com/lox/spend-advisor/internal/csvrows"
	"github.com/lox/spend-advisor/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// DefaultLimit is the number of transactions returned to API clients
const DefaultLimit = 10

const uncategorized = "Uncategorized"

// Extraction is the outcome of reading one export. Reading never fails hard:
// an unreadable file yields no transactions and Err explains why.
type Extraction struct {
	// Transactions are ordered most recent first
	Transactions []types.TransactionRecord
	// Total is the number of valid rows before any limit was applied
	Total int
	// Skipped counts rows dropped for an empty or unparseable date
	Skipped int
	// Err is set when the file could not be read
	Err error
}

// Degraded reports whether the file could not be read
func (e Extraction) Degraded() bool {
	return e.Err != nil
}

// Top returns at most limit transactions; limit <= 0 returns all of them
func (e Extraction) Top(limit int) []types.TransactionRecord {
	if limit > 0 && len(e.Transactions) > limit {
		return e.Transactions[:limit]
	}
	return e.Transactions
}

// Extractor reads exports laid out by one bank profile
type Extractor struct {
	profile bank.Profile
	logger  *log.Logger
}

// New creates an extractor for exports in the given profile
func New(profile bank.Profile, logger *log.Logger) *Extractor {
	return &Extractor{
		profile: profile,
		logger:  logger,
	}
}

// Profile returns the profile used to read exports
func (e *Extractor) Profile() bank.Profile {
	return e.profile
}

// ExtractTopTransactions reads filePath and returns its limit most recent
// transactions.
func (e *Extractor) ExtractTopTransactions(ctx context.Context, filePath string, limit int) Extraction {
	ex := e.Extract(ctx, filePath)
	ex.Transactions = ex.Top(limit)
	return ex
}

// Extract reads every valid transaction in filePath, most recent first
func (e *Extractor) Extract(ctx context.Context, filePath string) Extraction {
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return Extraction{Transactions: []types.TransactionRecord{}, Err: err}
	}

	rows, err := csvrows.ParseFile(filePath)
	if err != nil {
		e.logger.Warn("Failed to read transaction export, treating as empty",
			"path", filePath,
			"profile", e.profile.Name(),
			"error", err)
		return Extraction{
			Transactions: []types.TransactionRecord{},
			Err:          fmt.Errorf("failed to read transaction export: %w", err),
		}
	}

	records, skipped := e.FromRows(rows)

	e.logger.Debug("Extracted transactions",
		"path", filePath,
		"profile", e.profile.Name(),
		"rows", len(rows),
		"valid", len(records),
		"skipped", skipped,
		"duration", time.Since(startTime))

	return Extraction{
		Transactions: records,
		Total:        len(records),
		Skipped:      skipped,
	}
}

// FromRows converts rows into records sorted most recent first. Rows with an
// empty or unparseable date are dropped; equal dates keep file order.
func (e *Extractor) FromRows(rows []csvrows.Row) ([]types.TransactionRecord, int) {
	records := make([]types.TransactionRecord, 0, len(rows))
	skipped := 0

	for _, row := range rows {
		raw := row.Get(e.profile.DateColumn())
		if raw == "" {
			skipped++
			continue
		}
		date, err := time.Parse(e.profile.DateLayout(), raw)
		if err != nil {
			e.logger.Debug("Skipping row with unparseable date",
				"line", row.Line,
				"date", raw,
				"layout", e.profile.DateLayout())
			skipped++
			continue
		}
		records = append(records, e.profile.Record(row, date))
	}

	slices.SortStableFunc(records, func(a, b types.TransactionRecord) int {
		return b.Date.Compare(a.Date)
	})

	return records, skipped
}

// Summarize totals spend per category, ordered by category name
func (e *Extractor) Summarize(records []types.TransactionRecord) []types.CategoryTotal {
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int)

	for _, r := range records {
		category := r.Category
		if category == "" {
			category = uncategorized
		}
		sums[category] = sums[category].Add(e.profile.Spend(r))
		counts[category]++
	}

	totals := make([]types.CategoryTotal, 0, len(sums))
	for category, sum := range sums {
		totals = append(totals, types.CategoryTotal{
			Category: category,
			Total:    sum.StringFixed(2),
			Value:    sum.Round(2).InexactFloat64(),
			Count:    counts[category],
		})
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Category < totals[j].Category
	})

	return totals
}
