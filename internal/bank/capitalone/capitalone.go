package capitalone

import (
	"time"

	"github.com/lox/spend-advisor/internal/bank"
	"github.com/lox/spend-advisor/internal/csvrows"
	"github.com/lox/spend-advisor/internal/types"
	"github.com/shopspring/decimal"
)

const (
	colTransactionDate = "Transaction Date"
	colPostedDate      = "Posted Date"
	colCardNo          = "Card No."
	colDescription     = "Description"
	colCategory        = "Category"
	colDebit           = "Debit"
	colCredit          = "Credit"

	dateLayout = "2006-01-02"
)

// CapitalOne reads Capital One card exports, which split money into
// separate debit and credit columns and use ISO dates.
type CapitalOne struct{}

// New creates a new Capital One profile
func New() *CapitalOne {
	return &CapitalOne{}
}

// Name returns the name of the profile
func (c *CapitalOne) Name() string {
	return "capitalone"
}

// DateColumn is the ISO transaction date column
func (c *CapitalOne) DateColumn() string { return colTransactionDate }

// DateLayout is YYYY-MM-DD
func (c *CapitalOne) DateLayout() string { return dateLayout }

// Record builds a record from a row
func (c *CapitalOne) Record(row csvrows.Row, date time.Time) types.TransactionRecord {
	return types.TransactionRecord{
		TransactionDate: row.Get(colTransactionDate),
		Date:            date,
		PostedDate:      row.Get(colPostedDate),
		CardNo:          row.Get(colCardNo),
		Description:     row.Get(colDescription),
		Category:        row.Get(colCategory),
		Debit:           bank.ParseMoney(row.Get(colDebit)),
		Credit:          bank.ParseMoney(row.Get(colCredit)),
	}
}

// Spend is debit minus credit
func (c *CapitalOne) Spend(r types.TransactionRecord) decimal.Decimal {
	return bank.Decimal(r.Debit).Sub(bank.Decimal(r.Credit))
}

// Ensure CapitalOne implements the Profile interface
var _ bank.Profile = (*CapitalOne)(nil)
