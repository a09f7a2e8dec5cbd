package chase

import (
	"time"

	"github.com/lox/spend-advisor/internal/bank"
	"github.com/lox/spend-advisor/internal/csvrows"
	"github.com/lox/spend-advisor/internal/types"
	"github.com/shopspring/decimal"
)

const (
	colTransactionDate = "Transaction Date"
	colPostDate        = "Post Date"
	colDescription     = "Description"
	colCategory        = "Category"
	colType            = "Type"
	colAmount          = "Amount"

	dateLayout = "01/02/2006"
)

// Chase reads Chase card exports: US dates and a single signed amount where
// purchases are negative.
type Chase struct{}

// New creates a new Chase profile
func New() *Chase {
	return &Chase{}
}

// Name returns the name of the profile
func (c *Chase) Name() string {
	return "chase"
}

// DateColumn is the transaction date column
func (c *Chase) DateColumn() string { return colTransactionDate }

// DateLayout is MM/DD/YYYY
func (c *Chase) DateLayout() string { return dateLayout }

// Record builds a record from a row
func (c *Chase) Record(row csvrows.Row, date time.Time) types.TransactionRecord {
	return types.TransactionRecord{
		TransactionDate: row.Get(colTransactionDate),
		Date:            date,
		PostedDate:      row.Get(colPostDate),
		Description:     row.Get(colDescription),
		Category:        row.Get(colCategory),
		Type:            row.Get(colType),
		Amount:          bank.ParseMoney(row.Get(colAmount)),
	}
}

// Spend flips the sign of the amount so purchases count as positive spend
func (c *Chase) Spend(r types.TransactionRecord) decimal.Decimal {
	return bank.Decimal(r.Amount).Neg()
}

// Ensure Chase implements the Profile interface
var _ bank.Profile = (*Chase)(nil)
