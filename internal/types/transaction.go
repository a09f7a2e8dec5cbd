package types

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TransactionRecord is one parsed row of a bank export. Which of the
// profile-specific fields are populated depends on the profile that read it.
type TransactionRecord struct {
	// TransactionDate is the date token exactly as it appeared in the file
	TransactionDate string `json:"transactionDate"`
	// Date is the parsed transaction date, used for ordering only
	Date        time.Time `json:"-"`
	PostedDate  string    `json:"postedDate"`
	Description string    `json:"description"`
	Category    string    `json:"category"`

	// Split debit/credit columns (capitalone)
	CardNo string  `json:"cardNo,omitempty"`
	Debit  float64 `json:"debit"`
	Credit float64 `json:"credit"`

	// Single signed amount column (chase)
	Type   string  `json:"type,omitempty"`
	Amount float64 `json:"amount"`
}

// CategoryTotal is the summed spend for one category across an export
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    string  `json:"total"`
	Value    float64 `json:"value"`
	Count    int     `json:"count"`
}

// NewTransaction is a single purchase submitted for a judgment
type NewTransaction struct {
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
}

// Validate reports every missing or invalid field
func (t NewTransaction) Validate() error {
	var invalids []string
	if strings.TrimSpace(t.Description) == "" {
		invalids = append(invalids, "description is required")
	}
	if strings.TrimSpace(t.Category) == "" {
		invalids = append(invalids, "category is required")
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		invalids = append(invalids, fmt.Sprintf("amount=%v is not a finite number", t.Amount))
	}
	if len(invalids) > 0 {
		return fmt.Errorf("invalid transaction: %s", strings.Join(invalids, ", "))
	}
	return nil
}
