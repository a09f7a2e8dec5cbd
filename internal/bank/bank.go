package bank

import (
	"math"
	"sort"
	"time"

	"github.com/lox/spend-advisor/internal/csvrows"
	"github.com/lox/spend-advisor/internal/types"
	"github.com/shopspring/decimal"
)

// Profile describes the column layout and date format of one bank's CSV export
type Profile interface {
	// Name returns the name of the profile
	Name() string

	// DateColumn is the header of the transaction date column
	DateColumn() string

	// DateLayout is the fixed time layout of the transaction date column
	DateLayout() string

	// Record builds a transaction record from a row whose date already parsed
	Record(row csvrows.Row, date time.Time) types.TransactionRecord

	// Spend returns the money that left the account for a record
	Spend(r types.TransactionRecord) decimal.Decimal
}

// Registry maintains a list of available profiles
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry creates a new profile registry
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]Profile),
	}
}

// Register adds a profile to the registry
func (r *Registry) Register(p Profile) {
	r.profiles[p.Name()] = p
}

// Get returns a profile by name
func (r *Registry) Get(name string) (Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// List returns the sorted names of all registered profiles
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseMoney converts a currency cell to a float. Empty cells count as "0"
// and anything unparseable or beyond float64 range is 0.0.
func ParseMoney(cell string) float64 {
	d, err := ParseDecimal(cell)
	if err != nil {
		return 0
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

// Decimal converts a parsed amount back to a decimal. Non-finite values
// are zero.
func Decimal(f float64) decimal.Decimal {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// ParseDecimal is ParseMoney without the lossy conversion
func ParseDecimal(cell string) (decimal.Decimal, error) {
	if cell == "" {
		cell = "0"
	}
	return decimal.NewFromString(cell)
}
