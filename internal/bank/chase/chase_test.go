package chase

import (
	"strings"
	"testing"
	"time"

	"github.com/lox/spend-advisor/internal/csvrows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	input := "Transaction Date,Post Date,Description,Category,Type,Amount,Memo\n" +
		"03/01/2024,03/02/2024,WHOLEFDS #123,Groceries,Sale,-54.21,\n"
	rows, err := csvrows.ParseReader(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	c := New()
	date, err := time.Parse(c.DateLayout(), rows[0].Get(c.DateColumn()))
	require.NoError(t, err)

	rec := c.Record(rows[0], date)
	assert.Equal(t, "03/01/2024", rec.TransactionDate)
	assert.Equal(t, "03/02/2024", rec.PostedDate)
	assert.Equal(t, "WHOLEFDS #123", rec.Description)
	assert.Equal(t, "Groceries", rec.Category)
	assert.Equal(t, "Sale", rec.Type)
	assert.Equal(t, -54.21, rec.Amount)
	assert.Equal(t, "54.21", c.Spend(rec).StringFixed(2))
}

func TestRecordMissingColumns(t *testing.T) {
	rows, err := csvrows.ParseReader(strings.NewReader("Transaction Date,Amount\n01/05/2024,oops\n"))
	require.NoError(t, err)

	rec := New().Record(rows[0], time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "", rec.PostedDate)
	assert.Equal(t, "", rec.Description)
	assert.Equal(t, "", rec.Type)
	assert.Equal(t, 0.0, rec.Amount)
}
