package insights

import (
	"fmt"
	"strings"

	"github.com/lox/spend-advisor/internal/llm"
	"github.com/lox/spend-advisor/internal/memory"
	"github.com/lox/spend-advisor/internal/types"
)

const systemInstruction = "You are a personal finance assistant. You read card transaction exports and give specific, " +
	"practical advice grounded in the numbers you were given. Never invent transactions."

const analysisPrompt = `The attached CSV file is a credit card transaction export. The first row is a header naming the columns.

Analyze the spending in it and reply with JSON containing:

1. "general": spending insights about the user's habits. Use exactly one of each type:
   - "warning": a problem in the spending habits, e.g. overlapping subscriptions
   - "tip": a small change that would save money
   - "achievement": progress or a good habit worth acknowledging
   Each has a short "title" and a one or two sentence "description" citing amounts where possible.

2. "categorical": higher level observations per spending category. "type" is one of
   groceries, travel, meals, entertainment. "points" is a list of short, specific observations.
   Only include categories the data supports.`

const primePrompt = `The attached CSV file is a credit card transaction export. The first row is a header naming the columns.

Study it carefully; I will ask you about new purchases later. Write a detailed report with these sections:
Overview, Temporal Analysis, Category Analysis, Vendor Analysis and Recommendations. Give numbers wherever they
are available and suggest cheaper alternatives for the categories with the most spending.`

func judgmentPrompt(tx types.NewTransaction, similar []memory.Match) string {
	var sb strings.Builder
	sb.WriteString("There was a brand new expenditure:\n\n")
	fmt.Fprintf(&sb, "Description: %s\n", tx.Description)
	fmt.Fprintf(&sb, "Category: %s\n", tx.Category)
	fmt.Fprintf(&sb, "Amount: %.2f\n\n", tx.Amount)

	if len(similar) > 0 {
		sb.WriteString("Similar past purchases from the export:\n")
		for _, m := range similar {
			fmt.Fprintf(&sb, "- %s\n", m.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`Based on the spending we discussed, judge how necessary this purchase was. Reply with JSON:
- "necessarySpend": a number from 0 to 1, where 1 is entirely necessary
- "reason": a brief, polite explanation of the judgment
- "alternatives": one alternative that would have saved money`)
	return sb.String()
}

var insightsSchema = llm.Object(map[string]*llm.Schema{
	"general": llm.ArrayOf(llm.Object(map[string]*llm.Schema{
		"title":       llm.String("Short headline"),
		"description": llm.String("One or two sentences with specifics"),
		"type":        llm.String("Kind of insight", insightTypeNames()...),
	}, "title", "description", "type")),
	"categorical": llm.ArrayOf(llm.Object(map[string]*llm.Schema{
		"type":   llm.String("Spending category", insightCategoryNames()...),
		"points": llm.ArrayOf(llm.String("A short observation")),
	}, "type", "points")),
}, "general", "categorical")

var judgmentSchema = llm.Object(map[string]*llm.Schema{
	"necessarySpend": llm.Number("How necessary the purchase was, from 0 to 1"),
	"reason":         llm.String("Why this judgment was made"),
	"alternatives":   llm.String("A cheaper alternative"),
}, "necessarySpend", "reason", "alternatives")

func insightTypeNames() []string {
	names := make([]string, len(types.AllowedInsightTypes))
	for i, t := range types.AllowedInsightTypes {
		names[i] = string(t)
	}
	return names
}

func insightCategoryNames() []string {
	names := make([]string, len(types.AllowedInsightCategories))
	for i, c := range types.AllowedInsightCategories {
		names[i] = string(c)
	}
	return names
}
