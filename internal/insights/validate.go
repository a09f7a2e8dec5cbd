package insights

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/lox/spend-advisor/internal/types"
)

// ValidationError lists every problem found in a model reply
type ValidationError struct {
	Invalid []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s. Please use only allowed values", strings.Join(e.Invalid, ", "))
}

// decodeStrict decodes a single JSON value, rejecting unknown fields and
// trailing data. Code fences around the JSON are tolerated.
func decodeStrict(reply string, v any) error {
	dec := json.NewDecoder(strings.NewReader(stripCodeFence(reply)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("response is not valid JSON for the schema: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("response has trailing data after the JSON value")
	}
	return nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func validateInsights(reply string) (any, error) {
	var out types.StructuredInsights
	if err := decodeStrict(reply, &out); err != nil {
		return nil, err
	}

	var invalids []string
	if out.General == nil {
		invalids = append(invalids, "general (missing)")
	}
	if out.Categorical == nil {
		invalids = append(invalids, "categorical (missing)")
	}
	for i, g := range out.General {
		if _, ok := types.AllowedInsightTypesMap[g.Type]; !ok {
			invalids = append(invalids, fmt.Sprintf("general[%d].type='%s'", i, g.Type))
		}
		if strings.TrimSpace(g.Title) == "" {
			invalids = append(invalids, fmt.Sprintf("general[%d].title (empty)", i))
		}
		if strings.TrimSpace(g.Description) == "" {
			invalids = append(invalids, fmt.Sprintf("general[%d].description (empty)", i))
		}
	}
	for i, c := range out.Categorical {
		if _, ok := types.AllowedInsightCategoriesMap[c.Type]; !ok {
			invalids = append(invalids, fmt.Sprintf("categorical[%d].type='%s'", i, c.Type))
		}
		if len(c.Points) == 0 {
			invalids = append(invalids, fmt.Sprintf("categorical[%d].points (empty)", i))
		}
		for j, p := range c.Points {
			if strings.TrimSpace(p) == "" {
				invalids = append(invalids, fmt.Sprintf("categorical[%d].points[%d] (empty)", i, j))
			}
		}
	}

	if len(invalids) > 0 {
		return nil, &ValidationError{Invalid: invalids}
	}
	return &out, nil
}

// judgmentReply mirrors types.Judgment with a pointer so a missing score is
// distinguishable from zero
type judgmentReply struct {
	NecessarySpend *float64 `json:"necessarySpend"`
	Reason         string   `json:"reason"`
	Alternatives   string   `json:"alternatives"`
}

func validateJudgment(reply string) (any, error) {
	var out judgmentReply
	if err := decodeStrict(reply, &out); err != nil {
		return nil, err
	}

	var invalids []string
	switch {
	case out.NecessarySpend == nil:
		invalids = append(invalids, "necessarySpend (missing)")
	case math.IsNaN(*out.NecessarySpend) || *out.NecessarySpend < 0 || *out.NecessarySpend > 1:
		invalids = append(invalids, fmt.Sprintf("necessarySpend=%v (must be between 0 and 1)", *out.NecessarySpend))
	}
	if strings.TrimSpace(out.Reason) == "" {
		invalids = append(invalids, "reason (empty)")
	}

	if len(invalids) > 0 {
		return nil, &ValidationError{Invalid: invalids}
	}
	return &types.Judgment{
		NecessarySpend: *out.NecessarySpend,
		Reason:         out.Reason,
		Alternatives:   out.Alternatives,
	}, nil
}

func validateReport(reply string) (any, error) {
	if strings.TrimSpace(reply) == "" {
		return nil, &ValidationError{Invalid: []string{"report (empty)"}}
	}
	return reply, nil
}

// countGeneral counts general insights per type, unknown types included
func countGeneral(insights *types.StructuredInsights) map[types.InsightType]int {
	counts := make(map[types.InsightType]int, len(types.AllowedInsightTypes))
	for _, t := range types.AllowedInsightTypes {
		counts[t] = 0
	}
	for _, g := range insights.General {
		counts[g.Type]++
	}
	return counts
}

func oneOfEach(counts map[types.InsightType]int, total int) bool {
	if total != len(types.AllowedInsightTypes) {
		return false
	}
	for _, t := range types.AllowedInsightTypes {
		if counts[t] != 1 {
			return false
		}
	}
	return true
}
