package types

// InsightType tags a general spending insight
type InsightType string

const (
	InsightTypeWarning     InsightType = "warning"
	InsightTypeTip         InsightType = "tip"
	InsightTypeAchievement InsightType = "achievement"
)

// AllowedInsightTypes lists the general insight types in prompt order
var AllowedInsightTypes = []InsightType{
	InsightTypeWarning,
	InsightTypeTip,
	InsightTypeAchievement,
}

// AllowedInsightTypesMap is AllowedInsightTypes keyed for lookups
var AllowedInsightTypesMap = func() map[InsightType]struct{} {
	m := make(map[InsightType]struct{}, len(AllowedInsightTypes))
	for _, t := range AllowedInsightTypes {
		m[t] = struct{}{}
	}
	return m
}()

// InsightCategory tags a categorical insight
type InsightCategory string

const (
	InsightCategoryGroceries     InsightCategory = "groceries"
	InsightCategoryTravel        InsightCategory = "travel"
	InsightCategoryMeals         InsightCategory = "meals"
	InsightCategoryEntertainment InsightCategory = "entertainment"
)

// AllowedInsightCategories lists the categorical insight tags
var AllowedInsightCategories = []InsightCategory{
	InsightCategoryGroceries,
	InsightCategoryTravel,
	InsightCategoryMeals,
	InsightCategoryEntertainment,
}

// AllowedInsightCategoriesMap is AllowedInsightCategories keyed for lookups
var AllowedInsightCategoriesMap = func() map[InsightCategory]struct{} {
	m := make(map[InsightCategory]struct{}, len(AllowedInsightCategories))
	for _, c := range AllowedInsightCategories {
		m[c] = struct{}{}
	}
	return m
}()

// GeneralInsight is a titled note about spending habits
type GeneralInsight struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Type        InsightType `json:"type"`
}

// CategoricalInsight groups short observations about one spending category
type CategoricalInsight struct {
	Type   InsightCategory `json:"type"`
	Points []string        `json:"points"`
}

// StructuredInsights is the validated insight report for an export
type StructuredInsights struct {
	General     []GeneralInsight     `json:"general"`
	Categorical []CategoricalInsight `json:"categorical"`
}

// Judgment is the assessment of how necessary a single purchase was
type Judgment struct {
	// NecessarySpend is within [0,1], 1 being entirely necessary
	NecessarySpend float64 `json:"necessarySpend"`
	Reason         string  `json:"reason"`
	Alternatives   string  `json:"alternatives"`
}
