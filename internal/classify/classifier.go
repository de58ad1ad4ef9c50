// Package classify assigns collected articles to editorial categories
// using keyword rules. The category doubles as the digest ordering key.
package classify

import (
	"strings"

	"github.com/bluevlad/HealthPulse/internal/model"
)

// Rule maps a set of keywords to a category. Lower Priority sorts first
// in the digest; rules are evaluated in Priority order so the most
// specific category wins.
type Rule struct {
	Category model.Category
	Priority int
	Keywords []string
}

// defaultRules mirror the categories of the healthcare news domain.
var defaultRules = []Rule{
	{
		Category: model.CategoryRegulatory,
		Priority: 0,
		Keywords: []string{"fda", "mfds", "approval", "cleared", "clearance", "regulation", "regulatory", "recall", "authorization"},
	},
	{
		Category: model.CategoryMarket,
		Priority: 1,
		Keywords: []string{"investment", "funding", "acquisition", "merger", "m&a", "ipo", "market size", "revenue", "valuation"},
	},
	{
		Category: model.CategoryTechnology,
		Priority: 2,
		Keywords: []string{"clinical trial", "r&d", "patent", "biomarker", "ai diagnosis", "algorithm", "genome", "liquid biopsy", "molecular"},
	},
	{
		Category: model.CategoryCompetitor,
		Priority: 3,
		Keywords: []string{"competitor", "rival"},
	},
	{
		Category: model.CategoryProduct,
		Priority: 4,
		Keywords: []string{"launch", "launches", "released", "new product", "diagnostic kit", "test kit", "device"},
	},
}

// priorities for digest ordering, including the fallback category.
var priorities = map[model.Category]int{
	model.CategoryRegulatory: 0,
	model.CategoryMarket:     1,
	model.CategoryTechnology: 2,
	model.CategoryCompetitor: 3,
	model.CategoryProduct:    4,
	model.CategoryGeneral:    5,
}

// Priority returns the digest sort rank of a category. Unknown
// categories sort last.
func Priority(c model.Category) int {
	if p, ok := priorities[c]; ok {
		return p
	}
	return len(priorities)
}

// Classifier matches article text against keyword rules.
type Classifier struct {
	rules []Rule
}

// New returns a classifier with the default healthcare rule set.
func New() *Classifier {
	return NewWithRules(defaultRules)
}

// NewWithRules returns a classifier with a custom rule set.
func NewWithRules(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the first category whose keywords appear in the
// title or description, falling back to general.
func (c *Classifier) Classify(title, description string) model.Category {
	text := strings.ToLower(title + " " + description)

	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Category
			}
		}
	}

	return model.CategoryGeneral
}
