package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bluevlad/HealthPulse/internal/model"
)

func TestClassify(t *testing.T) {
	c := New()

	tests := []struct {
		title       string
		description string
		want        model.Category
	}{
		{"FDA grants clearance for new blood test", "", model.CategoryRegulatory},
		{"Diagnostics startup raises Series B funding", "", model.CategoryMarket},
		{"Liquid biopsy shows promise in clinical trial", "", model.CategoryTechnology},
		{"Company launches new diagnostic kit", "", model.CategoryProduct},
		{"Hospital opens new wing", "General healthcare news", model.CategoryGeneral},
		// Keywords in the description count too
		{"Industry update", "The merger closed last week", model.CategoryMarket},
		// Regulatory outranks product when both match
		{"FDA approval for newly launched device", "", model.CategoryRegulatory},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.title, tt.description), tt.title)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := New()
	assert.Equal(t, model.CategoryRegulatory, c.Classify("fda DECISION expected", ""))
}

func TestPriorityOrdering(t *testing.T) {
	assert.Less(t, Priority(model.CategoryRegulatory), Priority(model.CategoryMarket))
	assert.Less(t, Priority(model.CategoryProduct), Priority(model.CategoryGeneral))
	// Unknown categories sort last
	assert.Greater(t, Priority(model.Category("nonsense")), Priority(model.CategoryGeneral))
}

func TestCustomRules(t *testing.T) {
	c := NewWithRules([]Rule{
		{Category: model.CategoryCompetitor, Priority: 0, Keywords: []string{"acme"}},
	})
	assert.Equal(t, model.CategoryCompetitor, c.Classify("ACME ships new analyzer", ""))
	assert.Equal(t, model.CategoryGeneral, c.Classify("FDA approval granted", ""))
}
