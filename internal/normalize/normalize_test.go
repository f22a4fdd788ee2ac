package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lvasseur/ski-catalog-scraper/internal/models"
)

func TestCleanPrice(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "euro price with comma decimal",
			raw:      "46,90 €",
			expected: "46.90",
		},
		{
			name:     "thousands dot and comma decimal",
			raw:      "1.234,56",
			expected: "1.23456",
		},
		{
			name:     "empty input",
			raw:      "",
			expected: "",
		},
		{
			name:     "already clean",
			raw:      "89.95",
			expected: "89.95",
		},
		{
			name:     "currency prefix and thousands comma",
			raw:      "$1,299.99",
			expected: "1.29999",
		},
		{
			name:     "spaces inside number",
			raw:      "1 234,56 €",
			expected: "1234.56",
		},
		{
			name:     "negative percentage",
			raw:      "-30%",
			expected: "-30",
		},
		{
			name:     "no digits at all",
			raw:      "Sale!",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanPrice(tt.raw))
		})
	}
}

func TestNormalize(t *testing.T) {
	required := []string{models.FieldBrand, models.FieldModel, models.FieldPrice, models.FieldDiscount}
	n := New(required)

	t.Run("complete candidate is cleaned and accepted", func(t *testing.T) {
		rec, ok := n.Normalize(models.Candidate{
			"brand":    "  O'Neill ",
			"model":    " Thermal Base Layer\n",
			"price":    "46,90 €",
			"discount": " -30% ",
		})

		assert.True(t, ok)
		assert.Equal(t, "O'Neill", rec.Brand)
		assert.Equal(t, "Thermal Base Layer", rec.Model)
		assert.Equal(t, "46.90", rec.Price)
		assert.Equal(t, "-30%", rec.Discount)
	})

	t.Run("each missing required field rejects", func(t *testing.T) {
		base := models.Candidate{
			"brand":    "Odlo",
			"model":    "Active Warm",
			"price":    "39,90 €",
			"discount": "-15%",
		}

		for _, field := range required {
			c := models.Candidate{}
			for k, v := range base {
				c[k] = v
			}
			delete(c, field)

			_, ok := n.Normalize(c)
			assert.False(t, ok, "candidate missing %q should be rejected", field)
		}
	})

	t.Run("whitespace-only field rejects", func(t *testing.T) {
		_, ok := n.Normalize(models.Candidate{
			"brand":    "Odlo",
			"model":    "   ",
			"price":    "39,90 €",
			"discount": "-15%",
		})
		assert.False(t, ok)
	})

	t.Run("price emptied by cleaning rejects", func(t *testing.T) {
		_, ok := n.Normalize(models.Candidate{
			"brand":    "Odlo",
			"model":    "Active Warm",
			"price":    "N/A",
			"discount": "-15%",
		})
		assert.False(t, ok)
	})

	t.Run("optional fields may be absent", func(t *testing.T) {
		rec, ok := n.Normalize(models.Candidate{
			"brand":    "Odlo",
			"model":    "Active Warm",
			"price":    "39,90 €",
			"discount": "-15%",
		})
		assert.True(t, ok)
		assert.Empty(t, rec.Description)
	})

	t.Run("alternate required set for structured payloads", func(t *testing.T) {
		llm := New([]string{models.FieldModel, models.FieldDescription, models.FieldPrice})

		rec, ok := llm.Normalize(models.Candidate{
			"model":       "Merino 200",
			"description": "Half-zip merino base layer",
			"price":       "89,00 €",
		})
		assert.True(t, ok)
		assert.Equal(t, "89.00", rec.Price)
		assert.Empty(t, rec.Brand)

		_, ok = llm.Normalize(models.Candidate{
			"model": "Merino 200",
			"price": "89,00 €",
		})
		assert.False(t, ok)
	})
}
