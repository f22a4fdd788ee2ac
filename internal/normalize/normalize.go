package normalize

import (
	"strings"

	"github.com/lvasseur/ski-catalog-scraper/internal/models"
)

// Normalizer cleans raw candidates and enforces the completeness gate.
type Normalizer struct {
	required []string
}

// New creates a Normalizer that requires the given canonical fields to be
// non-empty after cleaning.
func New(required []string) *Normalizer {
	return &Normalizer{required: required}
}

// Required returns the field names the completeness gate checks.
func (n *Normalizer) Required() []string {
	return n.required
}

// Normalize trims every field, cleans the price, and reports whether the
// candidate is complete. Incomplete candidates return ok=false; they are a
// policy outcome, not an error.
func (n *Normalizer) Normalize(c models.Candidate) (models.Record, bool) {
	var rec models.Record
	for _, name := range models.Fields {
		v := strings.TrimSpace(c[name])
		if name == models.FieldPrice {
			v = CleanPrice(v)
		}
		rec.SetField(name, v)
	}

	for _, name := range n.required {
		if rec.Field(name) == "" {
			return models.Record{}, false
		}
	}
	return rec, true
}

// CleanPrice reduces a raw price string to a plain decimal form: everything
// except digits, comma, dot, and minus is stripped, commas become dots, and
// if more than one dot remains the first stays as the decimal separator
// while the extra fragments join the fractional part. "46,90 €" becomes
// "46.90", "1.234,56" becomes "1.23456". Empty input stays empty.
func CleanPrice(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-':
			b.WriteRune(r)
		}
	}

	s := strings.ReplaceAll(b.String(), ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		s = parts[0] + "." + strings.Join(parts[1:], "")
	}
	return s
}
