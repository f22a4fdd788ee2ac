package dedup

import (
	"fmt"
	"strings"

	"github.com/lvasseur/ski-catalog-scraper/internal/models"
)

// Strategy names the fields that form a record's identity key.
type Strategy string

const (
	// StrategyModel keys records by model name alone.
	StrategyModel Strategy = "model"
	// StrategyBrandModel keys records by the brand and model pair.
	StrategyBrandModel Strategy = "brand_model"
)

// Parse maps a profile value to a Strategy.
func Parse(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyModel, StrategyBrandModel:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown dedup strategy %q", s)
}

// Key builds the identity key for a record. Composite keys join their parts
// with a unit separator so a brand containing the model's first characters
// cannot collide with a different split of the same text.
func (s Strategy) Key(r models.Record) string {
	switch s {
	case StrategyBrandModel:
		return strings.TrimSpace(r.Brand) + "\x1f" + strings.TrimSpace(r.Model)
	default:
		return strings.TrimSpace(r.Model)
	}
}

// Set tracks identity keys accepted during one crawl run. Comparison is
// case-insensitive and whitespace-trimmed; keys never expire within a run.
type Set struct {
	seen map[string]struct{}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Contains reports whether key has already been registered.
func (s *Set) Contains(key string) bool {
	_, ok := s.seen[Fold(key)]
	return ok
}

// Add registers key. Adding an existing key is a no-op.
func (s *Set) Add(key string) {
	s.seen[Fold(key)] = struct{}{}
}

// Len returns the number of distinct keys registered.
func (s *Set) Len() int {
	return len(s.seen)
}

// Fold normalizes a key the way Set compares them. Callers that persist
// keys should store the folded form so lookups match what the Set saw.
func Fold(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
