package variant

import (
	"strings"

	"github.com/nao1215/leakbox/internal/model"
)

// Matcher finds which variants occur in a candidate string.
type Matcher interface {
	// Match returns the variants found in candidate, in the order given.
	Match(candidate string, variants []model.Variant) []model.Variant
}

// ContainsMatcher matches by plain substring containment.
type ContainsMatcher struct{}

var _ Matcher = ContainsMatcher{}

// Match implements Matcher.
func (ContainsMatcher) Match(candidate string, variants []model.Variant) []model.Variant {
	if candidate == "" {
		return nil
	}
	var matched []model.Variant
	for _, v := range variants {
		if v.Value != "" && strings.Contains(candidate, v.Value) {
			matched = append(matched, v)
		}
	}
	return matched
}
