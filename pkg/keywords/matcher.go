// Package keywords implements search definition keyword matching against
// listing titles.
package keywords

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ValidationResult reports whether a title satisfies a search definition's
// keywords and, if not, why.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Reasons []string `json:"reasons,omitempty"`
}

// Matcher evaluates keyword rules as a pure predicate
type Matcher struct{}

// NewMatcher creates a Matcher
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Validate checks text against the definition's keywords. Each include group
// is an OR of variants and all groups must be satisfied; any matching exclude
// rejects the text. Hyphens are treated as spaces on both sides so
// "Ho-Oh" and "Ho Oh" compare equal.
func (m *Matcher) Validate(def *models.SearchDefinition, text string) ValidationResult {
	normalized := normalize(text)
	result := ValidationResult{IsValid: true}

	for _, group := range def.Keywords.Includes {
		if len(group) == 0 {
			continue
		}
		matched := false
		for _, variant := range group {
			if strings.Contains(normalized, normalize(variant)) {
				matched = true
				break
			}
		}
		if !matched {
			result.IsValid = false
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("missing required keyword (any of: %s)", strings.Join(group, ", ")))
		}
	}

	for _, exclude := range def.Keywords.Excludes {
		if strings.Contains(normalized, normalize(exclude)) {
			result.IsValid = false
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("contains excluded keyword: %s", exclude))
		}
	}

	return result
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}
