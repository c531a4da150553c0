// Package condition classifies listing text into a card condition grade.
package condition

import (
	"regexp"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Source weights. The structured item specifics field is by far the most
// reliable signal; the free-form description barely counts.
const (
	weightItemSpecifics = 70
	weightTitle         = 20
	weightSellerNotes   = 20
	weightDescription   = 2
)

// itemSpecificsKeys are the structured field names checked, in order
var itemSpecificsKeys = []string{"Card Condition", "Condition", "Grade"}

type rule struct {
	pattern *regexp.Regexp
	grade   models.Condition
}

// rules are evaluated in order; more specific phrasings come first so that
// e.g. "near mint" is not swallowed by a bare "mint" rule.
var rules = []rule{
	{regexp.MustCompile(`(?i)\bnear[\s-]?mint\b`), models.ConditionNearMint},
	{regexp.MustCompile(`(?i)\bNM[\s/-]?M?\b`), models.ConditionNearMint},
	{regexp.MustCompile(`(?i)\bmint\b`), models.ConditionNearMint},
	{regexp.MustCompile(`(?i)\bpack[\s-]?fresh\b`), models.ConditionNearMint},
	{regexp.MustCompile(`(?i)\blight(?:ly)?[\s-]?(?:played|wear|worn)\b`), models.ConditionLightlyPlayed},
	{regexp.MustCompile(`(?i)\bLP\b`), models.ConditionLightlyPlayed},
	{regexp.MustCompile(`(?i)\bexcellent\b`), models.ConditionLightlyPlayed},
	{regexp.MustCompile(`(?i)\bslight(?:ly)?[\s-]?(?:played|wear|worn)\b`), models.ConditionLightlyPlayed},
	{regexp.MustCompile(`(?i)\bmoderate(?:ly)?[\s-]?(?:played|wear|worn)\b`), models.ConditionModeratelyPlayed},
	{regexp.MustCompile(`(?i)\bMP\b`), models.ConditionModeratelyPlayed},
	{regexp.MustCompile(`(?i)\bgood\b`), models.ConditionModeratelyPlayed},
	{regexp.MustCompile(`(?i)\bheav(?:y|ily)[\s-]?(?:played|wear|worn)\b`), models.ConditionHeavilyPlayed},
	{regexp.MustCompile(`(?i)\bHP\b`), models.ConditionHeavilyPlayed},
	{regexp.MustCompile(`(?i)\bpoor\b`), models.ConditionHeavilyPlayed},
	{regexp.MustCompile(`(?i)\bdamaged?\b`), models.ConditionDamaged},
	{regexp.MustCompile(`(?i)\bcreased?\b`), models.ConditionDamaged},
	{regexp.MustCompile(`(?i)\bwater[\s-]?damage\b`), models.ConditionDamaged},
}

// Input is the text gathered from a listing for classification
type Input struct {
	ItemSpecifics models.ItemSpecifics
	Title         string
	SellerNotes   string
	Description   string
}

// Classifier maps listing text to a condition grade by weighted voting
// across the four text sources.
type Classifier struct{}

// NewClassifier creates a Classifier
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify votes each source's weight onto the grades its text matches and
// returns the grade with the highest total. Ties break by grade priority
// (best grade wins). With no matches at all the default is NEAR_MINT.
func (c *Classifier) Classify(in Input) models.Condition {
	votes := make(map[models.Condition]int)

	// The structured field contributes a single mapped grade.
	if grade, ok := c.classifySpecifics(in.ItemSpecifics); ok {
		votes[grade] += weightItemSpecifics
	}

	voteFreeText(votes, in.Title, weightTitle)
	voteFreeText(votes, in.SellerNotes, weightSellerNotes)
	voteFreeText(votes, in.Description, weightDescription)

	if len(votes) == 0 {
		return models.ConditionNearMint
	}

	best := models.Condition("")
	bestWeight := -1
	for _, grade := range models.AllConditions {
		if votes[grade] > bestWeight {
			best = grade
			bestWeight = votes[grade]
		}
	}
	return best
}

// classifySpecifics resolves the single grade named by the structured field
func (c *Classifier) classifySpecifics(specifics models.ItemSpecifics) (models.Condition, bool) {
	for _, key := range itemSpecificsKeys {
		value, ok := specifics[key]
		if !ok || value == "" {
			continue
		}
		for _, r := range rules {
			if r.pattern.MatchString(value) {
				return r.grade, true
			}
		}
	}
	return "", false
}

// voteFreeText lets a free-form source contribute its weight to every grade
// whose first matching rule fires; a grade is counted at most once per source
func voteFreeText(votes map[models.Condition]int, text string, weight int) {
	if text == "" {
		return
	}
	seen := make(map[models.Condition]bool)
	for _, r := range rules {
		if seen[r.grade] {
			continue
		}
		if r.pattern.MatchString(text) {
			votes[r.grade] += weight
			seen[r.grade] = true
		}
	}
}
