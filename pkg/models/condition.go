package models

// Condition is a card condition grade
type Condition string

const (
	ConditionNearMint         Condition = "NEAR_MINT"
	ConditionLightlyPlayed    Condition = "LIGHTLY_PLAYED"
	ConditionModeratelyPlayed Condition = "MODERATELY_PLAYED"
	ConditionHeavilyPlayed    Condition = "HEAVILY_PLAYED"
	ConditionDamaged          Condition = "DAMAGED"
)

// AllConditions lists grades in priority order, best first. Ties in the
// condition classifier are broken by this ordering.
var AllConditions = []Condition{
	ConditionNearMint,
	ConditionLightlyPlayed,
	ConditionModeratelyPlayed,
	ConditionHeavilyPlayed,
	ConditionDamaged,
}

// Priority returns the tiebreak rank of the grade; lower wins
func (c Condition) Priority() int {
	for i, grade := range AllConditions {
		if grade == c {
			return i
		}
	}
	return len(AllConditions)
}

// IsValid reports whether c is a known grade
func (c Condition) IsValid() bool {
	return c.Priority() < len(AllConditions)
}
