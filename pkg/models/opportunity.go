package models

// ScoreComponent is one named contribution to a buying opportunity score
type ScoreComponent struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
}

// OpportunityScore is the breakdown of a buying opportunity evaluation.
// It only exists for OPEN listings priced at or below the sold median.
type OpportunityScore struct {
	Total      float64          `json:"total"`
	Components []ScoreComponent `json:"components"`
}

// Add appends a component and updates the total
func (s *OpportunityScore) Add(name string, points float64) {
	s.Components = append(s.Components, ScoreComponent{Name: name, Points: points})
	s.Total += points
}
