package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonb column helpers. All derived document columns are stored as jsonb and
// round-tripped through these types so repositories stay free of ad hoc
// marshalling.

func scanJSON(src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// StringSlice is a jsonb-backed []string column
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(src any) error {
	*s = nil
	return scanJSON(src, s)
}

// Contains reports whether the slice holds v
func (s StringSlice) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// ItemSpecifics is the structured key/value field block from a listing page
type ItemSpecifics map[string]string

func (m ItemSpecifics) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *ItemSpecifics) Scan(src any) error {
	*m = nil
	return scanJSON(src, m)
}

// History is the bounded, newest-first snapshot history of a listing
type History []HistoryEntry

func (h History) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

func (h *History) Scan(src any) error {
	*h = nil
	return scanJSON(src, h)
}

// NullOpportunity is a nullable jsonb buying opportunity column
type NullOpportunity struct {
	Score *OpportunityScore
}

func (n NullOpportunity) Value() (driver.Value, error) {
	if n.Score == nil {
		return nil, nil
	}
	return json.Marshal(n.Score)
}

func (n *NullOpportunity) Scan(src any) error {
	n.Score = nil
	if src == nil {
		return nil
	}
	n.Score = &OpportunityScore{}
	return scanJSON(src, n.Score)
}

func (n NullOpportunity) MarshalJSON() ([]byte, error) {
	if n.Score == nil {
		return []byte("null"), nil
	}
	return json.Marshal(n.Score)
}

func (n *NullOpportunity) UnmarshalJSON(data []byte) error {
	n.Score = nil
	if string(data) == "null" {
		return nil
	}
	n.Score = &OpportunityScore{}
	return json.Unmarshal(data, n.Score)
}

// NullReason is a nullable jsonb state reason column
type NullReason struct {
	Reason *StateReason
}

func (n NullReason) Value() (driver.Value, error) {
	if n.Reason == nil {
		return nil, nil
	}
	return json.Marshal(n.Reason)
}

func (n *NullReason) Scan(src any) error {
	n.Reason = nil
	if src == nil {
		return nil
	}
	n.Reason = &StateReason{}
	return scanJSON(src, n.Reason)
}

func (n NullReason) MarshalJSON() ([]byte, error) {
	if n.Reason == nil {
		return []byte("null"), nil
	}
	return json.Marshal(n.Reason)
}

func (n *NullReason) UnmarshalJSON(data []byte) error {
	n.Reason = nil
	if string(data) == "null" {
		return nil
	}
	n.Reason = &StateReason{}
	return json.Unmarshal(data, n.Reason)
}
