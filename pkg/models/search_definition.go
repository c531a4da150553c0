package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Keywords describes what listing titles a search definition accepts.
// Every include group must be satisfied; within a group any one variant
// matching is enough. A matching exclude rejects the title outright.
type Keywords struct {
	Includes [][]string `json:"includes"`
	Excludes []string   `json:"excludes,omitempty"`
}

func (k Keywords) Value() (driver.Value, error) {
	return json.Marshal(k)
}

func (k *Keywords) Scan(src any) error {
	*k = Keywords{}
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, k)
	case string:
		return json.Unmarshal([]byte(v), k)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// SearchDefinition describes one marketplace search used to source listings
// for a card. Owned by the sourcing configuration; read-only here.
type SearchDefinition struct {
	ID             string     `json:"id" db:"id"`
	CardID         string     `json:"card_id" db:"card_id"`
	Query          string     `json:"query" db:"query"`
	Keywords       Keywords   `json:"keywords" db:"keywords"`
	Currency       string     `json:"currency" db:"currency"`
	Active         bool       `json:"active" db:"active"`
	LastSourcedAt  *time.Time `json:"last_sourced_at,omitempty" db:"last_sourced_at"`
	NextSourceTime time.Time  `json:"next_source_time" db:"next_source_time"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
