package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MovingAverage is a trailing average over the most recent Window points
type MovingAverage struct {
	Window int     `json:"window"`
	Value  float64 `json:"value"`
}

// Stats is the numeric aggregation block computed over a price series
type Stats struct {
	Count          int             `json:"count"`
	Min            int64           `json:"min"`
	Max            int64           `json:"max"`
	FirstQuartile  float64         `json:"first_quartile"`
	Median         float64         `json:"median"`
	ThirdQuartile  float64         `json:"third_quartile"`
	Mean           float64         `json:"mean"`
	StdDev         float64         `json:"std_dev"`
	MovingAverages []MovingAverage `json:"moving_averages,omitempty"`
}

func (s Stats) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *Stats) Scan(src any) error {
	*s = Stats{}
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// Stat is a windowed aggregate for one selection and one period size.
// At most one non-superseded stat may exist per
// (selection, period size, modification key).
type Stat struct {
	ID                  string      `json:"id" db:"id"`
	SelectionID         string      `json:"selection_id" db:"selection_id"`
	PeriodSizeDays      int         `json:"period_size_days" db:"period_size_days"`
	ModificationKey     string      `json:"modification_key" db:"modification_key"`
	Stats               Stats       `json:"stats" db:"stats"`
	From                time.Time   `json:"from" db:"period_from"`
	To                  time.Time   `json:"to" db:"period_to"`
	ItemIDs             StringSlice `json:"item_ids" db:"item_ids"`
	NextCalculationTime time.Time   `json:"next_calculation_time" db:"next_calculation_time"`
	LastCalculatedAt    time.Time   `json:"last_calculated_at" db:"last_calculated_at"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
}

// DimensionKey is the uniqueness key for a stat
func (s *Stat) DimensionKey() string {
	return fmt.Sprintf("%s|%d|%s", s.SelectionID, s.PeriodSizeDays, s.ModificationKey)
}
