package activity

import "time"

// Record is a raw recorded activity as delivered by the record source
type Record struct {
	ID              int64      `db:"id" json:"id"`
	Timestamp       *time.Time `db:"started_at" json:"timestamp,omitempty"`
	Pace            float64    `db:"pace" json:"pace"`         // minutes per distance unit
	Distance        float64    `db:"distance" json:"distance"` // distance units
	DurationSeconds float64    `db:"duration_seconds" json:"duration_seconds"`
	Steps           *int64     `db:"steps" json:"steps,omitempty"`
}

// TrainingWindow describes the slice of history a model was fitted on
type TrainingWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
}
