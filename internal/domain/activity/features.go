package activity

import "math"

// Feature column names, in the order models are trained on by default
const (
	ColumnPace            = "pace"
	ColumnDistance        = "distance"
	ColumnDurationMinutes = "duration_minutes"
)

// DefaultColumns is the feature order used for training
var DefaultColumns = []string{ColumnPace, ColumnDistance, ColumnDurationMinutes}

// Training domain bounds. Lower bounds are exclusive, upper bounds inclusive.
const (
	MaxPace            = 60.0
	MaxDistance        = 50.0
	MaxDurationMinutes = 1440.0
)

// Invalidity reasons
const (
	ReasonPaceOutOfRange     = "pace_out_of_range"
	ReasonDistanceOutOfRange = "distance_out_of_range"
	ReasonDurationOutOfRange = "duration_out_of_range"
	ReasonNotFinite          = "not_finite"
)

// FeatureVector is the numeric view of a record. It is computed per record and never stored.
type FeatureVector struct {
	RecordID        int64
	Pace            float64
	Distance        float64
	DurationMinutes float64

	// Derived, informational
	SpeedPerHour   float64
	StepsPerMinute *float64

	Valid  bool
	Reason string // empty when Valid
}

// Extract turns a raw record into a feature vector and flags whether it lies in the training domain
func Extract(r Record) FeatureVector {
	fv := FeatureVector{
		RecordID:        r.ID,
		Pace:            r.Pace,
		Distance:        r.Distance,
		DurationMinutes: r.DurationSeconds / 60,
	}

	if r.Pace > 0 && !math.IsInf(r.Pace, 0) {
		fv.SpeedPerHour = 60 / r.Pace
	}
	if r.Steps != nil && fv.DurationMinutes > 0 {
		spm := float64(*r.Steps) / fv.DurationMinutes
		fv.StepsPerMinute = &spm
	}

	fv.Reason = validate(fv)
	fv.Valid = fv.Reason == ""
	return fv
}

func validate(fv FeatureVector) string {
	for _, v := range []float64{fv.Pace, fv.Distance, fv.DurationMinutes} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ReasonNotFinite
		}
	}
	switch {
	case fv.Pace <= 0 || fv.Pace > MaxPace:
		return ReasonPaceOutOfRange
	case fv.Distance <= 0 || fv.Distance > MaxDistance:
		return ReasonDistanceOutOfRange
	case fv.DurationMinutes <= 0 || fv.DurationMinutes > MaxDurationMinutes:
		return ReasonDurationOutOfRange
	}
	return ""
}

// Value returns the named feature. ok is false for unknown columns.
func (fv FeatureVector) Value(column string) (float64, bool) {
	switch column {
	case ColumnPace:
		return fv.Pace, true
	case ColumnDistance:
		return fv.Distance, true
	case ColumnDurationMinutes:
		return fv.DurationMinutes, true
	}
	return 0, false
}

// Values returns the features in the given column order
func (fv FeatureVector) Values(columns []string) ([]float64, bool) {
	out := make([]float64, len(columns))
	for i, c := range columns {
		v, ok := fv.Value(c)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// AsMap is the features-used snapshot written to the audit trail
func (fv FeatureVector) AsMap() map[string]float64 {
	m := map[string]float64{
		ColumnPace:            fv.Pace,
		ColumnDistance:        fv.Distance,
		ColumnDurationMinutes: fv.DurationMinutes,
	}
	if fv.SpeedPerHour > 0 {
		m["speed_per_hour"] = fv.SpeedPerHour
	}
	if fv.StepsPerMinute != nil {
		m["steps_per_minute"] = *fv.StepsPerMinute
	}
	return m
}

// FilterValid extracts every record and keeps only those in the training domain.
// The returned window spans the timestamps of the kept records.
func FilterValid(records []Record) ([]FeatureVector, TrainingWindow) {
	vectors := make([]FeatureVector, 0, len(records))
	var window TrainingWindow

	for _, r := range records {
		fv := Extract(r)
		if !fv.Valid {
			continue
		}
		vectors = append(vectors, fv)

		if r.Timestamp != nil {
			ts := r.Timestamp.UTC()
			if window.Start.IsZero() || ts.Before(window.Start) {
				window.Start = ts
			}
			if ts.After(window.End) {
				window.End = ts
			}
		}
	}

	window.Count = len(vectors)
	return vectors, window
}
