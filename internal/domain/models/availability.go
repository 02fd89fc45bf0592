package models

import (
	"fmt"
	"time"
)

// AvailabilityKey identifies one cached series: an instrument at one
// timeframe.
type AvailabilityKey struct {
	InstrumentID  string
	TimeframeSpec string
}

func (k AvailabilityKey) String() string {
	return k.InstrumentID + "/" + k.TimeframeSpec
}

// TimeRangeAvailability is the cached claim that bars for a key exist
// continuously between Start and End. Records are replaced wholesale for
// their key, never partially updated.
type TimeRangeAvailability struct {
	InstrumentID      string    `json:"instrument_id"`
	TimeframeSpec     string    `json:"timeframe_spec"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	FileCount         int       `json:"file_count"`
	EstimatedRowCount int64     `json:"estimated_row_count"`
	LastUpdated       time.Time `json:"last_updated"`
}

func (a TimeRangeAvailability) Key() AvailabilityKey {
	return AvailabilityKey{InstrumentID: a.InstrumentID, TimeframeSpec: a.TimeframeSpec}
}

// Validate enforces start <= end and the count floors.
func (a TimeRangeAvailability) Validate() error {
	if a.Start.After(a.End) {
		return fmt.Errorf("availability %s: start after end", a.Key())
	}
	if a.FileCount < 1 {
		return fmt.Errorf("availability %s: file count must be >= 1", a.Key())
	}
	if a.EstimatedRowCount < 0 {
		return fmt.Errorf("availability %s: negative row count", a.Key())
	}
	return nil
}

// Merge folds another record for the same key into this one: min start,
// max end, summed file and row counts.
func (a TimeRangeAvailability) Merge(other TimeRangeAvailability) TimeRangeAvailability {
	if other.Start.Before(a.Start) {
		a.Start = other.Start
	}
	if other.End.After(a.End) {
		a.End = other.End
	}
	a.FileCount += other.FileCount
	a.EstimatedRowCount += other.EstimatedRowCount
	if other.LastUpdated.After(a.LastUpdated) {
		a.LastUpdated = other.LastUpdated
	}
	return a
}
