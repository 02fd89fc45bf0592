package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV observation for an instrument over a fixed interval.
// Bars are immutable once written; corrections rewrite the covering
// partition instead of mutating rows in place.
type Bar struct {
	InstrumentID  string
	TimeframeSpec string
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	Volume        int64
	EventTime     time.Time // UTC, nanosecond resolution
	IngestTime    time.Time // UTC
}

// Validate checks the OHLC relationship and volume sign.
func (b Bar) Validate() error {
	if b.InstrumentID == "" {
		return fmt.Errorf("bar: instrument id required")
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s @ %s: negative volume %d", b.InstrumentID, b.EventTime.Format(time.RFC3339), b.Volume)
	}
	if b.Low.GreaterThan(b.Open) || b.Low.GreaterThan(b.Close) {
		return fmt.Errorf("bar %s @ %s: low above open/close", b.InstrumentID, b.EventTime.Format(time.RFC3339))
	}
	if b.High.LessThan(b.Open) || b.High.LessThan(b.Close) {
		return fmt.Errorf("bar %s @ %s: high below open/close", b.InstrumentID, b.EventTime.Format(time.RFC3339))
	}
	if b.EventTime.IsZero() {
		return fmt.Errorf("bar %s: event time required", b.InstrumentID)
	}
	return nil
}

// StrictlyIncreasing reports whether a slice of bars is strictly increasing
// in event time, the series invariant enforced before persistence.
func StrictlyIncreasing(bars []Bar) bool {
	for i := 1; i < len(bars); i++ {
		if !bars[i].EventTime.After(bars[i-1].EventTime) {
			return false
		}
	}
	return true
}
