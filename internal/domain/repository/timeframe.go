package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BarUnit is the granularity unit of a timeframe spec.
type BarUnit string

const (
	UnitSecond BarUnit = "SECOND"
	UnitMinute BarUnit = "MINUTE"
	UnitHour   BarUnit = "HOUR"
	UnitDay    BarUnit = "DAY"
	UnitWeek   BarUnit = "WEEK"
)

// PriceType identifies which price stream a bar series aggregates.
type PriceType string

const (
	PriceLast PriceType = "LAST"
	PriceBid  PriceType = "BID"
	PriceAsk  PriceType = "ASK"
	PriceMid  PriceType = "MID"
)

// TimeframeSpec is the canonical bar granularity: period, unit and price
// type, rendered as e.g. "1-MINUTE-LAST" or "1-DAY-LAST".
type TimeframeSpec struct {
	Period    int
	Unit      BarUnit
	PriceType PriceType
}

func (tf TimeframeSpec) String() string {
	return fmt.Sprintf("%d-%s-%s", tf.Period, tf.Unit, tf.PriceType)
}

// IsDaily reports whether the spec is day-or-coarser granularity. Coverage
// checks compare calendar dates for such specs because date-only input
// parses to midnight and would never satisfy an end-of-day boundary.
func (tf TimeframeSpec) IsDaily() bool {
	return tf.Unit == UnitDay || tf.Unit == UnitWeek
}

// Duration returns the bar interval length. Weeks count as 7 days.
func (tf TimeframeSpec) Duration() time.Duration {
	var unit time.Duration
	switch tf.Unit {
	case UnitSecond:
		unit = time.Second
	case UnitMinute:
		unit = time.Minute
	case UnitHour:
		unit = time.Hour
	case UnitDay:
		unit = 24 * time.Hour
	case UnitWeek:
		unit = 7 * 24 * time.Hour
	}
	return time.Duration(tf.Period) * unit
}

var validUnits = map[BarUnit]bool{
	UnitSecond: true, UnitMinute: true, UnitHour: true, UnitDay: true, UnitWeek: true,
}

var validPriceTypes = map[PriceType]bool{
	PriceLast: true, PriceBid: true, PriceAsk: true, PriceMid: true,
}

// ParseTimeframeSpec parses a canonical "{period}-{unit}-{priceType}" string.
func ParseTimeframeSpec(s string) (TimeframeSpec, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(s)), "-")
	if len(parts) != 3 {
		return TimeframeSpec{}, fmt.Errorf("timeframe %q: want {period}-{unit}-{priceType}", s)
	}
	period, err := strconv.Atoi(parts[0])
	if err != nil || period < 1 {
		return TimeframeSpec{}, fmt.Errorf("timeframe %q: bad period", s)
	}
	unit := BarUnit(parts[1])
	if !validUnits[unit] {
		return TimeframeSpec{}, fmt.Errorf("timeframe %q: unknown unit %s", s, parts[1])
	}
	pt := PriceType(parts[2])
	if !validPriceTypes[pt] {
		return TimeframeSpec{}, fmt.Errorf("timeframe %q: unknown price type %s", s, parts[2])
	}
	return TimeframeSpec{Period: period, Unit: unit, PriceType: pt}, nil
}

// DayTimeframe is the default day-level spec.
func DayTimeframe() TimeframeSpec {
	return TimeframeSpec{Period: 1, Unit: UnitDay, PriceType: PriceLast}
}

// MinuteTimeframe is the default intraday spec.
func MinuteTimeframe() TimeframeSpec {
	return TimeframeSpec{Period: 1, Unit: UnitMinute, PriceType: PriceLast}
}

// ResolveTimeframe normalizes an optional explicit timeframe. When explicit
// is nil the granularity is auto-detected from the request start: a bare
// date (zero time-of-day) means the caller wants day bars, an explicit
// timestamp means intraday minute bars. Mis-detection here is the difference
// between reading cached day bars and fetching minute bars remotely.
func ResolveTimeframe(explicit *string, start, end time.Time) (TimeframeSpec, error) {
	if explicit != nil && *explicit != "" {
		return ParseTimeframeSpec(*explicit)
	}
	if isMidnight(start) && isMidnight(end) {
		return DayTimeframe(), nil
	}
	return MinuteTimeframe(), nil
}

func isMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
