package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Venue identifies the market an instrument trades on. The simulation venue
// is used when no real venue can be resolved; real venues and the simulation
// venue must never be conflated silently.
type Venue string

const SimulationVenue Venue = "SIM"

// InstrumentDescriptor is the static identity record for a tradable
// instrument, keyed by instrument id. Every persisted bar partition must
// eventually have a descriptor under the same id; bars without one are
// orphaned and trigger a backfill before use.
type InstrumentDescriptor struct {
	InstrumentID string          `json:"instrument_id"`
	Symbol       string          `json:"symbol"`
	Venue        Venue           `json:"venue"`
	AssetClass   string          `json:"asset_class"`
	Currency     string          `json:"currency"`
	TickSize     decimal.Decimal `json:"tick_size"`
	LotSize      int64           `json:"lot_size"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SplitInstrumentID splits "SYMBOL.VENUE" into its parts. The venue part is
// empty when the id carries no venue suffix.
func SplitInstrumentID(id string) (symbol string, venue Venue) {
	i := strings.LastIndex(id, ".")
	if i <= 0 || i == len(id)-1 {
		return id, ""
	}
	return id[:i], Venue(id[i+1:])
}
