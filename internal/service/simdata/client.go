// Package simdata is a RemoteDataClient that synthesizes deterministic bars
// for the simulation venue. It stands in for a real provider connection in
// development and tests; production deployments swap in a real client behind
// the same interface.
package simdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"

	"github.com/shopspring/decimal"
)

type Client struct {
	mu        sync.Mutex
	connected bool
}

func New() *Client { return &Client{} }

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Connect(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

// FetchBars generates one bar per timeframe interval across [start, end].
// Prices follow a deterministic walk seeded by the instrument id, so
// repeated fetches of the same range return identical data.
func (c *Client) FetchBars(ctx context.Context, instrumentID string, start, end time.Time, tf repository.TimeframeSpec) ([]models.Bar, models.InstrumentDescriptor, error) {
	if !c.IsConnected() {
		return nil, models.InstrumentDescriptor{}, fmt.Errorf("simdata: not connected")
	}
	step := tf.Duration()
	if step <= 0 {
		return nil, models.InstrumentDescriptor{}, fmt.Errorf("simdata: bad timeframe %s", tf)
	}
	desc := c.descriptor(instrumentID)

	seed := int64(0)
	for _, r := range instrumentID {
		seed = seed*31 + int64(r)
	}
	base := decimal.NewFromInt(100 + seed%100)

	var bars []models.Bar
	now := time.Now().UTC()
	i := int64(0)
	for t := start.UTC(); !t.After(end.UTC()); t = t.Add(step) {
		select {
		case <-ctx.Done():
			return nil, models.InstrumentDescriptor{}, ctx.Err()
		default:
		}
		drift := decimal.NewFromInt((seed+i)%7 - 3).Div(decimal.NewFromInt(100))
		open := base.Add(base.Mul(drift))
		closep := open.Add(open.Mul(drift).Div(decimal.NewFromInt(2)))
		high := decimal.Max(open, closep).Mul(decimal.NewFromFloat(1.001))
		low := decimal.Min(open, closep).Mul(decimal.NewFromFloat(0.999))
		bars = append(bars, models.Bar{
			InstrumentID:  instrumentID,
			TimeframeSpec: tf.String(),
			Open:          open.Round(4),
			High:          high.Round(4),
			Low:           low.Round(4),
			Close:         closep.Round(4),
			Volume:        1000 + (seed+i)%9000,
			EventTime:     t,
			IngestTime:    now,
		})
		i++
	}
	return bars, desc, nil
}

func (c *Client) FetchDescriptor(ctx context.Context, instrumentID string) (models.InstrumentDescriptor, error) {
	if !c.IsConnected() {
		return models.InstrumentDescriptor{}, fmt.Errorf("simdata: not connected")
	}
	return c.descriptor(instrumentID), nil
}

func (c *Client) descriptor(instrumentID string) models.InstrumentDescriptor {
	symbol, venue := models.SplitInstrumentID(instrumentID)
	if venue == "" {
		venue = models.SimulationVenue
	}
	return models.InstrumentDescriptor{
		InstrumentID: instrumentID,
		Symbol:       symbol,
		Venue:        venue,
		AssetClass:   "EQUITY",
		Currency:     "USD",
		TickSize:     decimal.New(1, -2),
		LotSize:      1,
		UpdatedAt:    time.Now().UTC(),
	}
}
