package column

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/internal/errs"
	xlogger "BarPull/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), xlogger.Nop())
	require.NoError(t, err)
	return s
}

func testBars(instrumentID, tf string, start time.Time, n int, step time.Duration) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		price := decimal.NewFromInt(int64(100 + i))
		bars[i] = models.Bar{
			InstrumentID:  instrumentID,
			TimeframeSpec: tf,
			Open:          price,
			High:          price.Add(decimal.NewFromInt(1)),
			Low:           price.Sub(decimal.NewFromInt(1)),
			Close:         price,
			Volume:        int64(1000 + i),
			EventTime:     start.Add(time.Duration(i) * step),
			IngestTime:    time.Now().UTC(),
		}
	}
	return bars
}

func TestWriteAndQueryBars(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	bars := testBars("AAPL.XNAS", "1-MINUTE-LAST", start, 60, time.Minute)
	require.NoError(t, s.WriteBars(ctx, bars, repository.OriginExternal, "corr-1"))

	got, err := s.Query(ctx, "AAPL.XNAS", "1-MINUTE-LAST", start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 60)
	assert.True(t, got[0].EventTime.Equal(start))
	assert.True(t, got[0].Open.Equal(decimal.NewFromInt(100)))
	assert.True(t, models.StrictlyIncreasing(got))
}

func TestQuerySubRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	bars := testBars("AAPL.XNAS", "1-MINUTE-LAST", start, 60, time.Minute)
	require.NoError(t, s.WriteBars(ctx, bars, repository.OriginExternal, "corr-1"))

	got, err := s.Query(ctx, "AAPL.XNAS", "1-MINUTE-LAST", start.Add(10*time.Minute), start.Add(19*time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestRefetchDoesNotDuplicateRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	bars := testBars("AAPL.XNAS", "1-MINUTE-LAST", start, 60, time.Minute)
	require.NoError(t, s.WriteBars(ctx, bars, repository.OriginExternal, "corr-1"))
	// Same range again: two files on disk, union visible to queries.
	require.NoError(t, s.WriteBars(ctx, bars, repository.OriginExternal, "corr-2"))

	metas, err := s.ScanPartitions(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 2)

	got, err := s.Query(ctx, "AAPL.XNAS", "1-MINUTE-LAST", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 60)
}

func TestWriteBarsRejectsMixedSeries(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := testBars("AAPL.XNAS", "1-DAY-LAST", start, 2, 24*time.Hour)
	bars[1].InstrumentID = "MSFT.XNAS"
	assert.Error(t, s.WriteBars(context.Background(), bars, repository.OriginExternal, "corr"))
}

func TestWriteBarsRejectsBadOHLC(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := testBars("AAPL.XNAS", "1-DAY-LAST", start, 1, 24*time.Hour)
	bars[0].Low = bars[0].High.Add(decimal.NewFromInt(10))
	assert.Error(t, s.WriteBars(context.Background(), bars, repository.OriginExternal, "corr"))
}

func TestDescriptorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadDescriptor(ctx, "AAPL.XNAS")
	assert.ErrorIs(t, err, errs.ErrDescriptorNotFound)

	d := models.InstrumentDescriptor{
		InstrumentID: "AAPL.XNAS",
		Symbol:       "AAPL",
		Venue:        "XNAS",
		AssetClass:   "EQUITY",
		Currency:     "USD",
		TickSize:     decimal.New(1, -2),
		LotSize:      1,
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.WriteDescriptor(ctx, d))

	got, err := s.LoadDescriptor(ctx, "AAPL.XNAS")
	require.NoError(t, err)
	assert.Equal(t, d.Symbol, got.Symbol)
	assert.Equal(t, d.Venue, got.Venue)
	assert.True(t, d.TickSize.Equal(got.TickSize))
}

func TestScanSkipsCorruptNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	bars := testBars("AAPL.XNAS", "1-DAY-LAST", start, 3, 24*time.Hour)
	require.NoError(t, s.WriteBars(ctx, bars, repository.OriginExternal, "corr"))

	// Unparsable directory and file names must be skipped, not fatal.
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "not-a-partition"), 0o755))
	goodDir := filepath.Join(s.Root(), FormatPartitionDir("AAPL.XNAS", "1-DAY-LAST", repository.OriginExternal))
	require.NoError(t, os.WriteFile(filepath.Join(goodDir, "garbage.parquet"), []byte("x"), 0o644))

	metas, err := s.ScanPartitions(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "AAPL.XNAS", metas[0].InstrumentID)
}

func TestDeletePartitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	bars := testBars("AAPL.XNAS", "1-DAY-LAST", start, 3, 24*time.Hour)
	require.NoError(t, s.WriteBars(ctx, bars, repository.OriginInternal, "corr"))

	metas, err := s.ScanPartitions(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)

	require.NoError(t, s.DeletePartitions(ctx, metas))
	metas, err = s.ScanPartitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, metas)
}
