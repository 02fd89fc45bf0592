package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/index"
	"BarPull/internal/store/column"
	xlogger "BarPull/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImporterFixture(t *testing.T) (*Importer, *column.Store, *index.AvailabilityIndex) {
	t.Helper()
	store, err := column.NewStore(t.TempDir(), xlogger.Nop())
	require.NoError(t, err)
	idx := index.New(xlogger.Nop())
	return NewImporter(store, idx, xlogger.Nop()), store, idx
}

func dayRows(instrumentID string, start time.Time, n int) []ImportRow {
	rows := make([]ImportRow, n)
	for i := range rows {
		price := fmt.Sprintf("%d.50", 100+i)
		rows[i] = ImportRow{
			InstrumentID:  instrumentID,
			TimeframeSpec: "1-DAY-LAST",
			EventTime:     start.AddDate(0, 0, i).Format("2006-01-02"),
			Open:          price,
			High:          price,
			Low:           price,
			Close:         price,
			Volume:        int64(1000 * (i + 1)),
		}
	}
	return rows
}

func TestImportWritesAndIndexes(t *testing.T) {
	im, store, idx := newImporterFixture(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	report, err := im.Import(ctx, dayRows("MSFT.XNAS", start, 5), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, report.RowsWritten)
	assert.Equal(t, 0, report.RowsSkipped)
	assert.Equal(t, 1, report.PartitionsWritten)
	assert.Empty(t, report.Invalid)

	bars, err := store.Query(ctx, "MSFT.XNAS", "1-DAY-LAST", start, start.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Len(t, bars, 5)

	key := models.AvailabilityKey{InstrumentID: "MSFT.XNAS", TimeframeSpec: "1-DAY-LAST"}
	assert.True(t, idx.CoversRange(key, start, start.AddDate(0, 0, 4)))
}

func TestImportCollectsInvalidRowsWithoutAborting(t *testing.T) {
	im, _, _ := newImporterFixture(t)
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	rows := dayRows("MSFT.XNAS", start, 3)
	rows[1].Open = "not-a-number"
	rows = append(rows, ImportRow{ // missing required fields
		InstrumentID: "MSFT.XNAS",
	})
	rows = append(rows, ImportRow{
		InstrumentID:  "MSFT.XNAS",
		TimeframeSpec: "1-DAY-LAST",
		EventTime:     "yesterday-ish",
		Open:          "1", High: "1", Low: "1", Close: "1",
	})

	report, err := im.Import(context.Background(), rows, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.RowsWritten)
	require.Len(t, report.Invalid, 3)
	// Row numbers are 1-based input positions, reported in order.
	assert.Equal(t, 2, report.Invalid[0].Row)
	assert.Equal(t, 4, report.Invalid[1].Row)
	assert.Equal(t, 5, report.Invalid[2].Row)
}

func TestImportRejectsBadOHLC(t *testing.T) {
	im, _, _ := newImporterFixture(t)
	rows := []ImportRow{{
		InstrumentID:  "MSFT.XNAS",
		TimeframeSpec: "1-DAY-LAST",
		EventTime:     "2024-03-04",
		Open:          "100",
		High:          "90", // high below open
		Low:           "80",
		Close:         "95",
		Volume:        100,
	}}
	report, err := im.Import(context.Background(), rows, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.RowsWritten)
	require.Len(t, report.Invalid, 1)
	assert.Equal(t, 1, report.Invalid[0].Row)
}

func TestImportSkipPolicyLeavesExistingRows(t *testing.T) {
	im, store, _ := newImporterFixture(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	_, err := im.Import(ctx, dayRows("MSFT.XNAS", start, 3), ImportOptions{})
	require.NoError(t, err)

	// Re-import days 2-5: days 2-3 overlap the existing partition and are
	// skipped, days 4-5 are written.
	report, err := im.Import(ctx, dayRows("MSFT.XNAS", start.AddDate(0, 0, 1), 4), ImportOptions{Policy: ConflictSkip})
	require.NoError(t, err)
	assert.Equal(t, 2, report.RowsWritten)
	assert.Equal(t, 2, report.RowsSkipped)
	assert.Equal(t, 0, report.PartitionsDeleted)

	bars, err := store.Query(ctx, "MSFT.XNAS", "1-DAY-LAST", start, start.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Len(t, bars, 5)
	// Day 2 kept its original volume.
	assert.Equal(t, int64(2000), bars[1].Volume)
}

func TestImportOverwritePolicyReplacesPartitions(t *testing.T) {
	im, store, _ := newImporterFixture(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	_, err := im.Import(ctx, dayRows("MSFT.XNAS", start, 3), ImportOptions{})
	require.NoError(t, err)

	replacement := dayRows("MSFT.XNAS", start, 3)
	for i := range replacement {
		replacement[i].Volume = 777
	}
	report, err := im.Import(ctx, replacement, ImportOptions{Policy: ConflictOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 3, report.RowsWritten)
	assert.Equal(t, 1, report.PartitionsDeleted)

	bars, err := store.Query(ctx, "MSFT.XNAS", "1-DAY-LAST", start, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	for _, b := range bars {
		assert.Equal(t, int64(777), b.Volume)
	}
}

func TestImportMergePolicyCombinesSeries(t *testing.T) {
	im, store, _ := newImporterFixture(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	_, err := im.Import(ctx, dayRows("MSFT.XNAS", start, 3), ImportOptions{})
	require.NoError(t, err)

	// Days 3-5; day 3 collides and the imported row wins.
	incoming := dayRows("MSFT.XNAS", start.AddDate(0, 0, 2), 3)
	for i := range incoming {
		incoming[i].Volume = 42
	}
	report, err := im.Import(ctx, incoming, ImportOptions{Policy: ConflictMerge})
	require.NoError(t, err)
	assert.Equal(t, 5, report.RowsWritten)
	assert.Equal(t, 1, report.PartitionsDeleted)

	bars, err := store.Query(ctx, "MSFT.XNAS", "1-DAY-LAST", start, start.AddDate(0, 0, 4))
	require.NoError(t, err)
	require.Len(t, bars, 5)
	assert.Equal(t, int64(1000), bars[0].Volume)
	assert.Equal(t, int64(42), bars[2].Volume)
	assert.Equal(t, int64(42), bars[4].Volume)
}

func TestImportUnknownPolicyFails(t *testing.T) {
	im, _, _ := newImporterFixture(t)
	_, err := im.Import(context.Background(), nil, ImportOptions{Policy: "upsert"})
	assert.Error(t, err)
}

func TestImportDeduplicatesInputRows(t *testing.T) {
	im, _, _ := newImporterFixture(t)
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	rows := dayRows("MSFT.XNAS", start, 2)
	rows = append(rows, rows[0]) // duplicate event time in the same batch

	report, err := im.Import(context.Background(), rows, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.RowsWritten)
}
