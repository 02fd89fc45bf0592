// Package index keeps the in-memory map of which time ranges are cached per
// (instrument, timeframe). It is derived state: everything here can be
// reconstructed by rescanning the column store, and is, once at startup.
package index

import (
	"context"
	"sort"
	"sync"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	xlogger "BarPull/pkg/logger"
	"BarPull/pkg/util"
)

// Scanner is the slice of the column store the index needs.
type Scanner interface {
	ScanPartitions(ctx context.Context) ([]repository.PartitionMeta, error)
}

// AvailabilityIndex answers coverage queries for cached bar ranges. All
// methods are safe for concurrent use; mutations hold the mutex, queries
// take a read lock.
type AvailabilityIndex struct {
	mu      sync.RWMutex
	entries map[models.AvailabilityKey]models.TimeRangeAvailability
	logger  *xlogger.Logger
}

func New(logger *xlogger.Logger) *AvailabilityIndex {
	return &AvailabilityIndex{
		entries: make(map[models.AvailabilityKey]models.TimeRangeAvailability),
		logger:  logger,
	}
}

// Rebuild replaces the whole index from a partition scan. The merged record
// for a key spans min(file starts) to max(file ends); row counts are
// estimated from the covered range and bar interval.
func (ix *AvailabilityIndex) Rebuild(ctx context.Context, store Scanner) error {
	metas, err := store.ScanPartitions(ctx)
	if err != nil {
		return err
	}
	entries := make(map[models.AvailabilityKey]models.TimeRangeAvailability)
	for _, m := range metas {
		rec := models.TimeRangeAvailability{
			InstrumentID:      m.InstrumentID,
			TimeframeSpec:     m.TimeframeSpec,
			Start:             m.Start,
			End:               m.End,
			FileCount:         1,
			EstimatedRowCount: estimateRows(m),
			LastUpdated:       time.Now().UTC(),
		}
		if existing, ok := entries[rec.Key()]; ok {
			rec = existing.Merge(rec)
		}
		entries[rec.Key()] = rec
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()

	if ix.logger != nil {
		ix.logger.Info("availability index rebuilt",
			xlogger.Int("series", len(entries)),
			xlogger.Int("partitions", len(metas)),
		)
	}
	return nil
}

// CoversRange reports whether the cached range for key fully contains
// [start, end]. Day and week timeframes compare calendar dates only:
// date-only user input parses to midnight and would otherwise never satisfy
// an end-of-day cached boundary, producing false partial-coverage results
// and pointless remote fetches.
func (ix *AvailabilityIndex) CoversRange(key models.AvailabilityKey, start, end time.Time) bool {
	ix.mu.RLock()
	rec, ok := ix.entries[key]
	ix.mu.RUnlock()
	if !ok {
		return false
	}
	if tf, err := repository.ParseTimeframeSpec(key.TimeframeSpec); err == nil && tf.IsDaily() {
		return !util.DateOf(rec.Start).After(util.DateOf(start)) &&
			!util.DateOf(rec.End).Before(util.DateOf(end))
	}
	return !rec.Start.After(start) && !rec.End.Before(end)
}

// OverlapsRange reports whether any part of the cached range for key
// intersects [start, end].
func (ix *AvailabilityIndex) OverlapsRange(key models.AvailabilityKey, start, end time.Time) bool {
	ix.mu.RLock()
	rec, ok := ix.entries[key]
	ix.mu.RUnlock()
	if !ok {
		return false
	}
	return !rec.End.Before(start) && !rec.Start.After(end)
}

// Put merges a new availability record into the index. The stored record is
// replaced wholesale for its key.
func (ix *AvailabilityIndex) Put(rec models.TimeRangeAvailability) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if existing, ok := ix.entries[rec.Key()]; ok {
		rec = existing.Merge(rec)
	}
	ix.entries[rec.Key()] = rec
	return nil
}

// Get returns the record for key, if any.
func (ix *AvailabilityIndex) Get(key models.AvailabilityKey) (models.TimeRangeAvailability, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.entries[key]
	return rec, ok
}

// Snapshot returns all records sorted by key, for read-only listing.
func (ix *AvailabilityIndex) Snapshot() []models.TimeRangeAvailability {
	ix.mu.RLock()
	out := make([]models.TimeRangeAvailability, 0, len(ix.entries))
	for _, rec := range ix.entries {
		out = append(out, rec)
	}
	ix.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

func estimateRows(m repository.PartitionMeta) int64 {
	if m.RowCount > 0 {
		return m.RowCount
	}
	tf, err := repository.ParseTimeframeSpec(m.TimeframeSpec)
	if err != nil || tf.Duration() <= 0 {
		return 0
	}
	return int64(m.End.Sub(m.Start)/tf.Duration()) + 1
}
