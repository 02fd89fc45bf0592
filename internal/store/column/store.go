package column

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/internal/errs"
	xlogger "BarPull/pkg/logger"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

const descriptorDir = "instruments"

// barRow is the parquet row shape. Prices are serialized as strings to keep
// their fixed-precision decimal representation lossless; timestamps are
// UTC nanoseconds.
type barRow struct {
	InstrumentID  string `parquet:"instrument_id"`
	TimeframeSpec string `parquet:"timeframe_spec"`
	Open          string `parquet:"open"`
	High          string `parquet:"high"`
	Low           string `parquet:"low"`
	Close         string `parquet:"close"`
	Volume        int64  `parquet:"volume"`
	EventTime     int64  `parquet:"event_time"`
	IngestTime    int64  `parquet:"ingest_time"`
}

// Store owns the partition root exclusively: one logical writer, any number
// of concurrent readers. Files are immutable once closed, so reads never
// need the write lock.
type Store struct {
	root   string
	logger *xlogger.Logger

	mu sync.Mutex // serializes writes
}

// NewStore creates the partition root (and the descriptor directory under
// it) if missing.
func NewStore(root string, logger *xlogger.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("column store: root directory required")
	}
	if err := os.MkdirAll(filepath.Join(root, descriptorDir), 0o755); err != nil {
		return nil, fmt.Errorf("column store: create root: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the partition root directory.
func (s *Store) Root() string { return s.root }

// WriteBars persists one contiguous batch as a new partition file. The batch
// must belong to a single (instrument, timeframe) series. Writes go to a
// temp file and are renamed into place, so readers never observe a partial
// partition and a crash leaves no visible new file.
func (s *Store) WriteBars(ctx context.Context, bars []models.Bar, origin repository.PartitionOrigin, correlationID string) error {
	if len(bars) == 0 {
		return fmt.Errorf("column store: empty batch")
	}
	instrumentID, tf := bars[0].InstrumentID, bars[0].TimeframeSpec
	for _, b := range bars {
		if b.InstrumentID != instrumentID || b.TimeframeSpec != tf {
			return fmt.Errorf("column store: mixed series in batch (%s/%s vs %s/%s)", instrumentID, tf, b.InstrumentID, b.TimeframeSpec)
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("column store: %w", err)
		}
	}
	sorted := make([]models.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EventTime.Before(sorted[j].EventTime) })
	if !models.StrictlyIncreasing(sorted) {
		return fmt.Errorf("column store: duplicate event times in batch for %s/%s", instrumentID, tf)
	}

	rows := make([]barRow, len(sorted))
	for i, b := range sorted {
		rows[i] = barRow{
			InstrumentID:  b.InstrumentID,
			TimeframeSpec: b.TimeframeSpec,
			Open:          b.Open.String(),
			High:          b.High.String(),
			Low:           b.Low.String(),
			Close:         b.Close.String(),
			Volume:        b.Volume,
			EventTime:     b.EventTime.UTC().UnixNano(),
			IngestTime:    b.IngestTime.UTC().UnixNano(),
		}
	}

	dir := filepath.Join(s.root, FormatPartitionDir(instrumentID, tf, origin))
	name := FormatPartitionFile(sorted[0].EventTime, sorted[len(sorted)-1].EventTime)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("column store: create partition dir: %w", err)
	}
	tmp := filepath.Join(dir, name+".tmp-"+correlationID)
	if err := parquet.WriteFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("column store: write parquet: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("column store: publish partition: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("partition written",
			xlogger.String("instrument", instrumentID),
			xlogger.String("timeframe", tf),
			xlogger.Int("rows", len(rows)),
			xlogger.String("correlation_id", correlationID),
		)
	}
	return nil
}

// WriteDescriptor persists one descriptor record, replacing any previous one
// for the same instrument id atomically.
func (s *Store) WriteDescriptor(ctx context.Context, d models.InstrumentDescriptor) error {
	if d.InstrumentID == "" {
		return fmt.Errorf("column store: descriptor instrument id required")
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("column store: marshal descriptor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, descriptorDir, d.InstrumentID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("column store: write descriptor: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("column store: publish descriptor: %w", err)
	}
	return nil
}

// LoadDescriptor looks up the descriptor by exact instrument id.
func (s *Store) LoadDescriptor(ctx context.Context, instrumentID string) (models.InstrumentDescriptor, error) {
	path := filepath.Join(s.root, descriptorDir, instrumentID+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.InstrumentDescriptor{}, errs.ErrDescriptorNotFound
		}
		return models.InstrumentDescriptor{}, fmt.Errorf("column store: read descriptor: %w", err)
	}
	var d models.InstrumentDescriptor
	if err := json.Unmarshal(b, &d); err != nil {
		return models.InstrumentDescriptor{}, fmt.Errorf("column store: decode descriptor %s: %w", instrumentID, err)
	}
	return d, nil
}

// Query merges all partition files intersecting [start, end] for the series,
// deduplicates on event time (later files win, which makes re-fetches
// idempotent), and returns bars sorted by event time.
func (s *Store) Query(ctx context.Context, instrumentID, timeframeSpec string, start, end time.Time) ([]models.Bar, error) {
	metas, err := s.ScanPartitions(ctx)
	if err != nil {
		return nil, err
	}
	startNano, endNano := start.UTC().UnixNano(), end.UTC().UnixNano()

	byEventTime := make(map[int64]barRow)
	for _, m := range metas {
		if m.InstrumentID != instrumentID || m.TimeframeSpec != timeframeSpec {
			continue
		}
		if m.End.Before(start) || m.Start.After(end) {
			continue
		}
		rows, err := parquet.ReadFile[barRow](m.Path)
		if err != nil {
			return nil, fmt.Errorf("column store: read partition %s: %w", m.Path, err)
		}
		for _, r := range rows {
			if r.EventTime < startNano || r.EventTime > endNano {
				continue
			}
			byEventTime[r.EventTime] = r
		}
	}

	out := make([]models.Bar, 0, len(byEventTime))
	for _, r := range byEventTime {
		bar, err := rowToBar(r)
		if err != nil {
			return nil, err
		}
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventTime.Before(out[j].EventTime) })
	return out, nil
}

// ScanPartitions walks the partition root and parses every directory and
// file name. Unparsable names are logged and skipped; corruption of one
// partition never fails the scan of the rest.
func (s *Store) ScanPartitions(ctx context.Context) ([]repository.PartitionMeta, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("column store: scan root: %w", err)
	}
	var metas []repository.PartitionMeta
	for _, e := range entries {
		if !e.IsDir() || e.Name() == descriptorDir {
			continue
		}
		instrumentID, tf, origin, err := ParsePartitionDir(e.Name())
		if err != nil {
			s.logCorruption(err)
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("column store: scan %s: %w", dir, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			start, end, err := ParsePartitionFile(f.Name())
			if err != nil {
				s.logCorruption(err)
				continue
			}
			metas = append(metas, repository.PartitionMeta{
				InstrumentID:  instrumentID,
				TimeframeSpec: tf,
				Origin:        origin,
				Start:         start,
				End:           end,
				Path:          filepath.Join(dir, f.Name()),
			})
		}
	}
	return metas, nil
}

// DeletePartitions removes the given partition files. Used by the bulk
// importer's overwrite policy; empty directories are left in place.
func (s *Store) DeletePartitions(ctx context.Context, metas []repository.PartitionMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range metas {
		if err := os.Remove(m.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("column store: delete partition %s: %w", m.Path, err)
		}
	}
	return nil
}

func (s *Store) logCorruption(err error) {
	var ce *errs.CatalogCorruptionError
	if s.logger != nil && errors.As(err, &ce) {
		s.logger.Warn("skipping unparsable partition",
			xlogger.String("path", ce.Path),
			xlogger.String("reason", ce.Reason),
		)
	}
}

func rowToBar(r barRow) (models.Bar, error) {
	open, err := decimal.NewFromString(r.Open)
	if err != nil {
		return models.Bar{}, fmt.Errorf("column store: bad open %q: %w", r.Open, err)
	}
	high, err := decimal.NewFromString(r.High)
	if err != nil {
		return models.Bar{}, fmt.Errorf("column store: bad high %q: %w", r.High, err)
	}
	low, err := decimal.NewFromString(r.Low)
	if err != nil {
		return models.Bar{}, fmt.Errorf("column store: bad low %q: %w", r.Low, err)
	}
	closep, err := decimal.NewFromString(r.Close)
	if err != nil {
		return models.Bar{}, fmt.Errorf("column store: bad close %q: %w", r.Close, err)
	}
	return models.Bar{
		InstrumentID:  r.InstrumentID,
		TimeframeSpec: r.TimeframeSpec,
		Open:          open,
		High:          high,
		Low:           low,
		Close:         closep,
		Volume:        r.Volume,
		EventTime:     time.Unix(0, r.EventTime).UTC(),
		IngestTime:    time.Unix(0, r.IngestTime).UTC(),
	}, nil
}
