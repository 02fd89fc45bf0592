package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/internal/errs"
	"BarPull/internal/index"
	xlogger "BarPull/pkg/logger"
	"BarPull/pkg/util"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ConflictPolicy decides what happens when imported rows overlap partitions
// already on disk.
type ConflictPolicy string

const (
	ConflictSkip      ConflictPolicy = "skip"      // default: ignore overlapping rows
	ConflictOverwrite ConflictPolicy = "overwrite" // delete and replace overlapping partitions
	ConflictMerge     ConflictPolicy = "merge"     // deduplicate and combine
)

// ImportRow is one raw input row before conversion to a Bar.
type ImportRow struct {
	InstrumentID  string `validate:"required"`
	TimeframeSpec string `validate:"required"`
	EventTime     string `validate:"required"`
	Open          string `validate:"required"`
	High          string `validate:"required"`
	Low           string `validate:"required"`
	Close         string `validate:"required"`
	Volume        int64  `validate:"gte=0"`
}

// ImportOptions configures one bulk import.
type ImportOptions struct {
	Policy ConflictPolicy
}

// ImportReport summarizes one bulk import. Invalid rows never abort the
// batch; they are collected here with their row numbers.
type ImportReport struct {
	RowsWritten       int
	RowsSkipped       int
	PartitionsWritten int
	PartitionsDeleted int
	Invalid           []*errs.ValidationError
}

// Importer is the bulk import path. It shares the column store with the
// orchestrator but never talks to the remote provider.
type Importer struct {
	store    repository.BarStore
	idx      *index.AvailabilityIndex
	logger   *xlogger.Logger
	validate *validator.Validate

	mu sync.Mutex // guards the report during concurrent group writes
}

func NewImporter(store repository.BarStore, idx *index.AvailabilityIndex, logger *xlogger.Logger) *Importer {
	return &Importer{
		store:    store,
		idx:      idx,
		logger:   logger,
		validate: validator.New(),
	}
}

type seriesKey struct {
	instrumentID  string
	timeframeSpec string
}

// Import converts rows to bars, validates them, resolves conflicts per the
// policy, and persists one partition per (instrument, timeframe) group.
// Groups are written concurrently; each series still has exactly one writer.
func (im *Importer) Import(ctx context.Context, rows []ImportRow, opts ImportOptions) (*ImportReport, error) {
	if opts.Policy == "" {
		opts.Policy = ConflictSkip
	}
	switch opts.Policy {
	case ConflictSkip, ConflictOverwrite, ConflictMerge:
	default:
		return nil, fmt.Errorf("import: unknown conflict policy %q", opts.Policy)
	}

	report := &ImportReport{}
	groups := make(map[seriesKey][]models.Bar)
	for i, row := range rows {
		bar, err := im.convertRow(i+1, row)
		if err != nil {
			var verr *errs.ValidationError
			if ok := asValidation(err, &verr); ok {
				report.Invalid = append(report.Invalid, verr)
				continue
			}
			return nil, err
		}
		k := seriesKey{bar.InstrumentID, bar.TimeframeSpec}
		groups[k] = append(groups[k], bar)
	}

	metas, err := im.store.ScanPartitions(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for k, bars := range groups {
		k, bars := k, bars
		g.Go(func() error {
			return im.importGroup(gctx, k, bars, metas, opts.Policy, report)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(report.Invalid, func(i, j int) bool { return report.Invalid[i].Row < report.Invalid[j].Row })
	if im.logger != nil {
		im.logger.Info("bulk import finished",
			xlogger.String("policy", string(opts.Policy)),
			xlogger.Int("written", report.RowsWritten),
			xlogger.Int("skipped", report.RowsSkipped),
			xlogger.Int("invalid", len(report.Invalid)),
		)
	}
	return report, nil
}

func (im *Importer) importGroup(ctx context.Context, k seriesKey, bars []models.Bar, metas []repository.PartitionMeta, policy ConflictPolicy, report *ImportReport) error {
	sort.Slice(bars, func(i, j int) bool { return bars[i].EventTime.Before(bars[j].EventTime) })
	bars = dedupeByEventTime(bars)

	var overlapping []repository.PartitionMeta
	for _, m := range metas {
		if m.InstrumentID != k.instrumentID || m.TimeframeSpec != k.timeframeSpec {
			continue
		}
		if !m.End.Before(bars[0].EventTime) && !m.Start.After(bars[len(bars)-1].EventTime) {
			overlapping = append(overlapping, m)
		}
	}

	skipped := 0
	deleted := 0
	switch policy {
	case ConflictSkip:
		kept := bars[:0]
		for _, b := range bars {
			if coveredByAny(b.EventTime, overlapping) {
				skipped++
				continue
			}
			kept = append(kept, b)
		}
		bars = kept
	case ConflictOverwrite:
		if len(overlapping) > 0 {
			if err := im.store.DeletePartitions(ctx, overlapping); err != nil {
				return err
			}
			deleted = len(overlapping)
		}
	case ConflictMerge:
		if len(overlapping) > 0 {
			rangeStart, rangeEnd := bars[0].EventTime, bars[len(bars)-1].EventTime
			for _, m := range overlapping {
				rangeStart = minTime(rangeStart, m.Start)
				rangeEnd = maxTime(rangeEnd, m.End)
			}
			existing, err := im.store.Query(ctx, k.instrumentID, k.timeframeSpec, rangeStart, rangeEnd)
			if err != nil {
				return err
			}
			bars = mergeBars(existing, bars)
			if err := im.store.DeletePartitions(ctx, overlapping); err != nil {
				return err
			}
			deleted = len(overlapping)
		}
	}

	written := 0
	if len(bars) > 0 {
		if err := im.store.WriteBars(ctx, bars, repository.OriginInternal, uuid.NewString()); err != nil {
			return err
		}
		written = len(bars)
		if im.idx != nil {
			if err := im.idx.Put(models.TimeRangeAvailability{
				InstrumentID:      k.instrumentID,
				TimeframeSpec:     k.timeframeSpec,
				Start:             bars[0].EventTime,
				End:               bars[len(bars)-1].EventTime,
				FileCount:         1,
				EstimatedRowCount: int64(len(bars)),
				LastUpdated:       time.Now().UTC(),
			}); err != nil {
				return err
			}
		}
	}

	im.mu.Lock()
	report.RowsWritten += written
	report.RowsSkipped += skipped
	report.PartitionsDeleted += deleted
	if written > 0 {
		report.PartitionsWritten++
	}
	im.mu.Unlock()
	return nil
}

func (im *Importer) convertRow(row int, r ImportRow) (models.Bar, error) {
	if err := im.validate.Struct(r); err != nil {
		return models.Bar{}, &errs.ValidationError{Row: row, Reason: err.Error()}
	}
	eventTime, ok := util.ParseTime(r.EventTime)
	if !ok {
		return models.Bar{}, &errs.ValidationError{Row: row, Reason: fmt.Sprintf("unparsable event time %q", r.EventTime)}
	}
	open, err := decimal.NewFromString(r.Open)
	if err != nil {
		return models.Bar{}, &errs.ValidationError{Row: row, Reason: "bad open: " + err.Error()}
	}
	high, err := decimal.NewFromString(r.High)
	if err != nil {
		return models.Bar{}, &errs.ValidationError{Row: row, Reason: "bad high: " + err.Error()}
	}
	low, err := decimal.NewFromString(r.Low)
	if err != nil {
		return models.Bar{}, &errs.ValidationError{Row: row, Reason: "bad low: " + err.Error()}
	}
	closep, err := decimal.NewFromString(r.Close)
	if err != nil {
		return models.Bar{}, &errs.ValidationError{Row: row, Reason: "bad close: " + err.Error()}
	}
	bar := models.Bar{
		InstrumentID:  r.InstrumentID,
		TimeframeSpec: r.TimeframeSpec,
		Open:          open,
		High:          high,
		Low:           low,
		Close:         closep,
		Volume:        r.Volume,
		EventTime:     eventTime,
		IngestTime:    time.Now().UTC(),
	}
	if err := bar.Validate(); err != nil {
		return models.Bar{}, &errs.ValidationError{Row: row, Reason: err.Error()}
	}
	return bar, nil
}

func asValidation(err error, target **errs.ValidationError) bool {
	v, ok := err.(*errs.ValidationError)
	if ok {
		*target = v
	}
	return ok
}

func coveredByAny(t time.Time, metas []repository.PartitionMeta) bool {
	for _, m := range metas {
		if !t.Before(m.Start) && !t.After(m.End) {
			return true
		}
	}
	return false
}

// mergeBars combines two sorted series; imported rows win on equal event
// times.
func mergeBars(existing, imported []models.Bar) []models.Bar {
	byTime := make(map[int64]models.Bar, len(existing)+len(imported))
	for _, b := range existing {
		byTime[b.EventTime.UnixNano()] = b
	}
	for _, b := range imported {
		byTime[b.EventTime.UnixNano()] = b
	}
	out := make([]models.Bar, 0, len(byTime))
	for _, b := range byTime {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventTime.Before(out[j].EventTime) })
	return out
}

func dedupeByEventTime(bars []models.Bar) []models.Bar {
	out := bars[:0]
	for i, b := range bars {
		if i > 0 && !b.EventTime.After(out[len(out)-1].EventTime) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
