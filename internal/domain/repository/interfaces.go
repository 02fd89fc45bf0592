package repository

import (
	"context"
	"time"

	"BarPull/internal/domain/models"
)

// PartitionOrigin says how a partition entered the store.
type PartitionOrigin string

const (
	OriginExternal PartitionOrigin = "EXTERNAL" // fetched from the remote provider
	OriginInternal PartitionOrigin = "INTERNAL" // bulk import or locally generated
)

// PartitionMeta describes one partition file on disk, parsed from its
// directory and file name.
type PartitionMeta struct {
	InstrumentID  string
	TimeframeSpec string
	Origin        PartitionOrigin
	Start         time.Time
	End           time.Time
	Path          string
	RowCount      int64 // estimate, 0 when unknown
}

// BarStore is the partitioned columnar store for bars and instrument
// descriptors. It is the single logical writer for its root directory.
type BarStore interface {
	WriteBars(ctx context.Context, bars []models.Bar, origin PartitionOrigin, correlationID string) error
	WriteDescriptor(ctx context.Context, d models.InstrumentDescriptor) error
	Query(ctx context.Context, instrumentID, timeframeSpec string, start, end time.Time) ([]models.Bar, error)
	LoadDescriptor(ctx context.Context, instrumentID string) (models.InstrumentDescriptor, error)
	ScanPartitions(ctx context.Context) ([]PartitionMeta, error)
	DeletePartitions(ctx context.Context, metas []PartitionMeta) error
}

// RemoteDataClient is the rate-limited upstream market-data provider.
// Connection configuration lives with the implementation; connect lazily on
// first use rather than at construction.
type RemoteDataClient interface {
	FetchBars(ctx context.Context, instrumentID string, start, end time.Time, tf TimeframeSpec) ([]models.Bar, models.InstrumentDescriptor, error)
	FetchDescriptor(ctx context.Context, instrumentID string) (models.InstrumentDescriptor, error)
	IsConnected() bool
	Connect(ctx context.Context, timeout time.Duration) error
}

// Metrics records operational counters for the data layer.
type Metrics interface {
	RecordCacheHit(instrumentID, timeframe string)
	RecordCacheMiss(instrumentID, timeframe string)
	RecordRemoteCall(instrumentID string)
	RecordBackfill(instrumentID string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
