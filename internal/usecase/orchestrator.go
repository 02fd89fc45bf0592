package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/internal/errs"
	"BarPull/internal/index"
	"BarPull/internal/service/cache"
	"BarPull/internal/service/ratelimit"
	"BarPull/internal/service/retry"
	xlogger "BarPull/pkg/logger"

	"golang.org/x/sync/singleflight"
)

const defaultAttemptTimeout = 120 * time.Second

// Orchestrator resolves every bar request against the local cache first and
// fetches from the remote provider only what the cache cannot answer. It is
// the sole entry point for the backtest engine; one instance per process
// owns the write path.
type Orchestrator struct {
	store   repository.BarStore
	remote  repository.RemoteDataClient
	idx     *index.AvailabilityIndex
	limiter *ratelimit.Limiter
	retry   retry.Policy
	metrics repository.Metrics
	logger  *xlogger.Logger

	descriptors *cache.DescriptorCache
	journal     *RequestJournal
	venues      []VenueResolver

	// Collapses concurrent fetches for the same (instrument, timeframe,
	// range) into one remote call.
	flight singleflight.Group

	connectMu      sync.Mutex
	connectTimeout time.Duration
	attemptTimeout time.Duration
}

type OrchestratorConfig struct {
	Store          repository.BarStore
	Remote         repository.RemoteDataClient
	Index          *index.AvailabilityIndex
	Limiter        *ratelimit.Limiter
	Retry          retry.Policy
	Metrics        repository.Metrics
	Logger         *xlogger.Logger
	Journal        *RequestJournal
	DescriptorTTL  time.Duration
	ConnectTimeout time.Duration
	AttemptTimeout time.Duration
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("orchestrator: store required")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("orchestrator: availability index required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("orchestrator: rate limiter required")
	}
	journal := cfg.Journal
	if journal == nil {
		journal = NewRequestJournal()
	}
	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &Orchestrator{
		store:          cfg.Store,
		remote:         cfg.Remote,
		idx:            cfg.Index,
		limiter:        cfg.Limiter,
		retry:          cfg.Retry,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		descriptors:    cache.NewDescriptorCache(cfg.DescriptorTTL),
		journal:        journal,
		venues:         DefaultVenueChain(),
		connectTimeout: connectTimeout,
		attemptTimeout: attemptTimeout,
	}, nil
}

// Journal exposes the fetch-request journal for read-only listing.
func (o *Orchestrator) Journal() *RequestJournal { return o.journal }

type fetchResult struct {
	bars []models.Bar
	desc models.InstrumentDescriptor
}

// FetchOrLoad returns bars and the instrument descriptor for the requested
// range, reading through the cache when it fully covers the range and
// fetching remotely otherwise. Partial coverage re-fetches the full range;
// query-time dedupe keeps that idempotent.
func (o *Orchestrator) FetchOrLoad(ctx context.Context, instrumentID string, start, end time.Time, timeframeSpec *string) ([]models.Bar, models.InstrumentDescriptor, error) {
	began := time.Now()
	if instrumentID == "" {
		return nil, models.InstrumentDescriptor{}, &errs.InvalidRequestError{Reason: "instrument id required"}
	}
	if start.After(end) {
		return nil, models.InstrumentDescriptor{}, &errs.InvalidRequestError{Reason: "start after end"}
	}
	tf, err := repository.ResolveTimeframe(timeframeSpec, start, end)
	if err != nil {
		return nil, models.InstrumentDescriptor{}, &errs.InvalidRequestError{Reason: err.Error()}
	}
	key := models.AvailabilityKey{InstrumentID: instrumentID, TimeframeSpec: tf.String()}

	if o.idx.CoversRange(key, start, end) {
		if o.metrics != nil {
			o.metrics.RecordCacheHit(instrumentID, tf.String())
		}
		bars, desc, err := o.loadLocal(ctx, key, start, end)
		if err != nil {
			return nil, models.InstrumentDescriptor{}, err
		}
		o.observeLatency("load_local", began)
		return bars, desc, nil
	}

	if o.metrics != nil {
		o.metrics.RecordCacheMiss(instrumentID, tf.String())
	}
	flightKey := key.String() + "/" + start.UTC().Format(time.RFC3339Nano) + "/" + end.UTC().Format(time.RFC3339Nano)
	v, err, _ := o.flight.Do(flightKey, func() (interface{}, error) {
		return o.fetchRemote(ctx, key, tf, start, end)
	})
	if err != nil {
		return nil, models.InstrumentDescriptor{}, err
	}
	res := v.(*fetchResult)
	o.observeLatency("fetch_remote", began)
	return res.bars, res.desc, nil
}

// loadLocal serves a covered range from the column store, backfilling the
// descriptor for legacy caches written before descriptor persistence
// existed.
func (o *Orchestrator) loadLocal(ctx context.Context, key models.AvailabilityKey, start, end time.Time) ([]models.Bar, models.InstrumentDescriptor, error) {
	bars, err := o.store.Query(ctx, key.InstrumentID, key.TimeframeSpec, start, end)
	if err != nil {
		return nil, models.InstrumentDescriptor{}, err
	}
	desc, err := o.EnsureDescriptor(ctx, key.InstrumentID)
	if err != nil {
		return nil, models.InstrumentDescriptor{}, err
	}
	desc.Venue = ResolveVenue(o.venues, desc, key.InstrumentID)
	return bars, desc, nil
}

// EnsureDescriptor returns the descriptor for instrumentID, performing the
// one-time backfill when bars exist on disk without one: only the descriptor
// is fetched remotely, never the bar data, so old caches stay usable without
// a re-download.
func (o *Orchestrator) EnsureDescriptor(ctx context.Context, instrumentID string) (models.InstrumentDescriptor, error) {
	if d, ok := o.descriptors.Get(instrumentID); ok {
		return d, nil
	}
	d, err := o.store.LoadDescriptor(ctx, instrumentID)
	if err == nil {
		o.descriptors.Set(d)
		return d, nil
	}
	if !errors.Is(err, errs.ErrDescriptorNotFound) {
		return models.InstrumentDescriptor{}, err
	}

	if cerr := o.ensureConnected(ctx); cerr != nil {
		return models.InstrumentDescriptor{}, &errs.DataNotFoundError{
			InstrumentID: instrumentID,
			Hint:         "cached bars have no instrument descriptor and the provider is unreachable; start the provider and retry, or import the descriptor manually",
		}
	}
	if err := o.limiter.Acquire(ctx); err != nil {
		return models.InstrumentDescriptor{}, err
	}
	d, err = o.remote.FetchDescriptor(ctx, instrumentID)
	if err != nil {
		return models.InstrumentDescriptor{}, fmt.Errorf("descriptor backfill for %s: %w", instrumentID, err)
	}
	if err := o.store.WriteDescriptor(ctx, d); err != nil {
		return models.InstrumentDescriptor{}, err
	}
	o.descriptors.Set(d)
	if o.metrics != nil {
		o.metrics.RecordBackfill(instrumentID)
	}
	if o.logger != nil {
		o.logger.Info("descriptor backfilled for legacy cache", xlogger.String("instrument", instrumentID))
	}
	return d, nil
}

// fetchRemote performs one journaled, rate-limited, retried remote fetch and
// persists the result: descriptor before bars before index update, so a
// crash between steps never leaves bars visible without a usable descriptor
// and never marks a range available before it is durable.
func (o *Orchestrator) fetchRemote(ctx context.Context, key models.AvailabilityKey, tf repository.TimeframeSpec, start, end time.Time) (*fetchResult, error) {
	if err := o.ensureConnected(ctx); err != nil {
		return nil, &errs.DataNotFoundError{
			InstrumentID:  key.InstrumentID,
			TimeframeSpec: key.TimeframeSpec,
			Hint:          "range not cached and provider unreachable; start the market-data provider and retry, or bulk-import the range",
		}
	}

	requestID := o.journal.Open(key.InstrumentID, key.TimeframeSpec, start, end)
	if err := o.journal.Transition(requestID, models.FetchInProgress); err != nil {
		return nil, err
	}

	var bars []models.Bar
	var desc models.InstrumentDescriptor
	attempts := 0
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		attempts++
		if err := o.limiter.Acquire(ctx); err != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.RecordRemoteCall(key.InstrumentID)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		defer cancel()
		var ferr error
		bars, desc, ferr = o.remote.FetchBars(attemptCtx, key.InstrumentID, start, end, tf)
		return ferr
	}, func(attempt int, cause error) {
		o.journal.RecordRetry(requestID, attempt, cause)
	})
	if err != nil {
		o.journal.Fail(requestID, err)
		if o.metrics != nil {
			o.metrics.RecordError("remote_fetch")
		}
		var invalid *errs.InvalidRequestError
		if errors.As(err, &invalid) {
			return nil, err
		}
		return nil, &errs.ProviderUnavailableError{InstrumentID: key.InstrumentID, Attempts: attempts, LastErr: err}
	}

	// Persist order is load-bearing: descriptor, bars, index.
	if err := o.store.WriteDescriptor(ctx, desc); err != nil {
		o.journal.Fail(requestID, err)
		return nil, err
	}
	if len(bars) > 0 {
		if err := o.store.WriteBars(ctx, bars, repository.OriginExternal, requestID); err != nil {
			o.journal.Fail(requestID, err)
			return nil, err
		}
		// The whole requested range was fetched, so the availability claim
		// spans it even when the provider returned fewer bars (closed
		// market hours at the edges).
		if err := o.idx.Put(models.TimeRangeAvailability{
			InstrumentID:      key.InstrumentID,
			TimeframeSpec:     key.TimeframeSpec,
			Start:             minTime(start, bars[0].EventTime),
			End:               maxTime(end, bars[len(bars)-1].EventTime),
			FileCount:         1,
			EstimatedRowCount: int64(len(bars)),
			LastUpdated:       time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
	}
	o.descriptors.Set(desc)
	if err := o.journal.Transition(requestID, models.FetchCompleted); err != nil {
		return nil, err
	}

	if o.logger != nil {
		o.logger.Info("remote range fetched and persisted",
			xlogger.String("instrument", key.InstrumentID),
			xlogger.String("timeframe", key.TimeframeSpec),
			xlogger.Int("bars", len(bars)),
			xlogger.Int("attempts", attempts),
			xlogger.String("request_id", requestID),
		)
	}

	desc.Venue = ResolveVenue(o.venues, desc, key.InstrumentID)
	return &fetchResult{bars: bars, desc: desc}, nil
}

// ensureConnected lazily connects the remote client on first use.
func (o *Orchestrator) ensureConnected(ctx context.Context) error {
	if o.remote == nil {
		return fmt.Errorf("no remote data client configured")
	}
	o.connectMu.Lock()
	defer o.connectMu.Unlock()
	if o.remote.IsConnected() {
		return nil
	}
	if err := o.remote.Connect(ctx, o.connectTimeout); err != nil {
		return fmt.Errorf("connect provider: %w", err)
	}
	return nil
}

func (o *Orchestrator) observeLatency(op string, began time.Time) {
	if o.metrics != nil {
		o.metrics.RecordLatency(op, time.Since(began).Seconds())
	}
}
