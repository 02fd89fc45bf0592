package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/internal/errs"
	"BarPull/internal/index"
	"BarPull/internal/service/ratelimit"
	"BarPull/internal/service/retry"
	"BarPull/internal/store/column"
	xlogger "BarPull/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote counts calls and serves synthetic minute bars.
type fakeRemote struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	fetchErr   error
	barCalls   int
	descCalls  int
	delay      time.Duration
}

func (f *fakeRemote) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRemote) Connect(ctx context.Context, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeRemote) FetchBars(ctx context.Context, instrumentID string, start, end time.Time, tf repository.TimeframeSpec) ([]models.Bar, models.InstrumentDescriptor, error) {
	f.mu.Lock()
	f.barCalls++
	fetchErr, delay := f.fetchErr, f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if fetchErr != nil {
		return nil, models.InstrumentDescriptor{}, fetchErr
	}
	var bars []models.Bar
	step := tf.Duration()
	for t := start; t.Before(end); t = t.Add(step) {
		price := decimal.NewFromInt(150)
		bars = append(bars, models.Bar{
			InstrumentID:  instrumentID,
			TimeframeSpec: tf.String(),
			Open:          price,
			High:          price.Add(decimal.NewFromInt(1)),
			Low:           price.Sub(decimal.NewFromInt(1)),
			Close:         price,
			Volume:        1000,
			EventTime:     t,
			IngestTime:    time.Now().UTC(),
		})
	}
	return bars, f.descriptor(instrumentID), nil
}

func (f *fakeRemote) FetchDescriptor(ctx context.Context, instrumentID string) (models.InstrumentDescriptor, error) {
	f.mu.Lock()
	f.descCalls++
	f.mu.Unlock()
	return f.descriptor(instrumentID), nil
}

func (f *fakeRemote) descriptor(instrumentID string) models.InstrumentDescriptor {
	symbol, venue := models.SplitInstrumentID(instrumentID)
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

func (f *fakeRemote) calls() (bars, descs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.barCalls, f.descCalls
}

type fixture struct {
	store  *column.Store
	idx    *index.AvailabilityIndex
	remote *fakeRemote
	orch   *Orchestrator
}

func newFixture(t *testing.T, remote *fakeRemote) *fixture {
	t.Helper()
	store, err := column.NewStore(t.TempDir(), xlogger.Nop())
	require.NoError(t, err)
	idx := index.New(xlogger.Nop())
	limiter, err := ratelimit.New(100, time.Minute, 0.9)
	require.NoError(t, err)
	orch, err := NewOrchestrator(OrchestratorConfig{
		Store:   store,
		Remote:  remote,
		Index:   idx,
		Limiter: limiter,
		Retry:   retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, Logger: xlogger.Nop()},
		Logger:  xlogger.Nop(),
	})
	require.NoError(t, err)
	return &fixture{store: store, idx: idx, remote: remote, orch: orch}
}

func TestFetchOrLoadEndToEnd(t *testing.T) {
	fx := newFixture(t, &fakeRemote{})
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)

	// Empty cache: one rate-limited remote call, 60 bars persisted.
	bars, desc, err := fx.orch.FetchOrLoad(ctx, "AAPL.XNAS", start, end, nil)
	require.NoError(t, err)
	assert.Len(t, bars, 60)
	assert.Equal(t, models.Venue("XNAS"), desc.Venue)

	barCalls, _ := fx.remote.calls()
	assert.Equal(t, 1, barCalls)

	key := models.AvailabilityKey{InstrumentID: "AAPL.XNAS", TimeframeSpec: "1-MINUTE-LAST"}
	assert.True(t, fx.idx.CoversRange(key, start, end))

	persisted, err := fx.store.LoadDescriptor(ctx, "AAPL.XNAS")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", persisted.Symbol)

	// Second identical request: served locally, zero remote calls.
	bars, _, err = fx.orch.FetchOrLoad(ctx, "AAPL.XNAS", start, end, nil)
	require.NoError(t, err)
	assert.Len(t, bars, 60)
	barCalls, descCalls := fx.remote.calls()
	assert.Equal(t, 1, barCalls)
	assert.Equal(t, 0, descCalls)

	// And the journal recorded exactly one completed fetch.
	reqs := fx.orch.Journal().List()
	require.Len(t, reqs, 1)
	assert.Equal(t, models.FetchCompleted, reqs[0].Status)
	assert.Equal(t, 0, reqs[0].RetryCount)
}

func TestRefetchIsIdempotent(t *testing.T) {
	fx := newFixture(t, &fakeRemote{})
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)

	_, _, err := fx.orch.FetchOrLoad(ctx, "AAPL.XNAS", start, end, nil)
	require.NoError(t, err)

	// Force a second remote fetch of the same range by starting over with an
	// empty index; the query must still see the union, not the sum.
	orch, err := NewOrchestrator(OrchestratorConfig{
		Store:   fx.store,
		Remote:  fx.remote,
		Index:   index.New(xlogger.Nop()),
		Limiter: mustLimiter(t),
		Retry:   retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Logger:  xlogger.Nop(),
	})
	require.NoError(t, err)

	bars, _, err := orch.FetchOrLoad(ctx, "AAPL.XNAS", start, end, nil)
	require.NoError(t, err)
	assert.Len(t, bars, 60)

	got, err := fx.store.Query(ctx, "AAPL.XNAS", "1-MINUTE-LAST", start, end)
	require.NoError(t, err)
	assert.Len(t, got, 60)
}

func mustLimiter(t *testing.T) *ratelimit.Limiter {
	t.Helper()
	l, err := ratelimit.New(100, time.Minute, 0.9)
	require.NoError(t, err)
	return l
}

func TestDescriptorBackfillForLegacyCache(t *testing.T) {
	remote := &fakeRemote{}
	fx := newFixture(t, remote)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	// Legacy cache: bars on disk, no descriptor.
	legacy := legacyDayBars("AAPL.XNAS", start, 4)
	require.NoError(t, fx.store.WriteBars(ctx, legacy, repository.OriginExternal, "legacy"))
	require.NoError(t, fx.idx.Rebuild(ctx, fx.store))

	bars, desc, err := fx.orch.FetchOrLoad(ctx, "AAPL.XNAS", start, end, nil)
	require.NoError(t, err)
	assert.Len(t, bars, 4)
	assert.Equal(t, models.Venue("XNAS"), desc.Venue)

	barCalls, descCalls := remote.calls()
	assert.Equal(t, 0, barCalls, "backfill must fetch only the descriptor, never bar data")
	assert.Equal(t, 1, descCalls)

	_, err = fx.store.LoadDescriptor(ctx, "AAPL.XNAS")
	require.NoError(t, err)

	// Second call: no remote traffic at all.
	_, _, err = fx.orch.FetchOrLoad(ctx, "AAPL.XNAS", start, end, nil)
	require.NoError(t, err)
	barCalls, descCalls = remote.calls()
	assert.Equal(t, 0, barCalls)
	assert.Equal(t, 1, descCalls)
}

func legacyDayBars(instrumentID string, start time.Time, n int) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		price := decimal.NewFromInt(int64(190 + i))
		bars[i] = models.Bar{
			InstrumentID:  instrumentID,
			TimeframeSpec: "1-DAY-LAST",
			Open:          price,
			High:          price.Add(decimal.NewFromInt(2)),
			Low:           price.Sub(decimal.NewFromInt(2)),
			Close:         price.Add(decimal.NewFromInt(1)),
			Volume:        5000,
			EventTime:     start.AddDate(0, 0, i),
			IngestTime:    time.Now().UTC(),
		}
	}
	return bars
}

func TestFetchFailureLeavesCacheUntouched(t *testing.T) {
	remote := &fakeRemote{fetchErr: errs.Transient(errors.New("stream truncated"))}
	fx := newFixture(t, remote)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)

	_, _, err := fx.orch.FetchOrLoad(ctx, "AAPL.XNAS", start, end, nil)
	var unavailable *errs.ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 3, unavailable.Attempts)

	// No partial result persisted, index unchanged.
	metas, err := fx.store.ScanPartitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, metas)
	key := models.AvailabilityKey{InstrumentID: "AAPL.XNAS", TimeframeSpec: "1-MINUTE-LAST"}
	assert.False(t, fx.idx.CoversRange(key, start, end))

	reqs := fx.orch.Journal().List()
	require.Len(t, reqs, 1)
	assert.Equal(t, models.FetchFailed, reqs[0].Status)
	assert.Equal(t, 2, reqs[0].RetryCount)
}

func TestFatalErrorFailsFast(t *testing.T) {
	remote := &fakeRemote{fetchErr: &errs.InvalidRequestError{Reason: "unknown symbol"}}
	fx := newFixture(t, remote)
	ctx := context.Background()

	_, _, err := fx.orch.FetchOrLoad(ctx, "NOPE.XNAS",
		time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC), nil)
	var invalid *errs.InvalidRequestError
	require.ErrorAs(t, err, &invalid)

	barCalls, _ := remote.calls()
	assert.Equal(t, 1, barCalls)
}

func TestProviderUnreachableYieldsDataNotFound(t *testing.T) {
	remote := &fakeRemote{connectErr: errors.New("connection refused")}
	fx := newFixture(t, remote)

	_, _, err := fx.orch.FetchOrLoad(context.Background(), "AAPL.XNAS",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), nil)
	var notFound *errs.DataNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Hint, "provider")
}

func TestInvalidArguments(t *testing.T) {
	fx := newFixture(t, &fakeRemote{})
	ctx := context.Background()
	later := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := fx.orch.FetchOrLoad(ctx, "", earlier, later, nil)
	var invalid *errs.InvalidRequestError
	assert.ErrorAs(t, err, &invalid)

	_, _, err = fx.orch.FetchOrLoad(ctx, "AAPL.XNAS", later, earlier, nil)
	assert.ErrorAs(t, err, &invalid)

	bad := "1-BAD-LAST"
	_, _, err = fx.orch.FetchOrLoad(ctx, "AAPL.XNAS", earlier, later, &bad)
	assert.ErrorAs(t, err, &invalid)
}

func TestConcurrentRequestsCollapseToOneFetch(t *testing.T) {
	remote := &fakeRemote{delay: 50 * time.Millisecond}
	fx := newFixture(t, remote)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bars, _, err := fx.orch.FetchOrLoad(ctx, "AAPL.XNAS", start, end, nil)
			assert.NoError(t, err)
			assert.Len(t, bars, 60)
		}()
	}
	wg.Wait()

	barCalls, _ := remote.calls()
	assert.Equal(t, 1, barCalls, "duplicate concurrent fetches for one range must collapse")
}
