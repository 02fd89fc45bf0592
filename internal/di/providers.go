package di

import (
	"fmt"

	"BarPull/internal/domain/repository"
	"BarPull/internal/handler/api"
	"BarPull/internal/index"
	"BarPull/internal/service/ratelimit"
	"BarPull/internal/service/retry"
	"BarPull/internal/service/simdata"
	"BarPull/internal/store/column"
	"BarPull/internal/usecase"
	"BarPull/pkg/config"
	xlogger "BarPull/pkg/logger"
	"BarPull/pkg/metrics"
	"BarPull/pkg/server"
)

// ProvideLogger creates the process logger from config.
func ProvideLogger(cfg *config.Config) (*xlogger.Logger, error) {
	l, err := xlogger.New(&xlogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideStore creates the column store rooted at the configured directory.
func ProvideStore(cfg *config.Config, l *xlogger.Logger) (*column.Store, error) {
	return column.NewStore(cfg.Store.Root, l)
}

// ProvideIndex creates the (empty) availability index; App.Run rebuilds it.
func ProvideIndex(l *xlogger.Logger) *index.AvailabilityIndex {
	return index.New(l)
}

// ProvideLimiter creates the shared provider rate limiter.
func ProvideLimiter(cfg *config.Config) (*ratelimit.Limiter, error) {
	return ratelimit.New(cfg.Provider.RequestLimit, cfg.Provider.Window, cfg.Provider.SafetyFraction)
}

// ProvideRetryPolicy creates the remote-fetch retry policy.
func ProvideRetryPolicy(cfg *config.Config, l *xlogger.Logger) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BaseDelay:   cfg.Fetch.BaseDelay,
		Multiplier:  2,
		Logger:      l,
	}
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRemoteClient creates the remote data client. The simulation client
// ships by default; a real provider client implements the same interface.
func ProvideRemoteClient() repository.RemoteDataClient {
	return simdata.New()
}

// ProvideJournal creates the fetch-request journal.
func ProvideJournal() *usecase.RequestJournal {
	return usecase.NewRequestJournal()
}

// ProvideOrchestrator wires the fetch orchestrator.
func ProvideOrchestrator(
	cfg *config.Config,
	store *column.Store,
	remote repository.RemoteDataClient,
	idx *index.AvailabilityIndex,
	limiter *ratelimit.Limiter,
	policy retry.Policy,
	m repository.Metrics,
	l *xlogger.Logger,
	journal *usecase.RequestJournal,
) (*usecase.Orchestrator, error) {
	return usecase.NewOrchestrator(usecase.OrchestratorConfig{
		Store:          store,
		Remote:         remote,
		Index:          idx,
		Limiter:        limiter,
		Retry:          policy,
		Metrics:        m,
		Logger:         l,
		Journal:        journal,
		DescriptorTTL:  cfg.Fetch.DescriptorTTL,
		ConnectTimeout: cfg.Provider.ConnectTimeout,
		AttemptTimeout: cfg.Fetch.AttemptTimeout,
	})
}

// ProvideImporter wires the bulk import path.
func ProvideImporter(store *column.Store, idx *index.AvailabilityIndex, l *xlogger.Logger) *usecase.Importer {
	return usecase.NewImporter(store, idx, l)
}

// ProvideHandler wires the read-only inspection API.
func ProvideHandler(l *xlogger.Logger, idx *index.AvailabilityIndex, store *column.Store, journal *usecase.RequestJournal) *api.DataEchoHandler {
	return api.NewDataEchoHandler(l, idx, store, journal)
}

// ProvideScanner adapts the column store for index rebuilds.
func ProvideScanner(store *column.Store) index.Scanner {
	return store
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *xlogger.Logger,
	orchestrator *usecase.Orchestrator,
	idx *index.AvailabilityIndex,
	scanner index.Scanner,
	handler *api.DataEchoHandler,
) *server.App {
	return server.New(cfg, l, orchestrator, idx, scanner, handler)
}
