package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"BarPull/internal/handler/api"
	"BarPull/internal/index"
	"BarPull/internal/usecase"
	"BarPull/pkg/config"
	xhttp "BarPull/pkg/http"
	xlogger "BarPull/pkg/logger"
	"BarPull/pkg/util"
)

// App encapsulates the application lifecycle: rebuild the availability
// index, start the inspection HTTP server, run the optional preheat, then
// block until interrupted.
type App struct {
	cfg          *config.Config
	logger       *xlogger.Logger
	orchestrator *usecase.Orchestrator
	idx          *index.AvailabilityIndex
	handler      *api.DataEchoHandler
	httpServer   *xhttp.Server

	// Scanner feeding the index rebuild; the column store in production.
	scanner index.Scanner
}

// New creates a new App instance with all dependencies injected.
func New(
	cfg *config.Config,
	logger *xlogger.Logger,
	orchestrator *usecase.Orchestrator,
	idx *index.AvailabilityIndex,
	scanner index.Scanner,
	handler *api.DataEchoHandler,
) *App {
	return &App{
		cfg:          cfg,
		logger:       logger,
		orchestrator: orchestrator,
		idx:          idx,
		scanner:      scanner,
		handler:      handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The index is derived state; rebuild it once from disk before serving.
	if err := a.idx.Rebuild(ctx, a.scanner); err != nil {
		return err
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}

	if len(a.cfg.Preheat.Targets) > 0 {
		go a.preheat(ctx)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	a.logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return a.httpServer.Stop(shutdownCtx)
}

func (a *App) preheat(ctx context.Context) {
	targets := make([]usecase.PreheatTarget, 0, len(a.cfg.Preheat.Targets))
	for _, t := range a.cfg.Preheat.Targets {
		start, ok := util.ParseTime(t.Start)
		if !ok {
			a.logger.Warn("preheat target has unparsable start", xlogger.String("instrument", t.Instrument))
			continue
		}
		end, ok := util.ParseTime(t.End)
		if !ok {
			a.logger.Warn("preheat target has unparsable end", xlogger.String("instrument", t.Instrument))
			continue
		}
		targets = append(targets, usecase.PreheatTarget{
			InstrumentID:  t.Instrument,
			TimeframeSpec: t.Timeframe,
			Start:         start,
			End:           end,
		})
	}
	a.logger.Info("preheating cached series", xlogger.Int("targets", len(targets)))
	a.orchestrator.Preheat(ctx, targets, a.cfg.Preheat.Concurrency)
}
