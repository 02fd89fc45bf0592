package usecase

import (
	"context"
	"time"

	xlogger "BarPull/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// PreheatTarget names one series to warm before the first backtest run.
type PreheatTarget struct {
	InstrumentID  string
	TimeframeSpec string
	Start         time.Time
	End           time.Time
}

// Preheat pulls a list of series through FetchOrLoad concurrently. Already
// covered ranges cost nothing; misses go through the shared rate limiter, so
// warming cannot starve interactive requests of quota beyond its own calls.
// Failures are logged per target and do not stop the rest of the warm-up.
func (o *Orchestrator) Preheat(ctx context.Context, targets []PreheatTarget, concurrency int) {
	if concurrency < 1 {
		concurrency = 2
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			tf := t.TimeframeSpec
			var explicit *string
			if tf != "" {
				explicit = &tf
			}
			if _, _, err := o.FetchOrLoad(gctx, t.InstrumentID, t.Start, t.End, explicit); err != nil {
				if o.logger != nil {
					o.logger.Warn("preheat target failed",
						xlogger.String("instrument", t.InstrumentID),
						xlogger.Error(err),
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}
