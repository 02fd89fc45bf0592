//go:build wireinject
// +build wireinject

package di

import (
	"BarPull/pkg/config"
	"BarPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Storage and derived index
		ProvideStore,
		ProvideScanner,
		ProvideIndex,

		// Remote access policies
		ProvideLimiter,
		ProvideRetryPolicy,
		ProvideRemoteClient,

		// Use cases
		ProvideJournal,
		ProvideOrchestrator,

		// Inspection surface
		ProvideHandler,

		ProvideApp,
	)
	return &server.App{}, nil
}
