//go:build wireinject
// +build wireinject

package di

import (
	"FinRelay/pkg/config"
	"FinRelay/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideCredentials,

		// Infrastructure clients
		ProvideUpstreamClient,
		ProvideFetchPublisher,
		ProvideFetchStorage,
		ProvideLimiter,

		// Use cases
		ProvideFetchAuditor,
		ProvideProviders,
		ProvideRoutes,

		// Transport
		ProvideProxyHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
