package repository

//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

import (
	"context"

	"FinRelay/internal/domain/models"
)

// Publisher ships fetch events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, ev *models.FetchEvent) error
	Close() error
}

// Storage persists fetch events.
type Storage interface {
	Init(ctx context.Context) error // ensure tables
	Store(ctx context.Context, ev *models.FetchEvent) error
	Health(ctx context.Context) error
	Close() error
}

// FetchRecorder receives every upstream call outcome. Implementations must not fail the request.
type FetchRecorder interface {
	Record(ctx context.Context, ev *models.FetchEvent)
}

type Metrics interface {
	RecordUpstream(provider, endpoint, outcome string, seconds float64)
	RecordError(provider, kind string)
	RecordAudit(backend, result string)
}
