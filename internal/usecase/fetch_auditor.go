package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinRelay/internal/domain/models"
	drepo "FinRelay/internal/domain/repository"
	"FinRelay/pkg/config"
	"FinRelay/pkg/logger"
)

const defaultAuditBuffer = 1024

// FetchAuditor queues fetch events and writes them to the configured audit
// backend from a single background worker. Record never blocks; events that do
// not fit in the buffer are dropped and counted. Sink failures are logged and
// counted; the caller never sees them.
type FetchAuditor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	log     *logger.Logger
	backend string
	timeout time.Duration
	bufSize int

	mu     sync.RWMutex
	closed bool
	events chan *models.FetchEvent
	done   chan struct{}
	once   sync.Once
}

// AuditorOption configures FetchAuditor.
type AuditorOption func(*FetchAuditor)

// WithAuditBuffer sets how many events may wait for the sink.
func WithAuditBuffer(n int) AuditorOption {
	return func(a *FetchAuditor) {
		if n > 0 {
			a.bufSize = n
		}
	}
}

// NewFetchAuditor creates a new FetchAuditor and starts its worker unless the backend is none.
func NewFetchAuditor(
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	log *logger.Logger,
	backend string,
	timeout time.Duration,
	opts ...AuditorOption,
) *FetchAuditor {
	if log == nil {
		log = logger.Nop()
	}
	a := &FetchAuditor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		log:     log,
		backend: backend,
		timeout: timeout,
		bufSize: defaultAuditBuffer,
	}
	for _, opt := range opts {
		opt(a)
	}
	if !a.enabled() {
		return a
	}
	a.events = make(chan *models.FetchEvent, a.bufSize)
	a.done = make(chan struct{})
	go a.run()
	return a
}

func (a *FetchAuditor) enabled() bool {
	return a.backend != config.BackendNone && a.backend != ""
}

// Record implements drepo.FetchRecorder. The event outlives the request context.
func (a *FetchAuditor) Record(_ context.Context, ev *models.FetchEvent) {
	if ev == nil || !a.enabled() {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.observe("dropped")
		return
	}
	select {
	case a.events <- ev:
	default:
		a.observe("dropped")
		a.log.Warn("audit buffer full, dropping event",
			logger.String("backend", a.backend),
			logger.String("event_id", ev.ID),
			logger.Int("buffer", a.bufSize),
		)
	}
}

func (a *FetchAuditor) run() {
	defer close(a.done)
	for ev := range a.events {
		a.write(ev)
	}
}

func (a *FetchAuditor) write(ev *models.FetchEvent) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if err := a.Process(ctx, ev); err != nil {
		a.log.Warn("audit sink failed",
			logger.String("backend", a.backend),
			logger.String("event_id", ev.ID),
			logger.String("provider", ev.Provider),
			logger.Error(err),
		)
	}
}

// Process writes a single event to the configured backend.
func (a *FetchAuditor) Process(ctx context.Context, ev *models.FetchEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}

	var err error
	switch a.backend {
	case config.BackendKafka:
		if a.pub == nil {
			err = fmt.Errorf("kafka publisher not configured")
			break
		}
		err = a.pub.Publish(ctx, ev)
	case config.BackendClickHouse:
		if a.store == nil {
			err = fmt.Errorf("clickhouse storage not configured")
			break
		}
		err = a.store.Store(ctx, ev)
	default:
		err = fmt.Errorf("unknown backend: %s", a.backend)
	}

	if err != nil {
		a.observe("error")
		return fmt.Errorf("audit fetch: %w", err)
	}
	a.observe("ok")
	return nil
}

func (a *FetchAuditor) observe(result string) {
	if a.metrics != nil {
		a.metrics.RecordAudit(a.backend, result)
	}
}

// Close stops accepting events, writes what is still queued, then closes the sinks.
func (a *FetchAuditor) Close() error {
	var errs []error
	a.once.Do(func() {
		if a.events != nil {
			a.mu.Lock()
			a.closed = true
			close(a.events)
			a.mu.Unlock()
			<-a.done
		}
		if a.pub != nil {
			if err := a.pub.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher: %w", err))
			}
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close storage: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

var _ drepo.FetchRecorder = (*FetchAuditor)(nil)
