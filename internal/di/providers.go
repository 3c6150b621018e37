package di

import (
	"context"
	"fmt"
	"io"

	"FinRelay/internal/domain/repository"
	"FinRelay/internal/handler/api"
	internalrepo "FinRelay/internal/repository"
	"FinRelay/internal/service/alphavantage"
	"FinRelay/internal/service/credentials"
	"FinRelay/internal/service/groww"
	"FinRelay/internal/service/ratelimit"
	"FinRelay/internal/usecase"
	pkgch "FinRelay/pkg/clickhouse"
	"FinRelay/pkg/config"
	xhttp "FinRelay/pkg/http"
	"FinRelay/pkg/http/middleware"
	pkgkafka "FinRelay/pkg/kafka"
	applogger "FinRelay/pkg/logger"
	"FinRelay/pkg/metrics"
	"FinRelay/pkg/server"
)

// ProvideLogger creates the structured logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCredentials resolves secrets from config first, then the process environment.
func ProvideCredentials(cfg *config.Config) credentials.Source {
	if len(cfg.Secrets) == 0 {
		return credentials.Env()
	}
	return credentials.Chain(credentials.Static(cfg.Secrets), credentials.Env())
}

// ProvideUpstreamClient creates the outbound HTTP client.
func ProvideUpstreamClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithTimeout(cfg.Upstream.Timeout),
		xhttp.WithUserAgent(cfg.Upstream.UserAgent),
	)
}

// ProvideFetchPublisher creates the Kafka audit publisher when audit.backend is kafka.
func ProvideFetchPublisher(cfg *config.Config) (repository.Publisher, error) {
	if cfg.Audit.Backend != config.BackendKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(cfg.Kafka.Topic,
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatchTimeout(cfg.Kafka.BatchTimeout),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer), nil
}

// ProvideFetchStorage creates the ClickHouse audit table when audit.backend is clickhouse.
func ProvideFetchStorage(cfg *config.Config) (repository.Storage, error) {
	if cfg.Audit.Backend != config.BackendClickHouse {
		return nil, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	store, err := internalrepo.NewClickHouseStorage(client.DB(), ch.Database, ch.Table, client.Close)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ch.WriteTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideFetchAuditor creates the audit router.
func ProvideFetchAuditor(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.FetchAuditor {
	return usecase.NewFetchAuditor(pub, store, m, l, cfg.Audit.Backend, cfg.Audit.Timeout,
		usecase.WithAuditBuffer(cfg.Audit.BufferSize),
	)
}

// ProvideProviders builds every configured provider instance.
func ProvideProviders(cfg *config.Config) ([]usecase.Provider, error) {
	out := make([]usecase.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		var (
			p   usecase.Provider
			err error
		)
		switch pc.Kind {
		case config.KindGroww:
			p, err = groww.New(pc)
		case config.KindAlphaVantage:
			p, err = alphavantage.New(pc)
		default:
			err = fmt.Errorf("unknown provider kind: %s", pc.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ProvideRoutes binds each provider instance to a translator and its route.
func ProvideRoutes(
	cfg *config.Config,
	providers []usecase.Provider,
	client *xhttp.Client,
	creds credentials.Source,
	auditor *usecase.FetchAuditor,
	m repository.Metrics,
) []api.Route {
	routes := make([]api.Route, len(providers))
	for i, p := range providers {
		routes[i] = api.Route{
			Path: cfg.Providers[i].Route,
			Translator: usecase.NewTranslator(p, client, creds,
				usecase.WithRecorder(auditor),
				usecase.WithMetrics(m),
			),
		}
	}
	return routes
}

// ProvideProxyHandler creates the HTTP handler serving every route.
func ProvideProxyHandler(l *applogger.Logger, routes []api.Route) *api.ProxyEchoHandler {
	return api.NewProxyEchoHandler(l, routes)
}

// ProvideLimiter creates the caller rate limiter; nil when ratelimit.backend is none.
func ProvideLimiter(cfg *config.Config) (middleware.Limiter, error) {
	rl := cfg.RateLimit
	switch rl.Backend {
	case config.BackendMemory:
		return ratelimit.New(rl.Capacity, rl.RefillPerSec), nil
	case config.BackendRedis:
		r := cfg.Redis
		lim, err := ratelimit.NewRedisLimiter(
			ratelimit.WithRedisAddr(r.Host, r.Port),
			ratelimit.WithRedisAuth(r.Password, r.DB),
			ratelimit.WithPoolSize(r.PoolSize),
			ratelimit.WithPrefix(r.Prefix),
			ratelimit.WithWindow(rl.Limit, rl.Window),
		)
		if err != nil {
			return nil, fmt.Errorf("redis limiter: %w", err)
		}
		return lim, nil
	default:
		return nil, nil
	}
}

// ProvideHTTPServer creates the echo server with the configured middleware chain.
// /healthz reports the ClickHouse audit sink when it is configured.
func ProvideHTTPServer(
	cfg *config.Config,
	h *api.ProxyEchoHandler,
	lim middleware.Limiter,
	store repository.Storage,
	l *applogger.Logger,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithTrustedProxies(cfg.Server.TrustedProxies),
		xhttp.WithLogger(l),
	}
	if store != nil {
		opts = append(opts, xhttp.WithHealthCheck("audit_"+cfg.Audit.Backend, store.Health))
	}
	skip := []string{"/healthz"}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, cfg.Metrics.SlowThreshold))
		skip = append(skip, cfg.Metrics.Path)
	} else {
		opts = append(opts, xhttp.WithMetrics("", 0))
	}
	if lim != nil {
		opts = append(opts, xhttp.WithMiddleware(middleware.RateLimit(lim, l, skip...)))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp creates the application and registers resources released on shutdown.
func ProvideApp(
	srv *xhttp.Server,
	auditor *usecase.FetchAuditor,
	lim middleware.Limiter,
	l *applogger.Logger,
) *server.App {
	app := server.New(srv, l)
	app.AddCloser("audit", auditor)
	if c, ok := lim.(io.Closer); ok {
		app.AddCloser("ratelimit", c)
	}
	return app
}
