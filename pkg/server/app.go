package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	xhttp "FinRelay/pkg/http"
	applogger "FinRelay/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	httpServer *xhttp.Server
	logger     *applogger.Logger
	closers    map[string]io.Closer
	order      []string
}

// New creates a new App. Resources added with AddCloser are released after the
// HTTP server has drained, in registration order.
func New(httpServer *xhttp.Server, l *applogger.Logger) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		httpServer: httpServer,
		logger:     l,
		closers:    make(map[string]io.Closer),
	}
}

// AddCloser registers a resource to close on shutdown. Nil closers are ignored.
func (a *App) AddCloser(name string, c io.Closer) {
	if c == nil {
		return
	}
	if _, ok := a.closers[name]; !ok {
		a.order = append(a.order, name)
	}
	a.closers[name] = c
}

// HTTPServer returns the underlying server.
func (a *App) HTTPServer() *xhttp.Server {
	return a.httpServer
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown drains the HTTP server, then closes the audit sinks and limiter.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}

	for _, name := range a.order {
		if err := a.closers[name].Close(); err != nil {
			a.logger.Warn("close error", applogger.String("resource", name), applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return firstErr
}
