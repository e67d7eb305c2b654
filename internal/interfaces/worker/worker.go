package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
)

// Runner blocks consuming until ctx is canceled.  *kafka.Consumer satisfies
// it.
type Runner interface {
	Run(ctx context.Context) error
}

// Consumers runs several Runners, typically one per partition share of a
// consumer group, and stops them all when one fails.
type Consumers []Runner

// Run implements Runner.
func (cs Consumers) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range cs {
		c := c
		g.Go(func() error { return c.Run(gctx) })
	}
	return g.Wait()
}

// Server is the operational HTTP server.
type Server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// Worker runs the consumer and the probe server as one unit: when either
// fails, or ctx is canceled, both stop.
type Worker struct {
	consumer        Runner
	server          Server
	shutdownTimeout time.Duration
	logger          logging.Logger
}

// New creates a Worker.  server may be nil.
func New(consumer Runner, server Server, shutdownTimeout time.Duration, logger logging.Logger) *Worker {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &Worker{
		consumer:        consumer,
		server:          server,
		shutdownTimeout: shutdownTimeout,
		logger:          logging.OrNop(logger).Named("worker"),
	}
}

// Run blocks until ctx is canceled or a component fails.  A clean
// cancellation returns nil.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.consumer.Run(gctx)
	})

	if w.server != nil {
		g.Go(w.server.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
			defer cancel()
			return w.server.Shutdown(sctx)
		})
	}

	w.logger.Info("worker started")
	err := g.Wait()
	if err != nil {
		w.logger.Error("worker stopped with error", logging.Err(err))
		return err
	}
	w.logger.Info("worker stopped")
	return nil
}

//Personal.AI order the ending
