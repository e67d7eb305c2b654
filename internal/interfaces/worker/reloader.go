package worker

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/ClinLink/internal/application/annotation"
	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/ClinLink/internal/infrastructure/monitoring/prometheus"
)

// Reload results recorded on EngineReloadsTotal.
const (
	ReloadOK        = "ok"
	ReloadError     = "error"
	ReloadUnchanged = "unchanged"
)

// EngineLoader builds an engine for cfg.
type EngineLoader func(ctx context.Context, cfg *config.Config) (*annotation.Engine, error)

// EngineSwapper holds the live engine.  *annotation.Service satisfies it.
type EngineSwapper interface {
	Engine() *annotation.Engine
	SwapEngine(e *annotation.Engine) *annotation.Engine
}

// Reloader replaces the live engine when the configuration changes.  The
// replaced engine is closed after a grace period so that documents already
// running on it can finish.
type Reloader struct {
	swapper     EngineSwapper
	load        EngineLoader
	logger      logging.Logger
	metrics     *prom.AnnotationMetrics
	grace       time.Duration
	loadTimeout time.Duration

	mu      sync.Mutex
	pending map[*annotation.Engine]*time.Timer
	closed  bool

	closeEngine func(*annotation.Engine)
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

func WithReloaderLogger(l logging.Logger) ReloaderOption {
	return func(r *Reloader) { r.logger = l }
}

func WithReloaderMetrics(m *prom.AnnotationMetrics) ReloaderOption {
	return func(r *Reloader) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithGracePeriod sets how long a replaced engine stays open.
func WithGracePeriod(d time.Duration) ReloaderOption {
	return func(r *Reloader) { r.grace = d }
}

// WithLoadTimeout bounds a reload triggered by a file change.
func WithLoadTimeout(d time.Duration) ReloaderOption {
	return func(r *Reloader) { r.loadTimeout = d }
}

// NewReloader creates a Reloader over swapper.
func NewReloader(swapper EngineSwapper, load EngineLoader, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		swapper:     swapper,
		load:        load,
		metrics:     prom.NewNopMetrics(),
		grace:       time.Minute,
		loadTimeout: 5 * time.Minute,
		pending:     make(map[*annotation.Engine]*time.Timer),
		closeEngine: func(e *annotation.Engine) { _ = e.Close() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger).Named("worker.reloader")
	return r
}

// Reload loads a new engine for cfg unless the live engine was built from an
// identical configuration.  On failure the live engine is kept.
func (r *Reloader) Reload(ctx context.Context, cfg *config.Config) error {
	return r.reload(ctx, cfg, false)
}

// ForceReload loads a new engine even when the fingerprint is unchanged, for
// artifacts replaced in place.
func (r *Reloader) ForceReload(ctx context.Context, cfg *config.Config) error {
	return r.reload(ctx, cfg, true)
}

func (r *Reloader) reload(ctx context.Context, cfg *config.Config, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fp := cfg.Fingerprint()
	if cur := r.swapper.Engine(); !force && cur != nil && cur.ConfigFingerprint() == fp {
		r.metrics.EngineReloadsTotal.WithLabelValues(ReloadUnchanged).Inc()
		r.logger.Debug("configuration change does not affect the engine", logging.String("fingerprint", fp))
		return nil
	}

	start := time.Now()
	e, err := r.load(ctx, cfg)
	if err != nil {
		r.metrics.EngineReloadsTotal.WithLabelValues(ReloadError).Inc()
		r.logger.Error("engine reload failed, keeping current engine",
			logging.String("fingerprint", fp), logging.Err(err))
		return err
	}

	old := r.swapper.SwapEngine(e)
	r.metrics.EngineReloadsTotal.WithLabelValues(ReloadOK).Inc()
	r.logger.Info("engine reloaded",
		logging.String("fingerprint", fp),
		logging.Duration("duration", time.Since(start)))
	if old != nil && old != e {
		r.retire(old)
	}
	return nil
}

// retire schedules old to be closed after the grace period.  Callers hold mu.
func (r *Reloader) retire(old *annotation.Engine) {
	if r.closed || r.grace <= 0 {
		r.closeEngine(old)
		return
	}
	r.pending[old] = time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		_, ok := r.pending[old]
		delete(r.pending, old)
		r.mu.Unlock()
		if ok {
			r.closeEngine(old)
		}
	})
}

// OnChange is a config.Watch callback.
func (r *Reloader) OnChange(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), r.loadTimeout)
	defer cancel()
	_ = r.Reload(ctx, cfg)
}

// OnError is a config.Watch error callback.
func (r *Reloader) OnError(err error) {
	r.metrics.EngineReloadsTotal.WithLabelValues(ReloadError).Inc()
	r.logger.Error("configuration change rejected", logging.Err(err))
}

// Pending returns the number of replaced engines not yet closed.
func (r *Reloader) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close closes every replaced engine immediately.  Later reloads close the
// replaced engine without waiting.
func (r *Reloader) Close() {
	r.mu.Lock()
	r.closed = true
	retired := make([]*annotation.Engine, 0, len(r.pending))
	// An entry still in pending has not been closed by its timer.
	for e, t := range r.pending {
		t.Stop()
		retired = append(retired, e)
		delete(r.pending, e)
	}
	r.mu.Unlock()

	for _, e := range retired {
		r.closeEngine(e)
	}
}

//Personal.AI order the ending
