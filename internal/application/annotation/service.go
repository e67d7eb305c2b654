package annotation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/ClinLink/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinLink/pkg/errors"
	"github.com/turtacn/ClinLink/pkg/types/common"
)

// CacheName labels result cache metrics.
const CacheName = "annotation"

// Cache stores annotation results.  A miss must be reported with an error
// for which errors.IsNotFound holds.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Pinger is implemented by caches that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheKey derives the result cache key for text annotated by an engine with
// the given fingerprint.
func CacheKey(fingerprint, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "annotation:" + fingerprint + ":" + hex.EncodeToString(sum[:])
}

// BatchItem is the outcome of one document in AnnotateBatch.
type BatchItem struct {
	Result *common.AnnotationResult
	Err    error
}

// Service annotates documents with the current engine.  The engine can be
// replaced at any time; in-flight documents finish on the engine they
// started with.
type Service struct {
	engine atomic.Pointer[Engine]

	cache       Cache
	ttl         time.Duration
	concurrency int
	docTimeout  time.Duration

	group   singleflight.Group
	metrics *prom.AnnotationMetrics
	logger  logging.Logger
}

// ServiceOption configures NewService.
type ServiceOption func(*Service)

// WithCache enables result caching with the given TTL.
func WithCache(c Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithConcurrency bounds AnnotateBatch parallelism.
func WithConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDocumentTimeout bounds the time spent on one document.  Zero means no
// limit beyond the caller's context.
func WithDocumentTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.docTimeout = d }
}

func WithServiceLogger(l logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func WithServiceMetrics(m *prom.AnnotationMetrics) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewService creates a Service.  engine may be nil until the first
// SwapEngine.
func NewService(engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		concurrency: 1,
		metrics:     prom.NewNopMetrics(),
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("annotation")
	if engine != nil {
		s.SwapEngine(engine)
	}
	return s
}

// Engine returns the current engine, or nil.
func (s *Service) Engine() *Engine {
	return s.engine.Load()
}

// SwapEngine installs e and returns the engine it replaced.  The caller owns
// the returned engine and should Close it once in-flight work has drained.
func (s *Service) SwapEngine(e *Engine) *Engine {
	old := s.engine.Swap(e)
	if e != nil {
		prom.SetEngineInfo(s.metrics, e.Fingerprint())
		s.logger.Info("engine installed", logging.String("fingerprint", e.Fingerprint()))
	}
	return old
}

// Annotate annotates doc, assigning it an ID when it has none.  Identical
// texts submitted concurrently are annotated once.
func (s *Service) Annotate(ctx context.Context, doc *common.Document) (*common.AnnotationResult, error) {
	start := time.Now()
	res, err := s.annotate(ctx, doc)
	prom.RecordDocument(s.metrics, documentStatus(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	res.DurationMillis = float64(time.Since(start).Microseconds()) / 1000
	return res, nil
}

func (s *Service) annotate(ctx context.Context, doc *common.Document) (*common.AnnotationResult, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	id := doc.ID
	if id == "" {
		id = common.NewID()
		doc.ID = id
	}
	engine := s.Engine()
	if engine == nil {
		return nil, errors.New(errors.ErrCodeEngineNotReady, "no annotation engine loaded")
	}

	s.metrics.InFlightDocuments.WithLabelValues().Inc()
	defer s.metrics.InFlightDocuments.WithLabelValues().Dec()

	logger := s.logger.With(logging.DocumentID(string(id)))
	key := CacheKey(engine.Fingerprint(), doc.Text)
	if cached, ok := s.lookup(ctx, key, logger); ok {
		cached.DocumentID = id
		cached.Cached = true
		return cached, nil
	}

	// The shared call outlives any single caller; each caller stops waiting
	// when its own context ends.
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		dctx, cancel := s.documentContext(detached)
		defer cancel()
		a, err := engine.Annotate(dctx, doc.Text)
		if err != nil {
			return nil, err
		}
		res := engine.Result("", a)
		s.store(detached, key, res, logger)
		return res, nil
	})
	var (
		v      interface{}
		err    error
		shared bool
	)
	select {
	case r := <-ch:
		v, err, shared = r.Val, r.Err, r.Shared
	case <-ctx.Done():
		err = canceled(ctx)
	}
	if err != nil {
		logger.Warn("annotation failed", logging.Err(err))
		return nil, err
	}
	out := *v.(*common.AnnotationResult)
	out.DocumentID = id
	logger.Debug("document annotated",
		logging.Int("entities", len(out.Entities)),
		logging.Bool("shared", shared))
	return &out, nil
}

func (s *Service) documentContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.docTimeout > 0 {
		return context.WithTimeout(ctx, s.docTimeout)
	}
	return context.WithCancel(ctx)
}

// lookup consults the cache.  Cache failures are logged and treated as a
// miss.
func (s *Service) lookup(ctx context.Context, key string, logger logging.Logger) (*common.AnnotationResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	var res common.AnnotationResult
	err := s.cache.Get(ctx, key, &res)
	switch {
	case err == nil:
		prom.RecordCacheAccess(s.metrics, CacheName, true)
		return &res, true
	case errors.IsNotFound(err):
		prom.RecordCacheAccess(s.metrics, CacheName, false)
	default:
		s.metrics.CacheErrorsTotal.WithLabelValues(CacheName, "get").Inc()
		logger.Warn("cache read failed", logging.Err(err))
	}
	return nil, false
}

func (s *Service) store(ctx context.Context, key string, res *common.AnnotationResult, logger logging.Logger) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, res, s.ttl); err != nil {
		s.metrics.CacheErrorsTotal.WithLabelValues(CacheName, "set").Inc()
		logger.Warn("cache write failed", logging.Err(err))
	}
}

// AnnotateBatch annotates docs with bounded parallelism.  A failing
// document does not stop the others; items are returned in input order.
func (s *Service) AnnotateBatch(ctx context.Context, docs []*common.Document) []BatchItem {
	items := make([]BatchItem, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			res, err := s.Annotate(gctx, doc)
			items[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// Health reports the engine and, when it supports Ping, the cache.  A
// failing cache degrades the service but does not take it down.
func (s *Service) Health(ctx context.Context) common.HealthReport {
	components := make([]common.ComponentHealth, 0, 2)

	engine := common.ComponentHealth{Name: "engine", Status: common.HealthUp}
	if e := s.Engine(); e == nil {
		engine.Status = common.HealthDown
		engine.Message = "no engine loaded"
	} else {
		engine.Message = e.Fingerprint()
	}
	components = append(components, engine)
	prom.SetHealth(s.metrics, engine.Name, engine.Status == common.HealthUp)

	if p, ok := s.cache.(Pinger); ok {
		ch := common.ComponentHealth{Name: "cache", Status: common.HealthUp}
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			ch.Status = common.HealthDegraded
			ch.Message = err.Error()
		}
		ch.Latency = time.Since(start)
		components = append(components, ch)
		prom.SetHealth(s.metrics, ch.Name, ch.Status == common.HealthUp)
	}

	return common.NewHealthReport(components...)
}

func documentStatus(err error) string {
	switch {
	case err == nil:
		return prom.StatusOK
	case errors.IsCode(err, errors.ErrCodeCanceled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return prom.StatusCanceled
	default:
		return prom.StatusError
	}
}
