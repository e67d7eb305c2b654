// Command clinlink-worker consumes clinical documents from Kafka, annotates
// them and publishes the linked concepts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/ClinLink/internal/application/annotation"
	"github.com/turtacn/ClinLink/internal/config"
	redisinfra "github.com/turtacn/ClinLink/internal/infrastructure/database/redis"
	"github.com/turtacn/ClinLink/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/ClinLink/internal/infrastructure/monitoring/prometheus"
	minioinfra "github.com/turtacn/ClinLink/internal/infrastructure/storage/minio"
	httpserver "github.com/turtacn/ClinLink/internal/interfaces/http"
	"github.com/turtacn/ClinLink/internal/interfaces/http/handlers"
	"github.com/turtacn/ClinLink/internal/interfaces/http/middleware"
	"github.com/turtacn/ClinLink/internal/interfaces/worker"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const defaultWorkerConfigPath = "configs/clinlink.yaml"

func main() {
	configPath := flag.String("config", envOr("CLINLINK_CONFIG", defaultWorkerConfigPath), "path to configuration file")
	consumers := flag.Int("consumers", 0, "number of consumer group members in this process (default: worker.concurrency)")
	healthAddr := flag.String("health-addr", "", "override worker.health_addr")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("clinlink-worker %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return
	}

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.ValidateWorker()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *healthAddr != "" {
		cfg.Worker.HealthAddr = *healthAddr
	}
	if *consumers <= 0 {
		*consumers = cfg.Worker.Concurrency
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *configPath, *consumers, logger); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, numConsumers int, logger logging.Logger) error {
	logger.Info("starting clinlink worker",
		logging.String("version", version),
		logging.String("input_topic", cfg.Kafka.InputTopic),
		logging.String("output_topic", cfg.Kafka.OutputTopic),
		logging.Int("consumers", numConsumers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, metrics, err := initMetrics(cfg, logger)
	if err != nil {
		return err
	}

	infra, err := initInfrastructure(cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	loader := func(ctx context.Context, c *config.Config) (*annotation.Engine, error) {
		opts := []annotation.LoadOption{
			annotation.WithLoadLogger(logger),
			annotation.WithEngineOptions(annotation.WithLogger(logger)),
		}
		if infra.artifacts != nil {
			opts = append(opts, annotation.WithResolver(infra.artifacts))
		}
		return annotation.LoadEngine(ctx, c, opts...)
	}

	engine, err := loader(ctx, cfg)
	if err != nil {
		return err
	}

	svcOpts := []annotation.ServiceOption{
		annotation.WithConcurrency(cfg.Worker.Concurrency),
		annotation.WithDocumentTimeout(cfg.Worker.DocumentTimeout),
		annotation.WithServiceLogger(logger),
		annotation.WithServiceMetrics(metrics),
	}
	if infra.cache != nil {
		svcOpts = append(svcOpts, annotation.WithCache(infra.cache, cfg.Redis.TTL))
	}
	svc := annotation.NewService(engine, svcOpts...)
	defer func() {
		if e := svc.SwapEngine(nil); e != nil {
			_ = e.Close()
		}
	}()

	// Replaced engines stay open for two document timeouts so in-flight
	// documents finish on the vectors they started with.
	reloader := worker.NewReloader(svc, loader,
		worker.WithReloaderLogger(logger),
		worker.WithReloaderMetrics(metrics),
		worker.WithGracePeriod(2*cfg.Worker.DocumentTimeout))
	defer reloader.Close()
	config.Watch(configPath, reloader.OnChange, reloader.OnError)
	go forceReloadOnHangup(ctx, configPath, reloader, logger)

	if cfg.Kafka.AutoCreateTopics {
		ensureTopics(ctx, cfg, logger)
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	handler := worker.NewDocumentHandler(svc, producer, cfg.Kafka.OutputTopic, logger)
	group := make(worker.Consumers, 0, numConsumers)
	for i := 0; i < numConsumers; i++ {
		c, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(cfg.Kafka),
			kafka.WithConsumerLogger(logger.With(logging.Int("member", i))),
			kafka.WithConsumerMetrics(metrics),
			kafka.WithDeadLetter(producer))
		if err != nil {
			return err
		}
		defer c.Close()
		c.Subscribe(cfg.Kafka.InputTopic, handler.Handle)
		group = append(group, c)
	}

	checkers := []handlers.HealthChecker{
		handlers.CheckerFunc{ComponentName: "kafka", Fn: func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		}},
	}
	if infra.minio != nil {
		checkers = append(checkers, handlers.CheckerFunc{ComponentName: "minio", Fn: func(ctx context.Context) error {
			_, err := infra.minio.HealthCheck(ctx)
			return err
		}})
	}
	routerCfg := httpserver.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(version, svc, checkers...),
		Logger:        logger,
		Logging:       middleware.DefaultLoggingConfig(),
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsCollector = collector
	}
	server := httpserver.NewServer(cfg.Worker.HealthAddr, httpserver.NewRouter(routerCfg), logger)

	return worker.New(group, server, cfg.Worker.ShutdownTimeout, logger).Run(ctx)
}

func initMetrics(cfg *config.Config, logger logging.Logger) (prom.MetricsCollector, *prom.AnnotationMetrics, error) {
	if !cfg.Metrics.Enabled {
		return prom.NewNopCollector(), prom.NewNopMetrics(), nil
	}
	collector, err := prom.NewMetricsCollector(prom.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		Subsystem:            cfg.Metrics.Subsystem,
		EnableGoMetrics:      cfg.Metrics.EnableGoMetrics,
		EnableProcessMetrics: cfg.Metrics.EnableProcessMetrics,
		ConstLabels:          map[string]string{"version": version},
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return collector, prom.NewAnnotationMetrics(collector), nil
}

// workerInfrastructure holds the optional backing services.
type workerInfrastructure struct {
	redis     *redisinfra.Client
	cache     redisinfra.Cache
	minio     *minioinfra.MinIOClient
	artifacts *minioinfra.ArtifactStore
	logger    logging.Logger
}

func initInfrastructure(cfg *config.Config, metrics *prom.AnnotationMetrics, logger logging.Logger) (*workerInfrastructure, error) {
	infra := &workerInfrastructure{logger: logger}

	if cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		infra.redis = client
		var opts []redisinfra.CacheOption
		if cfg.Redis.KeyPrefix != "" {
			opts = append(opts, redisinfra.WithPrefix(cfg.Redis.KeyPrefix))
		}
		if cfg.Redis.TTL > 0 {
			opts = append(opts, redisinfra.WithDefaultTTL(cfg.Redis.TTL))
		}
		infra.cache = redisinfra.NewRedisCache(client, logger, opts...)
	}

	a := cfg.Artifacts
	if annotation.IsRemote(a.ConceptStorePath) || annotation.IsRemote(a.VocabularyPath) || annotation.IsRemote(a.VectorBlockPath) {
		client, err := minioinfra.NewMinIOClient(cfg.MinIO, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.minio = client
		infra.artifacts = minioinfra.NewArtifactStore(client, a.CacheDir,
			minioinfra.WithArtifactMetrics(metrics),
			minioinfra.WithArtifactLogger(logger))
	}
	return infra, nil
}

func (w *workerInfrastructure) Close() {
	if w.redis != nil {
		if err := w.redis.Close(); err != nil {
			w.logger.Warn("redis close failed", logging.Err(err))
		}
	}
	if w.minio != nil {
		if err := w.minio.Close(); err != nil {
			w.logger.Warn("minio close failed", logging.Err(err))
		}
	}
}

// ensureTopics creates the worker's topics.  Failure is logged, not fatal:
// in most deployments the topics are provisioned separately.
func ensureTopics(ctx context.Context, cfg *config.Config, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Warn("topic manager unavailable, skipping topic creation", logging.Err(err))
		return
	}
	defer tm.Close()

	tctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := tm.EnsureTopics(tctx, kafka.DefaultTopics(cfg.Kafka)); err != nil {
		logger.Warn("topic creation failed", logging.Err(err))
	}
}

// forceReloadOnHangup reloads the engine on SIGHUP even when the
// configuration is unchanged, for artifacts replaced in place.
func forceReloadOnHangup(ctx context.Context, configPath string, r *worker.Reloader, logger logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load(configPath)
			if err != nil {
				r.OnError(err)
				continue
			}
			logger.Info("SIGHUP received, reloading engine")
			_ = r.ForceReload(ctx, cfg)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

//Personal.AI order the ending
