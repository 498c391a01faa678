package main

// @title           Corpus Core API
// @version         1.0
// @description     Availability-gated feature extraction over crawled and uploaded text corpora.

// @contact.name   Corpus Core OSS
// @contact.url    https://github.com/custodia-labs/corpus-core/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/corpus-core/docs"
	"github.com/custodia-labs/corpus-core/internal/adapters/driven/artifacts"
	kafkaout "github.com/custodia-labs/corpus-core/internal/adapters/driven/kafka"
	"github.com/custodia-labs/corpus-core/internal/adapters/driven/postgres"
	"github.com/custodia-labs/corpus-core/internal/adapters/driven/prometheus"
	postgresqueue "github.com/custodia-labs/corpus-core/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/corpus-core/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/corpus-core/internal/adapters/driven/redis"
	"github.com/custodia-labs/corpus-core/internal/adapters/driving/http"
	kafkain "github.com/custodia-labs/corpus-core/internal/adapters/driving/kafka"
	"github.com/custodia-labs/corpus-core/internal/config"
	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/core/services"
	"github.com/custodia-labs/corpus-core/internal/logging"
	"github.com/custodia-labs/corpus-core/internal/metrics"
	"github.com/custodia-labs/corpus-core/internal/worker"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// Command line arg wins over RUN_MODE
	if len(os.Args) > 1 {
		cfg.Mode = os.Args[1]
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log.Printf("corpus-core %s starting in %s mode", version, cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("corpus-core stopped: %v", err)
	}
	log.Println("corpus-core stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var m *metrics.Metrics
	if cfg.Metrics.RuntimeCollectors {
		m = metrics.NewDefault()
	} else {
		m = metrics.New(prom.NewRegistry())
	}

	// ===== PostgreSQL =====
	log.Println("Connecting to PostgreSQL...")
	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.Postgres.URL,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
		ConnectAttempts: cfg.Postgres.ConnectAttempts,
		ConnectBackoff:  cfg.Postgres.ConnectBackoff,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Postgres.InitSchema {
		if err := db.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	log.Println("PostgreSQL connected")

	// ===== Redis (optional) =====
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	// ===== Task Queue (Redis if available, otherwise PostgreSQL) =====
	var taskQueue driven.TaskQueue
	if redisClient != nil {
		hostname, _ := os.Hostname()
		q, err := redisqueue.NewQueue(ctx, redisClient, redisqueue.Options{
			Prefix:       cfg.Redis.Prefix,
			ConsumerName: fmt.Sprintf("worker-%s-%d", hostname, os.Getpid()),
		})
		if err != nil {
			return fmt.Errorf("create task queue: %w", err)
		}
		taskQueue = q
		log.Println("Using Redis task queue")
	} else {
		taskQueue = postgresqueue.NewQueue(db.DB)
		log.Println("Using PostgreSQL task queue")
	}
	defer taskQueue.Close()

	// ===== Distributed Lock (Redis if available, otherwise PostgreSQL advisory locks) =====
	var lock driven.DistributedLock
	if redisClient != nil {
		lock = redisadapter.NewLockWithPrefix(redisClient, cfg.Redis.Prefix+"lock:")
		log.Println("Using Redis distributed lock")
	} else {
		lock = postgres.NewAdvisoryLock(db)
		log.Println("Using PostgreSQL advisory lock")
	}

	// ===== Kafka, Prometheus and artifacts =====
	publisher, err := kafkaout.NewPublisher(kafkaout.NewWriter(cfg.Kafka.Brokers), kafkaout.Topics{
		ComputeMatrices:   cfg.Kafka.Topics.ComputeMatrices,
		FactorizeMatrices: cfg.Kafka.Topics.FactorizeMatrices,
		IntegrityCheck:    cfg.Kafka.Topics.IntegrityCheck,
		Crawl:             cfg.Kafka.Topics.Crawl,
	}, logger)
	if err != nil {
		return fmt.Errorf("create kafka publisher: %w", err)
	}
	defer publisher.Close()

	crawlMetrics, err := prometheus.NewCrawlMetrics(prometheus.Config{
		Address: cfg.Prometheus.URL,
		Names: prometheus.MetricNames{
			LastActivity: cfg.Prometheus.LastActivityMetric,
			Successes:    cfg.Prometheus.SuccessMetric,
			Exceptions:   cfg.Prometheus.ExceptionMetric,
			CorpusLabel:  cfg.Prometheus.CorpusLabel,
		},
		Timeout: cfg.Prometheus.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create crawl metrics source: %w", err)
	}

	artifactStore, err := artifacts.NewFileStore(cfg.Storage.DataRoot, logger)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	// ===== Stores =====
	corpora := postgres.NewCorpusStore(db)
	schedulerStore := postgres.NewSchedulerStore(db)

	// ===== Services =====
	coordinator := cfg.Coordinator.Domain()

	integrity := services.NewIntegrityPipeline(services.IntegrityPipelineConfig{
		Corpora:   corpora,
		Artifacts: artifactStore,
		Worker:    publisher,
		Metrics:   m,
		Logger:    logger,
	})
	guard := services.NewAvailabilityGuard(services.AvailabilityGuardConfig{
		Corpora:        corpora,
		Artifacts:      artifactStore,
		StaleLockAfter: coordinator.StaleLockAfter,
		Metrics:        m,
		Logger:         logger,
	})
	dispatcher := services.NewComputeDispatcher(services.ComputeDispatcherConfig{
		Corpora:   corpora,
		Artifacts: artifactStore,
		Worker:    publisher,
		Lock:      lock,
		LockTTL:   coordinator.DispatchLockTTL,
		Metrics:   m,
		Logger:    logger,
	})
	corpusService := services.NewCorpusService(services.CorpusServiceConfig{
		Corpora:    corpora,
		Artifacts:  artifactStore,
		TaskQueue:  taskQueue,
		CrawlDepth: coordinator.DefaultCrawlDepth,
		Logger:     logger,
	})
	featureService := services.NewFeatureService(services.FeatureServiceConfig{
		Corpora:    corpora,
		Artifacts:  artifactStore,
		Guard:      guard,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	callbackService := services.NewCallbackService(corpora, integrity, m, logger)
	monitor := services.NewCrawlMonitor(services.CrawlMonitorConfig{
		Corpora:     corpora,
		Crawler:     publisher,
		Metrics:     crawlMetrics,
		TaskQueue:   taskQueue,
		Integrity:   integrity,
		Coordinator: coordinator,
		Collectors:  m,
		Logger:      logger,
	})
	remover := services.NewDocumentRemover(corpora, artifactStore, integrity, logger)

	scheduler := services.NewScheduler(services.SchedulerConfig{
		Store:        schedulerStore,
		TaskQueue:    taskQueue,
		Lock:         lock,
		Logger:       logger,
		PollInterval: cfg.Scheduler.PollInterval,
		LockRequired: cfg.Scheduler.LockRequired,
	})
	if err := scheduler.EnsureSchedules(ctx, domain.DefaultSchedules(cfg.Scheduler.PurgeInterval, cfg.Scheduler.Retention)); err != nil {
		return fmt.Errorf("ensure schedules: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.RunsWorker() {
		var workerScheduler *services.Scheduler
		if cfg.Scheduler.Enabled {
			workerScheduler = scheduler
			log.Printf("Scheduler enabled (lock_required=%t)", cfg.Scheduler.LockRequired)
		} else {
			log.Println("Scheduler disabled via SCHEDULER_ENABLED=false")
		}

		w := worker.NewWorker(worker.WorkerConfig{
			TaskQueue:      taskQueue,
			Crawls:         monitor,
			Integrity:      integrity,
			Remover:        remover,
			Scheduler:      workerScheduler,
			Metrics:        m,
			Logger:         logging.WithComponent("worker"),
			Concurrency:    cfg.Worker.Concurrency,
			DequeueTimeout: cfg.Worker.DequeueTimeout,
		})
		g.Go(func() error {
			if err := w.Start(gctx); err != nil {
				return fmt.Errorf("start worker: %w", err)
			}
			log.Println("Worker started, processing tasks...")
			<-gctx.Done()
			log.Println("Stopping worker...")
			w.Stop()
			log.Println("Worker stopped")
			return nil
		})
	}

	if cfg.RunsAPI() {
		checks := map[string]http.Pinger{
			"postgres": db,
			"queue":    taskQueue,
			"lock":     lock,
		}
		server := http.NewServer(http.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			Version:        version,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Docs:           docs.SwaggerInfo.ReadDoc,
		}, http.Deps{
			Corpora:   corpusService,
			Features:  featureService,
			Callbacks: callbackService,
			Schedules: scheduler,
			TaskQueue: taskQueue,
			Checks:    checks,
			Metrics:   m,
			Logger:    logging.WithComponent("http"),
		})
		g.Go(func() error {
			log.Printf("API server starting on %s:%d", cfg.Server.Host, cfg.Server.Port)
			return server.Start(gctx)
		})

		callbackTopics := kafkain.Topics{
			ComputeDone:   cfg.Kafka.Topics.ComputeDone,
			IntegrityDone: cfg.Kafka.Topics.IntegrityDone,
			FileExtracted: cfg.Kafka.Topics.FileExtracted,
		}
		reader := kafkain.NewReader(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, callbackTopics)
		consumer := kafkain.NewCallbackConsumer(reader, callbackService, callbackTopics, logging.WithComponent("callbacks"))
		defer consumer.Close()
		g.Go(func() error {
			log.Println("Callback consumer started")
			return consumer.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
