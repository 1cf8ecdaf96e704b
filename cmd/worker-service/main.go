package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ndquoc/recon-be/internal/config"
	"github.com/ndquoc/recon-be/internal/events"
	"github.com/ndquoc/recon-be/internal/queue"
	"github.com/ndquoc/recon-be/internal/ratelimit"
	"github.com/ndquoc/recon-be/internal/result"
	"github.com/ndquoc/recon-be/internal/sandbox"
	"github.com/ndquoc/recon-be/internal/tool"
	"github.com/ndquoc/recon-be/internal/worker"
	"github.com/ndquoc/recon-be/shared/logger"
	"github.com/ndquoc/recon-be/shared/postgresql"
	"github.com/ndquoc/recon-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client for the durable job queue
	jobsClient, err := initJobQueue(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize job queue: %w", err)
	}

	// Initialize publish-only RabbitMQ client for lifecycle events
	eventsClient, err := initEventFanout(&cfg.RabbitMQ, cfg.Events.ExchangeName, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event fanout: %w", err)
	}

	appLogger.Info("RabbitMQ connections established")

	// Wire execution dependencies
	runner := sandbox.NewRunner(sandbox.Config{
		Mode:      cfg.Sandbox.Mode,
		Image:     cfg.Sandbox.Image,
		KillGrace: cfg.Sandbox.KillGrace,
	}, appLogger.Logger)

	workdirs, err := sandbox.NewWorkdirs(cfg.Sandbox.WorkdirBase)
	if err != nil {
		return fmt.Errorf("failed to initialize workdir base: %w", err)
	}

	registry := tool.DefaultRegistry()
	jobStore := queue.NewStore(dbClient.GetDB(), appLogger.Logger)
	resultStore := result.NewStore(dbClient.GetDB(), appLogger.Logger)
	limiter := initLimiter(&cfg.RateLimit)
	emitter := events.NewPublisher(eventsClient, appLogger.Logger)

	// Create worker instance
	w := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		QueueStore:        jobStore,
		ResultStore:       resultStore,
		Registry:          registry,
		Limiter:           limiter,
		Runner:            runner,
		Workdirs:          workdirs,
		RabbitClient:      jobsClient,
		Emitter:           emitter,
		Concurrency:       cfg.Worker.Concurrency,
		PrefetchCount:     cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Requeue jobs abandoned by crashed workers
	reaper := queue.NewReaper(jobStore, jobsClient, cfg.Worker.VisibilityTimeout, cfg.Worker.ReaperInterval, appLogger.Logger)
	go reaper.Run(ctx)

	// Start worker in a goroutine; Start blocks on the message dispatcher
	errChan := make(chan error, 1)
	go func() {
		if err := w.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service is running",
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.String("sandbox_mode", cfg.Sandbox.Mode),
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error", slog.Any("error", err))
		return err
	}

	cancel()

	// Bound the drain of in-flight jobs
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("All in-flight jobs drained")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Shutdown timeout exceeded, abandoning in-flight jobs",
			slog.Duration("timeout", cfg.Worker.ShutdownTimeout),
		)
	}

	if dbClient != nil {
		dbClient.Close()
	}
	if jobsClient != nil {
		jobsClient.Close()
	}
	if eventsClient != nil {
		eventsClient.Close()
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initJobQueue initializes the RabbitMQ client for the durable job queue
func initJobQueue(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		DeclareQueue:       true,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initEventFanout initializes a publish-only RabbitMQ client on the
// lifecycle-event fanout exchange. No queue is declared: consumers bind
// their own server-named queues.
func initEventFanout(cfg *config.RabbitMQConfig, exchangeName string, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      exchangeName,
		ExchangeType:      "fanout",
		ExchangeDurable:   true,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initLimiter builds the per-source admission limiter from configuration
func initLimiter(cfg *config.RateLimitConfig) *ratelimit.Limiter {
	rules := make(map[string]ratelimit.Rule, len(cfg.Sources))
	for source, rule := range cfg.Sources {
		rules[source] = ratelimit.Rule{
			LimitPerWindow: rule.LimitPerWindow,
			Window:         rule.Window,
		}
	}

	return ratelimit.NewLimiter(ratelimit.Rule{
		LimitPerWindow: cfg.Default.LimitPerWindow,
		Window:         cfg.Default.Window,
	}, rules)
}
