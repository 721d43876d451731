package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caresignal/triage-platform/cmd/mainconfig"
	"github.com/caresignal/triage-platform/internal/api/router"
	"github.com/caresignal/triage-platform/internal/app/bootstrap"
	"github.com/caresignal/triage-platform/internal/assessment"
	appconfig "github.com/caresignal/triage-platform/internal/config"
	"github.com/caresignal/triage-platform/internal/distress"
	"github.com/caresignal/triage-platform/internal/escalation"
	"github.com/caresignal/triage-platform/internal/observability/metrics"
	"github.com/caresignal/triage-platform/internal/triage"
	"github.com/caresignal/triage-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting triage-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, dbCleanup, err := bootstrap.BuildDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer dbCleanup()
	if db == nil {
		logger.Warn("DATABASE_URL not set; assessments will not be persisted")
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// AWS is only needed for SQS publishing and SES delivery; a memory-queue
	// deployment with SendGrid (or stub) email never touches it.
	var sesClient *sesv2.Client
	var sqsClient *sqs.Client
	if !cfg.UseMemoryQueue || cfg.EmailProvider == "ses" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sesClient = sesv2.NewFromConfig(awsCfg)
		sqsClient = sqs.NewFromConfig(awsCfg)
	}

	promRegistry := prometheus.NewRegistry()
	assessmentMetrics := metrics.NewAssessmentMetrics(promRegistry)
	escalationMetrics := metrics.NewEscalationMetrics(promRegistry)

	emailSender := bootstrap.BuildEmailSender(cfg, sesClient, logger)
	dispatcher, err := bootstrap.BuildDispatcher(cfg, emailSender, db, escalationMetrics, logger)
	if err != nil {
		logger.Error("failed to configure escalation dispatcher", "error", err)
		os.Exit(1)
	}
	defer dispatcher.Close()

	store := assessment.NewPostgresStore(db)
	recentCache := assessment.NewRecentCache(redisClient, cfg.AssessmentRecencyWindow)

	orchestrator := assessment.NewOrchestrator(
		triage.NewRuleScorer(0),
		triage.NewClassifier(bootstrap.TriagePolicy(cfg)),
		triage.NewStaticRecommender(0, 0),
		logger,
		assessment.WithStore(store),
		assessment.WithRecentCache(recentCache),
		assessment.WithDispatcher(dispatcher),
		assessment.WithMetrics(assessmentMetrics),
		assessment.WithStoreRetries(cfg.StoreRetryAttempts),
	)

	// Distress signals flow through a queue so confirms survive API restarts.
	// USE_MEMORY_QUEUE=true runs the consumer inline for local development;
	// otherwise signals go to SQS for the distress-worker binary.
	var publisher *distress.Publisher
	var signalWorker *distress.SignalWorker
	if cfg.UseMemoryQueue {
		queue := distress.NewMemoryQueue(256)
		publisher = distress.NewPublisher(queue)
		signalWorker = distress.NewSignalWorker(queue, orchestrator, logger,
			distress.WithWorkerCount(cfg.WorkerCount))
		signalWorker.Start(ctx)
		logger.Info("inline distress workers started", "count", cfg.WorkerCount)
	} else {
		if cfg.DistressQueueURL == "" {
			logger.Error("DISTRESS_QUEUE_URL is required unless USE_MEMORY_QUEUE=true")
			os.Exit(1)
		}
		publisher = distress.NewPublisher(distress.NewSQSQueue(sqsClient, cfg.DistressQueueURL))
	}

	distressCfg := distress.Config{
		Window:        cfg.DistressWindow,
		Debounce:      cfg.DistressDebounce,
		Cooldown:      cfg.DistressCooldown,
		HighThreshold: cfg.DistressHighThreshold,
		LowThreshold:  cfg.DistressLowThreshold,
		FrameBuffer:   cfg.DistressFrameBuffer,
	}
	emit := func(ctx context.Context, sig distress.Signal) {
		if err := publisher.Publish(ctx, sig); err != nil {
			logger.Error("failed to publish distress signal",
				"session_id", sig.SessionID,
				"error", err,
			)
		}
	}
	registry := distress.NewRegistry(distressCfg, distress.MeanEnergyClassifier, emit, logger)
	defer registry.Close()

	routerCfg := &router.Config{
		Logger:              logger,
		AssessmentHandler:   assessment.NewHandler(orchestrator, store, logger),
		DistressHandler:     distress.NewHandler(registry, logger),
		EscalationHandler:   escalation.NewHandler(dispatcher, logger),
		MetricsHandler:      promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		CaregiverAuthSecret: cfg.AuthJWTSecret,
		RateLimitPerSecond:  cfg.RateLimitPerSecond,
		RateLimitBurst:      cfg.RateLimitBurst,
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	if signalWorker != nil {
		signalWorker.Wait()
	}

	logger.Info("server stopped")
}
