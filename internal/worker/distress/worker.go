// Package distressworker runs the queue-consuming side of the distress
// pipeline as a standalone process: it drains confirmed distress signals
// from SQS and feeds them through the assessment orchestrator so escalation
// fires even when the API process that observed the audio has restarted.
package distressworker

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/caresignal/triage-platform/cmd/mainconfig"
	"github.com/caresignal/triage-platform/internal/app/bootstrap"
	"github.com/caresignal/triage-platform/internal/assessment"
	appconfig "github.com/caresignal/triage-platform/internal/config"
	"github.com/caresignal/triage-platform/internal/distress"
	"github.com/caresignal/triage-platform/internal/observability/metrics"
	"github.com/caresignal/triage-platform/internal/triage"
	"github.com/caresignal/triage-platform/pkg/logging"
)

// Run starts the distress signal worker and blocks until ctx is canceled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("distress worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.UseMemoryQueue {
		return fmt.Errorf("distress worker cannot run when USE_MEMORY_QUEUE=true; run inline workers via the API process instead")
	}
	if cfg.DistressQueueURL == "" {
		return fmt.Errorf("DISTRESS_QUEUE_URL is required")
	}

	db, dbCleanup, err := bootstrap.BuildDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("worker failed to connect to postgres: %w", err)
	}
	defer dbCleanup()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	if redisClient == nil {
		logger.Warn("redis unavailable; distress signals cannot attach to recent assessments")
	}

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsConfig)
	queue := distress.NewSQSQueue(sqsClient, cfg.DistressQueueURL)

	promRegistry := prometheus.NewRegistry()
	assessmentMetrics := metrics.NewAssessmentMetrics(promRegistry)
	escalationMetrics := metrics.NewEscalationMetrics(promRegistry)

	var sesClient *sesv2.Client
	if cfg.EmailProvider == "ses" || cfg.EmailProvider == "auto" {
		sesClient = sesv2.NewFromConfig(awsConfig)
	}
	emailSender := bootstrap.BuildEmailSender(cfg, sesClient, logger)
	dispatcher, err := bootstrap.BuildDispatcher(cfg, emailSender, db, escalationMetrics, logger)
	if err != nil {
		return fmt.Errorf("failed to configure escalation dispatcher: %w", err)
	}
	defer dispatcher.Close()

	orchestrator := assessment.NewOrchestrator(
		triage.NewRuleScorer(0),
		triage.NewClassifier(bootstrap.TriagePolicy(cfg)),
		triage.NewStaticRecommender(0, 0),
		logger,
		assessment.WithStore(assessment.NewPostgresStore(db)),
		assessment.WithRecentCache(assessment.NewRecentCache(redisClient, cfg.AssessmentRecencyWindow)),
		assessment.WithDispatcher(dispatcher),
		assessment.WithMetrics(assessmentMetrics),
		assessment.WithStoreRetries(cfg.StoreRetryAttempts),
	)

	worker := distress.NewSQSSignalWorker(queue, orchestrator, logger,
		distress.WithWorkerCount(cfg.WorkerCount),
		distress.WithReceiveWaitSeconds(10),
	)

	worker.Start(ctx)
	logger.Info("distress workers started",
		"count", cfg.WorkerCount,
		"queue_url", cfg.DistressQueueURL,
	)

	<-ctx.Done()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("distress worker stopped")
	case <-doneCtx.Done():
		logger.Error("distress worker shutdown timed out", "error", doneCtx.Err())
	}

	return nil
}
