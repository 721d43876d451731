// Package bootstrap wires shared runtime dependencies (postgres, redis,
// email, escalation) so the API server and the distress worker build their
// stacks the same way.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/caresignal/triage-platform/internal/config"
	"github.com/caresignal/triage-platform/internal/escalation"
	"github.com/caresignal/triage-platform/internal/notify"
	"github.com/caresignal/triage-platform/internal/observability/metrics"
	"github.com/caresignal/triage-platform/internal/triage"
	"github.com/caresignal/triage-platform/pkg/logging"
)

// BuildDatabase opens the postgres pool and exposes it through database/sql.
// Returns (nil, no-op, nil) when DATABASE_URL is unset; assessment storage
// and the escalation audit trail are optional.
func BuildDatabase(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*sql.DB, func(), error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, func() {}, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, err
	}
	db := stdlib.OpenDBFromPool(pool)
	cleanup := func() {
		_ = db.Close()
		pool.Close()
	}
	if err := db.PingContext(ctx); err != nil {
		logger.Warn("postgres not reachable at startup", "error", err)
	}
	return db, cleanup, nil
}

// BuildRedisClient connects to redis for the recent-assessment cache.
// Returns nil when redis is unconfigured or (with verify) unreachable;
// callers treat a nil client as "cache disabled".
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildEmailSender picks the caregiver email provider. EMAIL_PROVIDER selects
// "sendgrid" or "ses" explicitly; "auto" prefers SendGrid when an API key is
// present, then SES, then the logging stub.
func BuildEmailSender(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}

	sendgrid := func() notify.EmailSender {
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	ses := func() notify.EmailSender {
		return notify.NewSESSender(sesClient, notify.SESConfig{FromEmail: cfg.SESFromEmail}, logger)
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		if cfg.SendGridAPIKey != "" {
			logger.Info("sendgrid email sender initialized")
			return sendgrid()
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is not set")
	case "ses":
		if sesClient != nil && cfg.SESFromEmail != "" {
			logger.Info("ses email sender initialized")
			return ses()
		}
		logger.Warn("EMAIL_PROVIDER=ses but SES client or SES_FROM_EMAIL is missing")
	default:
		if cfg.SendGridAPIKey != "" {
			logger.Info("sendgrid email sender initialized")
			return sendgrid()
		}
		if sesClient != nil && cfg.SESFromEmail != "" {
			logger.Info("ses email sender initialized")
			return ses()
		}
	}
	logger.Warn("caregiver email delivery disabled; escalations will be logged only")
	return notify.NewStubEmailSender(logger)
}

// BuildDirectory assembles the static caregiver directory from the
// RECIPIENTS_* environment variables.
func BuildDirectory(cfg *appconfig.Config) (*escalation.StaticDirectory, error) {
	return escalation.NewStaticDirectory(map[escalation.Role][]string{
		escalation.RoleDoctor:    splitList(cfg.DoctorRecipients),
		escalation.RoleStaff:     splitList(cfg.StaffRecipients),
		escalation.RoleEmergency: splitList(cfg.EmergencyRecipients),
	})
}

// BuildDispatcher creates the escalation dispatcher with the configured
// policy, delivery channel, ops alerting, and audit persistence.
func BuildDispatcher(cfg *appconfig.Config, email notify.EmailSender, db *sql.DB, m *metrics.EscalationMetrics, logger *logging.Logger) (*escalation.Dispatcher, error) {
	if logger == nil {
		logger = logging.Default()
	}

	directory, err := BuildDirectory(cfg)
	if err != nil {
		return nil, err
	}

	// No SMS provider is wired yet; pager/sms recipients get a logged no-op.
	sms := notify.NewSimpleSMSSender("", nil, logger)
	channel := notify.NewEscalationChannel(email, sms, logger)
	ops := notify.NewOpsEmailAlerter(email, cfg.OpsAlertEmail, logger)

	dispatcherCfg := escalation.DefaultDispatcherConfig()
	dispatcherCfg.ThresholdLevel = triage.UrgencyLevel(cfg.EscalationThresholdLevel)
	dispatcherCfg.AckTimeout = cfg.EscalationAckTimeout
	dispatcherCfg.MaxAttempts = cfg.DeliveryMaxAttempts
	dispatcherCfg.BaseDelay = cfg.DeliveryBaseDelay

	var opts []escalation.DispatcherOption
	if audit := escalation.NewPostgresAuditStore(db); audit != nil {
		opts = append(opts, escalation.WithAuditStore(audit))
	}
	return escalation.NewDispatcher(dispatcherCfg, channel, directory, ops, m, logger, opts...)
}

// TriagePolicy maps the operator-tunable thresholds onto the classifier
// policy.
func TriagePolicy(cfg *appconfig.Config) triage.Policy {
	return triage.NewPolicy(
		cfg.EmergencyProbability,
		cfg.DoctorConsultProbability,
		cfg.MonitorProbability,
		cfg.HighSeverityConditions,
	)
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
