package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Auth
	AuthJWTSecret string

	// Triage policy thresholds live here so operators can tune sensitivity
	// without code changes.
	EmergencyProbability     float64
	DoctorConsultProbability float64
	MonitorProbability       float64
	HighSeverityConditions   []string

	// Distress monitor
	DistressWindow        time.Duration
	DistressDebounce      time.Duration
	DistressCooldown      time.Duration
	DistressHighThreshold float64
	DistressLowThreshold  float64
	DistressFrameBuffer   int

	// Escalation dispatcher
	EscalationThresholdLevel int
	EscalationAckTimeout     time.Duration
	DeliveryMaxAttempts      int
	DeliveryBaseDelay        time.Duration

	// Orchestrator
	AssessmentRecencyWindow time.Duration
	StoreRetryAttempts      int

	// Distress event queue
	UseMemoryQueue      bool
	DistressQueueURL    string
	WorkerCount         int
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Delivery channels
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	EmailProvider     string

	// Static recipient directory (comma-separated "name=address" entries per role)
	DoctorRecipients    string
	StaffRecipients     string
	EmergencyRecipients string
	OpsAlertEmail       string

	CORSAllowedOrigins []string

	// Public endpoint rate limiting; zero disables it.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		EmergencyProbability:     getEnvAsFloat("TRIAGE_EMERGENCY_PROBABILITY", 85),
		DoctorConsultProbability: getEnvAsFloat("TRIAGE_DOCTOR_PROBABILITY", 60),
		MonitorProbability:       getEnvAsFloat("TRIAGE_MONITOR_PROBABILITY", 35),
		HighSeverityConditions:   getEnvAsList("TRIAGE_HIGH_SEVERITY_CONDITIONS", "Pneumonia,Heart Attack,Stroke,Meningitis"),

		DistressWindow:        getEnvAsDuration("DISTRESS_WINDOW", 10*time.Second),
		DistressDebounce:      getEnvAsDuration("DISTRESS_DEBOUNCE", 3*time.Second),
		DistressCooldown:      getEnvAsDuration("DISTRESS_COOLDOWN", 2*time.Minute),
		DistressHighThreshold: getEnvAsFloat("DISTRESS_HIGH_THRESHOLD", 0.85),
		DistressLowThreshold:  getEnvAsFloat("DISTRESS_LOW_THRESHOLD", 0.55),
		DistressFrameBuffer:   getEnvAsInt("DISTRESS_FRAME_BUFFER", 256),

		EscalationThresholdLevel: getEnvAsInt("ESCALATION_THRESHOLD_LEVEL", 2),
		EscalationAckTimeout:     getEnvAsDuration("ESCALATION_ACK_TIMEOUT", 2*time.Minute),
		DeliveryMaxAttempts:      getEnvAsInt("DELIVERY_MAX_ATTEMPTS", 3),
		DeliveryBaseDelay:        getEnvAsDuration("DELIVERY_BASE_DELAY", 2*time.Second),

		AssessmentRecencyWindow: getEnvAsDuration("ASSESSMENT_RECENCY_WINDOW", 30*time.Minute),
		StoreRetryAttempts:      getEnvAsInt("STORE_RETRY_ATTEMPTS", 3),

		UseMemoryQueue:      getEnvAsBool("USE_MEMORY_QUEUE", false),
		DistressQueueURL:    getEnv("DISTRESS_QUEUE_URL", ""),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 2),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "CareSignal Triage"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),

		DoctorRecipients:    getEnv("RECIPIENTS_DOCTOR", ""),
		StaffRecipients:     getEnv("RECIPIENTS_STAFF", ""),
		EmergencyRecipients: getEnv("RECIPIENTS_EMERGENCY", ""),
		OpsAlertEmail:       getEnv("OPS_ALERT_EMAIL", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", ""),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 0),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
