package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default. DATABASE_URL is optional: when empty
// the service runs on the in-memory store (jobs do not survive a restart).
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database (optional)
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Per-queue worker slot counts
	CalcWorkers    int
	ReportWorkers  int
	NotifyWorkers  int
	ChannelWorkers int // per channel queue (push, email, sms)

	// Job execution
	DefaultMaxAttempts int
	RetryBaseDelay     time.Duration
	HandlerTimeout     time.Duration
	PollInterval       time.Duration

	// Supervision and retention
	ClaimGrace          time.Duration
	ReaperInterval      time.Duration
	JanitorInterval     time.Duration
	CompletedRetention  time.Duration
	DeadLetterRetention time.Duration

	// Channel delivery
	RateLimitPerChannel int
	ProviderTimeout     time.Duration
	PushGatewayURL      string
	EmailGatewayURL     string
	SMSGatewayURL       string
}

func Load() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		CalcWorkers:    getInt("CALC_WORKERS", 4),
		ReportWorkers:  getInt("REPORT_WORKERS", 2),
		NotifyWorkers:  getInt("NOTIFY_WORKERS", 4),
		ChannelWorkers: getInt("CHANNEL_WORKERS", 3),

		DefaultMaxAttempts: getInt("DEFAULT_MAX_ATTEMPTS", 3),
		RetryBaseDelay:     getDuration("RETRY_BASE_DELAY", 5*time.Second),
		HandlerTimeout:     getDuration("HANDLER_TIMEOUT", 30*time.Second),
		PollInterval:       getDuration("POLL_INTERVAL", 250*time.Millisecond),

		ClaimGrace:          getDuration("CLAIM_GRACE", 30*time.Second),
		ReaperInterval:      getDuration("REAPER_INTERVAL", 15*time.Second),
		JanitorInterval:     getDuration("JANITOR_INTERVAL", time.Minute),
		CompletedRetention:  getDuration("COMPLETED_RETENTION", time.Hour),
		DeadLetterRetention: getDuration("DEAD_LETTER_RETENTION", 7*24*time.Hour),

		RateLimitPerChannel: getInt("RATE_LIMIT_PER_CHANNEL", 100),
		ProviderTimeout:     getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		PushGatewayURL:      os.Getenv("PUSH_GATEWAY_URL"),
		EmailGatewayURL:     os.Getenv("EMAIL_GATEWAY_URL"),
		SMSGatewayURL:       os.Getenv("SMS_GATEWAY_URL"),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
