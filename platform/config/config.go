// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// AuthConfig provides the shared secret used to validate service tokens on
// the trigger and status surfaces.
type AuthConfig interface {
	GetServiceTokenSecret() string
}

// SchedulerConfig provides settings for the asynq-backed wake-up scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EngineConfig provides the knobs for the queue dispatcher and the batch
// reprocessing controller. All of these are injected; the engine itself
// carries no hidden defaults.
type EngineConfig interface {
	GetDebounceDelay() time.Duration
	GetRealtimeWindow() time.Duration
	GetStaleThreshold() time.Duration
	GetPollInterval() time.Duration
	GetFanoutLimit() int
	GetMaxEntryRetries() int
}

// AIConfig provides settings for the model-invocation layer.
type AIConfig interface {
	GetGeminiAPIKey() string
	GetModelProfilesPath() string
	GetAICallTimeout() time.Duration
	GetAIMaxAttempts() int
	GetAIRequestsPerSecond() float64
}

// AlertConfig provides settings for operator failure alerts.
type AlertConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetAlertFromAddress() string
	GetAlertRecipient() string
	IsAlertEnabled() bool
}

// ContactConfig provides settings for contact auto-creation.
type ContactConfig interface {
	GetDefaultPhoneRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	ServiceTokenSecret  string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	DebounceDelay       time.Duration
	RealtimeWindow      time.Duration
	StaleThreshold      time.Duration
	PollInterval        time.Duration
	FanoutLimit         int
	MaxEntryRetries     int
	GeminiAPIKey        string
	ModelProfilesPath   string
	AICallTimeout       time.Duration
	AIMaxAttempts       int
	AIRequestsPerSecond float64
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	AlertFromAddress    string
	AlertRecipient      string
	DefaultPhoneRegion  string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// AuthConfig implementation
func (c *Config) GetServiceTokenSecret() string { return c.ServiceTokenSecret }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// EngineConfig implementation
func (c *Config) GetDebounceDelay() time.Duration  { return c.DebounceDelay }
func (c *Config) GetRealtimeWindow() time.Duration { return c.RealtimeWindow }
func (c *Config) GetStaleThreshold() time.Duration { return c.StaleThreshold }
func (c *Config) GetPollInterval() time.Duration   { return c.PollInterval }
func (c *Config) GetFanoutLimit() int              { return c.FanoutLimit }
func (c *Config) GetMaxEntryRetries() int          { return c.MaxEntryRetries }

// AIConfig implementation
func (c *Config) GetGeminiAPIKey() string         { return c.GeminiAPIKey }
func (c *Config) GetModelProfilesPath() string    { return c.ModelProfilesPath }
func (c *Config) GetAICallTimeout() time.Duration { return c.AICallTimeout }
func (c *Config) GetAIMaxAttempts() int           { return c.AIMaxAttempts }
func (c *Config) GetAIRequestsPerSecond() float64 { return c.AIRequestsPerSecond }

// AlertConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetAlertFromAddress() string { return c.AlertFromAddress }
func (c *Config) GetAlertRecipient() string   { return c.AlertRecipient }
func (c *Config) IsAlertEnabled() bool {
	return c.SMTPHost != "" && c.AlertRecipient != ""
}

// ContactConfig implementation
func (c *Config) GetDefaultPhoneRegion() string { return c.DefaultPhoneRegion }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		ServiceTokenSecret:  getEnv("SERVICE_TOKEN_SECRET", ""),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE_NAME", "intelligence"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		DebounceDelay:       mustDuration(getEnv("REPROCESS_DEBOUNCE_DELAY", "2m")),
		RealtimeWindow:      mustDuration(getEnv("REALTIME_WINDOW", "24h")),
		StaleThreshold:      mustDuration(getEnv("QUEUE_STALE_THRESHOLD", "15m")),
		PollInterval:        mustDuration(getEnv("QUEUE_POLL_INTERVAL", "5s")),
		FanoutLimit:         mustInt(getEnv("AI_FANOUT_LIMIT", "4")),
		MaxEntryRetries:     mustInt(getEnv("QUEUE_MAX_RETRIES", "3")),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		ModelProfilesPath:   getEnv("MODEL_PROFILES_PATH", "model_profiles.yaml"),
		AICallTimeout:       mustDuration(getEnv("AI_CALL_TIMEOUT", "90s")),
		AIMaxAttempts:       mustInt(getEnv("AI_MAX_ATTEMPTS", "3")),
		AIRequestsPerSecond: mustFloat(getEnv("AI_REQUESTS_PER_SECOND", "2")),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		AlertFromAddress:    getEnv("ALERT_FROM_ADDRESS", ""),
		AlertRecipient:      getEnv("ALERT_RECIPIENT", ""),
		DefaultPhoneRegion:  getEnv("DEFAULT_PHONE_REGION", "US"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func mustFloat(value string) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}
