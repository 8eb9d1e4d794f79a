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

// JWTConfig provides JWT validation settings for the admin middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// DedupConfig provides settings for the delivery deduplicator.
type DedupConfig interface {
	GetRedisURL() string
	GetDedupTTL() time.Duration
}

// PipelineConfig provides thresholds and windows for the attribution pipeline.
type PipelineConfig interface {
	GetSilenceWindow() time.Duration
	GetSimilarityThreshold() float64
	GetInterestThreshold() int
	GetOperatorEchoWindow() time.Duration
}

// WebhookConfig provides shared-secret settings for inbound channel webhooks.
type WebhookConfig interface {
	GetWebhookVerifyToken() string
	GetWebhookGlobalSecret() string
}

// DispatchConfig provides settings for external dispatch sinks.
type DispatchConfig interface {
	GetChatbotURL() string
	GetChatbotTimeout() time.Duration
	GetConversionAPIURL() string
	GetConversionAPIToken() string
	GetDispatchAttempts() int
	GetDispatchBackoffBase() time.Duration
}

// CRMConfig provides settings for the CRM collaborator client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIToken() string
}

// MailConfig provides settings for the manual-match notification sender.
type MailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetMailFromAddress() string
	GetManualMatchRecipient() string
	IsMailEnabled() bool
}

// MediaArchiveConfig provides settings for MinIO media archiving.
type MediaArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMediaArchiveBucket() string
	IsMediaArchiveEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	DedupTTL             time.Duration
	SilenceWindow        time.Duration
	SimilarityThreshold  float64
	InterestThreshold    int
	OperatorEchoWindow   time.Duration
	WebhookVerifyToken   string
	WebhookGlobalSecret  string
	ChatbotURL           string
	ChatbotTimeout       time.Duration
	ConversionAPIURL     string
	ConversionAPIToken   string
	DispatchAttempts     int
	DispatchBackoffBase  time.Duration
	CRMBaseURL           string
	CRMAPIToken          string
	MailEnabled          bool
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	MailFromAddress      string
	ManualMatchRecipient string
	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	MediaArchiveBucket   string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// DedupConfig implementation
func (c *Config) GetDedupTTL() time.Duration { return c.DedupTTL }

// PipelineConfig implementation
func (c *Config) GetSilenceWindow() time.Duration      { return c.SilenceWindow }
func (c *Config) GetSimilarityThreshold() float64      { return c.SimilarityThreshold }
func (c *Config) GetInterestThreshold() int            { return c.InterestThreshold }
func (c *Config) GetOperatorEchoWindow() time.Duration { return c.OperatorEchoWindow }

// WebhookConfig implementation
func (c *Config) GetWebhookVerifyToken() string  { return c.WebhookVerifyToken }
func (c *Config) GetWebhookGlobalSecret() string { return c.WebhookGlobalSecret }

// DispatchConfig implementation
func (c *Config) GetChatbotURL() string                  { return c.ChatbotURL }
func (c *Config) GetChatbotTimeout() time.Duration       { return c.ChatbotTimeout }
func (c *Config) GetConversionAPIURL() string            { return c.ConversionAPIURL }
func (c *Config) GetConversionAPIToken() string          { return c.ConversionAPIToken }
func (c *Config) GetDispatchAttempts() int               { return c.DispatchAttempts }
func (c *Config) GetDispatchBackoffBase() time.Duration  { return c.DispatchBackoffBase }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string  { return c.CRMBaseURL }
func (c *Config) GetCRMAPIToken() string { return c.CRMAPIToken }

// MailConfig implementation
func (c *Config) GetSMTPHost() string             { return c.SMTPHost }
func (c *Config) GetSMTPPort() int                { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string         { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string         { return c.SMTPPassword }
func (c *Config) GetMailFromAddress() string      { return c.MailFromAddress }
func (c *Config) GetManualMatchRecipient() string { return c.ManualMatchRecipient }
func (c *Config) IsMailEnabled() bool             { return c.MailEnabled && c.SMTPHost != "" }

// MediaArchiveConfig implementation
func (c *Config) GetMinIOEndpoint() string      { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string     { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string     { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool          { return c.MinIOUseSSL }
func (c *Config) GetMediaArchiveBucket() string { return c.MediaArchiveBucket }
func (c *Config) IsMediaArchiveEnabled() bool   { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		DedupTTL:             mustDuration(getEnv("DEDUP_TTL", "10m")),
		SilenceWindow:        mustDuration(getEnv("SILENCE_WINDOW", "168h")),
		SimilarityThreshold:  mustFloat(getEnv("SIMILARITY_THRESHOLD", "0.70")),
		InterestThreshold:    mustInt(getEnv("INTEREST_THRESHOLD", "3")),
		OperatorEchoWindow:   mustDuration(getEnv("OPERATOR_ECHO_WINDOW", "10s")),
		WebhookVerifyToken:   getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		WebhookGlobalSecret:  getEnv("WEBHOOK_GLOBAL_SECRET", ""),
		ChatbotURL:           getEnv("CHATBOT_URL", ""),
		ChatbotTimeout:       mustDuration(getEnv("CHATBOT_TIMEOUT", "10s")),
		ConversionAPIURL:     getEnv("CONVERSION_API_URL", ""),
		ConversionAPIToken:   getEnv("CONVERSION_API_TOKEN", ""),
		DispatchAttempts:     mustInt(getEnv("DISPATCH_ATTEMPTS", "3")),
		DispatchBackoffBase:  mustDuration(getEnv("DISPATCH_BACKOFF_BASE", "1s")),
		CRMBaseURL:           getEnv("CRM_BASE_URL", ""),
		CRMAPIToken:          getEnv("CRM_API_TOKEN", ""),
		MailEnabled:          strings.EqualFold(getEnv("MAIL_ENABLED", "true"), "true"),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		MailFromAddress:      getEnv("MAIL_FROM_ADDRESS", ""),
		ManualMatchRecipient: getEnv("MANUAL_MATCH_RECIPIENT", ""),
		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MediaArchiveBucket:   getEnv("MINIO_BUCKET_MEDIA_ARCHIVE", "inbound-media"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if cfg.InterestThreshold < 1 {
		return nil, fmt.Errorf("INTEREST_THRESHOLD must be at least 1")
	}
	if cfg.MailEnabled && cfg.SMTPHost != "" && cfg.MailFromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required when SMTP is configured")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
