package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	Finnhub     FinnhubConfig
	SMTP        SMTPConfig
	Alerts      AlertsConfig
	Eligibility EligibilityConfig
	Log         LogConfig
	Tracing     TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port    string
	Host    string
	BaseURL string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string
}

// KafkaConfig holds Kafka configuration. An empty broker list disables
// both the trigger consumer and the event producer.
type KafkaConfig struct {
	Brokers      []string
	TriggerTopic string
	EventsTopic  string
	GroupID      string
}

// RedisConfig holds Redis configuration. An empty address disables the
// pass lock, the company name cache and the quote rate limiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// FinnhubConfig holds market data provider configuration
type FinnhubConfig struct {
	BaseURL        string
	APIKey         string
	RequestsPerMin int
	NameCacheTTL   time.Duration
}

// SMTPConfig holds email transport configuration
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// AlertsConfig holds evaluation pipeline configuration
type AlertsConfig struct {
	Interval    time.Duration
	Concurrency int
	CallTimeout time.Duration
	ClaimTTL    time.Duration
	LockTTL     time.Duration
}

// EligibilityConfig holds gate tuning and preference link signing
type EligibilityConfig struct {
	CacheTTL         time.Duration
	CleanupInterval  time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	LinkSecret       string
	LinkTTL          time.Duration
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string
	Development bool
}

// TracingConfig holds OpenTelemetry exporter configuration
type TracingConfig struct {
	Endpoint string
}

// Load reads configuration from environment variables, after loading a
// .env file when one exists
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:    getEnv("SERVER_PORT", "8080"),
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			BaseURL: getEnv("APP_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", "postgres"),
			DBName:        getEnv("DB_NAME", "stockalerts"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "db/migrations"),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvList("KAFKA_BROKERS", nil),
			TriggerTopic: getEnv("KAFKA_TRIGGER_TOPIC", "stock-alert-checks"),
			EventsTopic:  getEnv("KAFKA_EVENTS_TOPIC", "stock-alert-events"),
			GroupID:      getEnv("KAFKA_GROUP_ID", "stock-alert-system"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Finnhub: FinnhubConfig{
			BaseURL:        getEnv("FINNHUB_BASE_URL", "https://finnhub.io/api/v1"),
			APIKey:         getEnv("FINNHUB_API_KEY", ""),
			RequestsPerMin: getEnvInt("FINNHUB_REQUESTS_PER_MIN", 60),
			NameCacheTTL:   getEnvDuration("FINNHUB_NAME_CACHE_TTL", 24*time.Hour),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", `"Stock Alerts" <alerts@localhost>`),
		},
		Alerts: AlertsConfig{
			Interval:    getEnvDuration("ALERTS_INTERVAL", 10*time.Minute),
			Concurrency: getEnvInt("ALERTS_CONCURRENCY", 4),
			CallTimeout: getEnvDuration("ALERTS_CALL_TIMEOUT", 10*time.Second),
			ClaimTTL:    getEnvDuration("ALERTS_CLAIM_TTL", 2*time.Minute),
			LockTTL:     getEnvDuration("ALERTS_LOCK_TTL", 9*time.Minute),
		},
		Eligibility: EligibilityConfig{
			CacheTTL:         getEnvDuration("ELIGIBILITY_CACHE_TTL", 5*time.Minute),
			CleanupInterval:  getEnvDuration("ELIGIBILITY_CLEANUP_INTERVAL", 10*time.Minute),
			FailureThreshold: getEnvInt("ELIGIBILITY_FAILURE_THRESHOLD", 5),
			Cooldown:         getEnvDuration("ELIGIBILITY_COOLDOWN", 60*time.Second),
			LinkSecret:       getEnv("UNSUBSCRIBE_SECRET", "dev-secret"),
			LinkTTL:          getEnvDuration("UNSUBSCRIBE_TTL", 30*24*time.Hour),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvBool("LOG_DEVELOPMENT", false),
		},
		Tracing: TracingConfig{
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Addr returns the host:port the HTTP server listens on
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
