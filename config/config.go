package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds all configuration for the subscription service
type Config struct {
	Database     DatabaseConfig
	Kafka        KafkaConfig
	Logging      LoggingConfig
	Service      ServiceConfig
	Subscription SubscriptionConfig
	Directory    DirectoryConfig
	RateLimit    RateLimitConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	GroupID      string
	CommandTopic string
	ResultTopic  string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name     string
	HTTPPort string
	GRPCPort string
}

// SubscriptionConfig holds the lifecycle windows and the purge schedule
type SubscriptionConfig struct {
	Cooldown       time.Duration
	Retention      time.Duration
	PurgeSchedule  string
	PurgeBatchSize int
	PurgeEnabled   bool
}

// DirectoryConfig controls the player/team existence cache
type DirectoryConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// RateLimitConfig limits mutating requests per user
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Result is fx.Out struct for providing config dependencies
type Result struct {
	fx.Out

	Config             *Config
	DatabaseConfig     *DatabaseConfig
	KafkaConfig        *KafkaConfig
	LoggingConfig      *LoggingConfig
	ServiceConfig      *ServiceConfig
	SubscriptionConfig *SubscriptionConfig
	DirectoryConfig    *DirectoryConfig
	RateLimitConfig    *RateLimitConfig
}

// Out returns fx-compatible config result
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:             cfg,
		DatabaseConfig:     &cfg.Database,
		KafkaConfig:        &cfg.Kafka,
		LoggingConfig:      &cfg.Logging,
		ServiceConfig:      &cfg.Service,
		SubscriptionConfig: &cfg.Subscription,
		DirectoryConfig:    &cfg.Directory,
		RateLimitConfig:    &cfg.RateLimit,
	}, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	maxOpenConns, err := getEnvInt("DATABASE_MAX_OPEN_CONNS", 20)
	if err != nil {
		return nil, err
	}

	kafkaEnabled, err := getEnvBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	cooldown, err := getEnvDuration("SUBSCRIPTION_COOLDOWN", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	retention, err := getEnvDuration("SUBSCRIPTION_RETENTION", 72*time.Hour)
	if err != nil {
		return nil, err
	}

	batchSize, err := getEnvInt("SUBSCRIPTION_PURGE_BATCH_SIZE", 500)
	if err != nil {
		return nil, err
	}

	purgeEnabled, err := getEnvBool("SUBSCRIPTION_PURGE_ENABLED", true)
	if err != nil {
		return nil, err
	}

	cacheSize, err := getEnvInt("DIRECTORY_CACHE_SIZE", 4096)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := getEnvDuration("DIRECTORY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:         getEnv("DATABASE_HOST", "localhost"),
			Port:         getEnv("DATABASE_PORT", "5432"),
			User:         getEnv("DATABASE_USER", "subscriptions_user"),
			Password:     getEnv("DATABASE_PASSWORD", "subscriptions_pass"),
			DBName:       getEnv("DATABASE_NAME", "subscriptions_db"),
			SSLMode:      getEnv("DATABASE_SSLMODE", "disable"),
			MaxOpenConns: maxOpenConns,
		},
		Kafka: KafkaConfig{
			Enabled:      kafkaEnabled,
			Brokers:      splitList(getEnv("KAFKA_BROKERS", "localhost:9093")),
			GroupID:      getEnv("KAFKA_GROUP_ID", "subscription-service-group"),
			CommandTopic: getEnv("KAFKA_COMMAND_TOPIC", "subscription.commands"),
			ResultTopic:  getEnv("KAFKA_RESULT_TOPIC", "subscription.results"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Service: ServiceConfig{
			Name:     getEnv("SERVICE_NAME", "subscription-service"),
			HTTPPort: getEnv("HTTP_PORT", "8085"),
			GRPCPort: getEnv("GRPC_PORT", "50055"),
		},
		Subscription: SubscriptionConfig{
			Cooldown:       cooldown,
			Retention:      retention,
			PurgeSchedule:  getEnv("SUBSCRIPTION_PURGE_SCHEDULE", "0 0 * * *"),
			PurgeBatchSize: batchSize,
			PurgeEnabled:   purgeEnabled,
		},
		Directory: DirectoryConfig{
			CacheSize: cacheSize,
			CacheTTL:  cacheTTL,
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DATABASE_HOST is required")
	}

	if c.Database.User == "" {
		return fmt.Errorf("DATABASE_USER is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("DATABASE_NAME is required")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}

	if c.Subscription.Cooldown < 0 {
		return fmt.Errorf("SUBSCRIPTION_COOLDOWN must not be negative")
	}

	if c.Subscription.Retention <= 0 {
		return fmt.Errorf("SUBSCRIPTION_RETENTION must be positive")
	}

	if c.Subscription.PurgeBatchSize <= 0 {
		return fmt.Errorf("SUBSCRIPTION_PURGE_BATCH_SIZE must be positive")
	}

	if c.Directory.CacheSize <= 0 {
		return fmt.Errorf("DIRECTORY_CACHE_SIZE must be positive")
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	return nil
}

// GetDSN returns database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
