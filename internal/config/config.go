package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMongo    = "mongo"

	GatewayModeMock      = "mock"
	GatewayModePayraizen = "payraizen"
)

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort string
	LogLevel string

	StorageDriver  string
	StoragePath    string
	DatabaseURL    string
	MigrationsPath string
	AutoMigrate    bool
	MongoURI       string
	MongoDatabase  string
	RedisURL       string

	GatewayMode           string
	GatewayBaseURL        string
	GatewayToken          string
	GatewayMID            string
	GatewayName           string
	GatewayTimeout        time.Duration
	GatewayMaxConcurrency int

	WebhookHMACKey string
	TerminalPolicy string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	PublicRateLimitRPS  int
	WebhookRateLimitRPS int
	IdempotencyTTL      time.Duration

	KafkaBrokers string
	KafkaTopic   string

	StalePendingAfter time.Duration
	SweepInterval     time.Duration
}

// Load reads environment variables using viper and returns a typed config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	bindEnv(v, "port", "PORT", "PAYMENT_PORT")
	bindEnv(v, "log_level", "LOG_LEVEL", "PAYMENT_LOG_LEVEL")
	bindEnv(v, "storage_driver", "STORAGE_DRIVER", "PAYMENT_STORAGE_DRIVER")
	bindEnv(v, "storage_path", "STORAGE_PATH", "PAYMENT_STORAGE_PATH")
	bindEnv(v, "database_url", "DATABASE_URL", "PAYMENT_DATABASE_URL")
	bindEnv(v, "migrations_path", "MIGRATIONS_PATH", "PAYMENT_MIGRATIONS_PATH")
	bindEnv(v, "auto_migrate", "AUTO_MIGRATE", "PAYMENT_AUTO_MIGRATE")
	bindEnv(v, "mongo_uri", "MONGO_URI", "PAYMENT_MONGO_URI")
	bindEnv(v, "mongo_database", "MONGO_DATABASE", "PAYMENT_MONGO_DATABASE")
	bindEnv(v, "redis_url", "REDIS_URL", "PAYMENT_REDIS_URL")
	bindEnv(v, "gateway_mode", "GATEWAY_MODE", "PAYMENT_GATEWAY_MODE")
	bindEnv(v, "gateway_base_url", "GATEWAY_BASE_URL", "PAYMENT_GATEWAY_BASE_URL")
	bindEnv(v, "gateway_token", "GATEWAY_TOKEN", "PAYRAIZEN_TOKEN")
	bindEnv(v, "gateway_mid", "GATEWAY_MID", "PAYRAIZEN_MID")
	bindEnv(v, "gateway_name", "GATEWAY_NAME", "PAYMENT_GATEWAY_NAME")
	bindEnv(v, "gateway_timeout", "GATEWAY_TIMEOUT", "PAYMENT_GATEWAY_TIMEOUT")
	bindEnv(v, "gateway_max_concurrency", "GATEWAY_MAX_CONCURRENCY", "PAYMENT_GATEWAY_MAX_CONCURRENCY")
	bindEnv(v, "webhook_hmac_key", "WEBHOOK_HMAC_KEY", "PAYMENT_WEBHOOK_HMAC_KEY")
	bindEnv(v, "terminal_policy", "TERMINAL_POLICY", "PAYMENT_TERMINAL_POLICY")
	bindEnv(v, "jwt_secret", "JWT_SECRET", "PAYMENT_JWT_SECRET")
	bindEnv(v, "jwt_issuer", "JWT_ISSUER", "PAYMENT_JWT_ISSUER")
	bindEnv(v, "jwt_audience", "JWT_AUDIENCE", "PAYMENT_JWT_AUDIENCE")
	bindEnv(v, "public_rate_limit_rps", "PUBLIC_RATE_LIMIT_RPS", "PAYMENT_PUBLIC_RATE_LIMIT_RPS")
	bindEnv(v, "webhook_rate_limit_rps", "WEBHOOK_RATE_LIMIT_RPS", "PAYMENT_WEBHOOK_RATE_LIMIT_RPS")
	bindEnv(v, "idempotency_ttl", "IDEMPOTENCY_TTL", "PAYMENT_IDEMPOTENCY_TTL")
	bindEnv(v, "kafka_brokers", "KAFKA_BROKERS", "PAYMENT_KAFKA_BROKERS")
	bindEnv(v, "kafka_topic", "KAFKA_TOPIC", "PAYMENT_KAFKA_TOPIC")
	bindEnv(v, "stale_pending_after", "STALE_PENDING_AFTER", "PAYMENT_STALE_PENDING_AFTER")
	bindEnv(v, "sweep_interval", "SWEEP_INTERVAL", "PAYMENT_SWEEP_INTERVAL")

	v.SetDefault("port", "5000")
	v.SetDefault("log_level", "info")
	v.SetDefault("storage_driver", StorageMemory)
	v.SetDefault("storage_path", "")
	v.SetDefault("database_url", "")
	v.SetDefault("migrations_path", "migrations/postgres")
	v.SetDefault("auto_migrate", false)
	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_database", "payment_bridge")
	v.SetDefault("redis_url", "")
	v.SetDefault("gateway_mode", GatewayModeMock)
	v.SetDefault("gateway_base_url", "https://partner.payraizen.com")
	v.SetDefault("gateway_name", "payraizen")
	v.SetDefault("gateway_timeout", "60s")
	v.SetDefault("gateway_max_concurrency", 16)
	v.SetDefault("webhook_hmac_key", "")
	v.SetDefault("terminal_policy", "overwrite")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "payment-bridge")
	v.SetDefault("jwt_audience", "payment-bridge-api")
	v.SetDefault("public_rate_limit_rps", 10)
	v.SetDefault("webhook_rate_limit_rps", 50)
	v.SetDefault("idempotency_ttl", "24h")
	v.SetDefault("kafka_topic", "transaction-events")
	v.SetDefault("stale_pending_after", "5m")
	v.SetDefault("sweep_interval", "1m")

	gatewayTimeout, err := time.ParseDuration(v.GetString("gateway_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT: %w", err)
	}
	ttl, err := time.ParseDuration(v.GetString("idempotency_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
	}
	staleAfter, err := time.ParseDuration(v.GetString("stale_pending_after"))
	if err != nil {
		return nil, fmt.Errorf("invalid STALE_PENDING_AFTER: %w", err)
	}
	sweepInterval, err := time.ParseDuration(v.GetString("sweep_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}

	cfg := &Config{
		HTTPPort:              v.GetString("port"),
		LogLevel:              v.GetString("log_level"),
		StorageDriver:         strings.ToLower(strings.TrimSpace(v.GetString("storage_driver"))),
		StoragePath:           strings.TrimSpace(v.GetString("storage_path")),
		DatabaseURL:           v.GetString("database_url"),
		MigrationsPath:        v.GetString("migrations_path"),
		AutoMigrate:           v.GetBool("auto_migrate"),
		MongoURI:              v.GetString("mongo_uri"),
		MongoDatabase:         v.GetString("mongo_database"),
		RedisURL:              v.GetString("redis_url"),
		GatewayMode:           strings.ToLower(strings.TrimSpace(v.GetString("gateway_mode"))),
		GatewayBaseURL:        strings.TrimRight(v.GetString("gateway_base_url"), "/"),
		GatewayToken:          v.GetString("gateway_token"),
		GatewayMID:            v.GetString("gateway_mid"),
		GatewayName:           v.GetString("gateway_name"),
		GatewayTimeout:        gatewayTimeout,
		GatewayMaxConcurrency: max(v.GetInt("gateway_max_concurrency"), 1),
		WebhookHMACKey:        v.GetString("webhook_hmac_key"),
		TerminalPolicy:        strings.ToLower(strings.TrimSpace(v.GetString("terminal_policy"))),
		JWTSecret:             v.GetString("jwt_secret"),
		JWTIssuer:             v.GetString("jwt_issuer"),
		JWTAudience:           v.GetString("jwt_audience"),
		PublicRateLimitRPS:    max(v.GetInt("public_rate_limit_rps"), 1),
		WebhookRateLimitRPS:   max(v.GetInt("webhook_rate_limit_rps"), 1),
		IdempotencyTTL:        ttl,
		KafkaBrokers:          strings.TrimSpace(v.GetString("kafka_brokers")),
		KafkaTopic:            v.GetString("kafka_topic"),
		StalePendingAfter:     staleAfter,
		SweepInterval:         sweepInterval,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage driver")
		}
	case StorageSQLite:
		if c.StoragePath == "" {
			return fmt.Errorf("STORAGE_PATH is required for the sqlite storage driver")
		}
	case StorageMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo storage driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.GatewayMode {
	case GatewayModeMock:
	case GatewayModePayraizen:
		if strings.TrimSpace(c.GatewayToken) == "" || strings.TrimSpace(c.GatewayMID) == "" {
			return fmt.Errorf("GATEWAY_TOKEN and GATEWAY_MID are required in payraizen mode")
		}
	default:
		return fmt.Errorf("unknown GATEWAY_MODE %q", c.GatewayMode)
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}

	switch c.TerminalPolicy {
	case "overwrite", "immutable":
	default:
		return fmt.Errorf("unknown TERMINAL_POLICY %q", c.TerminalPolicy)
	}

	// Bearer auth is optional; a configured secret must still be strong.
	if c.JWTSecret != "" {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters")
		}
		if strings.TrimSpace(c.JWTIssuer) == "" {
			return fmt.Errorf("JWT_ISSUER is required")
		}
		if strings.TrimSpace(c.JWTAudience) == "" {
			return fmt.Errorf("JWT_AUDIENCE is required")
		}
	}

	if c.KafkaBrokers != "" && strings.TrimSpace(c.KafkaTopic) == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.StalePendingAfter > 0 && c.StalePendingAfter <= c.GatewayTimeout {
		return fmt.Errorf("STALE_PENDING_AFTER must exceed GATEWAY_TIMEOUT")
	}
	return nil
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}
