package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	platformstrings "racereg/pkg/platform/strings"
)

// Config is the full process configuration.
type Config struct {
	Server       Server
	Postgres     PostgresConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Auth         AuthConfig
	Gateway      GatewayConfig
	Callback     CallbackConfig
	Registration RegistrationConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// SeedDemoData loads a demo race into the in-memory ledger when no
	// database is configured.
	SeedDemoData bool
}

// IsProduction is true outside development and test environments.
func (s Server) IsProduction() bool {
	return s.Environment != "development" && s.Environment != "test"
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RunMigrations   bool
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit stream. With no brokers, audit events stay
// in process (or in the postgres outbox when a database is configured).
type KafkaConfig struct {
	Brokers           []string
	AuditTopic        string
	ClientID          string
	Partitions        int
	ReplicationFactor int
	RelayInterval     time.Duration
	RelayBatchSize    int
}

type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// GatewayConfig holds the VNPay merchant credentials. Leaving any of URL,
// TmnCode, HashSecret or ReturnURL empty disables payments.
type GatewayConfig struct {
	URL        string
	TmnCode    string
	HashSecret string
	ReturnURL  string
	Locale     string
	PaymentTTL time.Duration
}

// CallbackConfig controls where runners land after paying and how long a
// settled callback is remembered.
type CallbackConfig struct {
	SuccessURL string
	FailureURL string
	ReplayTTL  time.Duration
}

type RegistrationConfig struct {
	BibBase int
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var p parser

	cfg := Config{
		Server: Server{
			Addr:            getEnv("RACEREG_ADDR", ":8080"),
			Environment:     getEnv("RACEREG_ENV", "development"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			RequestTimeout:  p.durationVar("REQUEST_TIMEOUT", 15*time.Second),
			ShutdownTimeout: p.durationVar("SHUTDOWN_TIMEOUT", 10*time.Second),
			SeedDemoData:    p.boolVar("SEED_DEMO_DATA", false),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    p.intVar("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    p.intVar("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.durationVar("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			RunMigrations:   p.boolVar("DATABASE_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.intVar("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.intVar("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.durationVar("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.durationVar("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.durationVar("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           platformstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			AuditTopic:        getEnv("KAFKA_AUDIT_TOPIC", "racereg.audit"),
			ClientID:          getEnv("KAFKA_CLIENT_ID", "racereg"),
			Partitions:        p.intVar("KAFKA_AUDIT_PARTITIONS", 3),
			ReplicationFactor: p.intVar("KAFKA_AUDIT_REPLICATION_FACTOR", 1),
			RelayInterval:     p.durationVar("KAFKA_RELAY_INTERVAL", time.Second),
			RelayBatchSize:    p.intVar("KAFKA_RELAY_BATCH_SIZE", 100),
		},
		Auth: AuthConfig{
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        os.Getenv("JWT_ISSUER"),
			Audience:      os.Getenv("JWT_AUDIENCE"),
		},
		Gateway: GatewayConfig{
			URL:        getEnv("VNPAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
			TmnCode:    os.Getenv("VNPAY_TMN_CODE"),
			HashSecret: os.Getenv("VNPAY_HASH_SECRET"),
			ReturnURL:  os.Getenv("VNPAY_RETURN_URL"),
			Locale:     getEnv("VNPAY_LOCALE", "vn"),
			PaymentTTL: p.durationVar("VNPAY_PAYMENT_TTL", 0),
		},
		Callback: CallbackConfig{
			SuccessURL: getEnv("PAYMENT_SUCCESS_URL", "/payment-success"),
			FailureURL: getEnv("PAYMENT_FAILURE_URL", "/payment-failed"),
			ReplayTTL:  p.durationVar("PAYMENT_REPLAY_TTL", 24*time.Hour),
		},
		Registration: RegistrationConfig{
			BibBase: p.intVar("BIB_BASE", 1000),
		},
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.Server.IsProduction() && cfg.Auth.JWTSigningKey == "dev-secret-key-change-in-production" {
		return Config{}, fmt.Errorf("JWT_SIGNING_KEY must be set in %s", cfg.Server.Environment)
	}
	return cfg, nil
}

// parser records the first malformed value and falls back to defaults.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
}

func (p *parser) intVar(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) boolVar(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

