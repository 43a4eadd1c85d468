package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	platformstrings "certify/pkg/platform/strings"
)

// Config is the process configuration, loaded from CERTIFY_* variables.
type Config struct {
	Server     Server
	Registry   Registry
	Projection Projection
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig

	LogLevel     string `env:"CERTIFY_LOG_LEVEL" envDefault:"info"`
	OtelEndpoint string `env:"CERTIFY_OTEL_ENDPOINT"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"CERTIFY_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"CERTIFY_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Registry names the privileged accounts seeded at startup.
type Registry struct {
	// BootstrapAdmin receives the Admin capability if it does not hold it.
	BootstrapAdmin string `env:"CERTIFY_BOOTSTRAP_ADMIN"`
	// FaucetAccount is the ledger delegate used by the self-service faucet.
	// Empty disables the faucet routes.
	FaucetAccount    string `env:"CERTIFY_FAUCET_ACCOUNT"`
	FaucetIssuerName string `env:"CERTIFY_FAUCET_ISSUER_NAME" envDefault:"Demo Issuer"`
}

// Projection tunes event-log replay.
type Projection struct {
	Window               int `env:"CERTIFY_PROJECTION_WINDOW" envDefault:"200"`
	DirectoryConcurrency int `env:"CERTIFY_DIRECTORY_CONCURRENCY" envDefault:"8"`
}

// DatabaseConfig selects the PostgreSQL ledger store. An empty URL keeps the
// ledger in memory.
type DatabaseConfig struct {
	URL             string        `env:"CERTIFY_DATABASE_URL"`
	MaxOpenConns    int           `env:"CERTIFY_DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"CERTIFY_DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CERTIFY_DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig enables the credential detail cache when URL is set.
type RedisConfig struct {
	URL          string        `env:"CERTIFY_REDIS_URL"`
	PoolSize     int           `env:"CERTIFY_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"CERTIFY_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"CERTIFY_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"CERTIFY_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"CERTIFY_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	CacheTTL     time.Duration `env:"CERTIFY_CREDENTIAL_CACHE_TTL" envDefault:"24h"`
}

// KafkaConfig enables event fan-out when Brokers is set.
type KafkaConfig struct {
	Brokers           []string      `env:"CERTIFY_KAFKA_BROKERS" envSeparator:","`
	Topic             string        `env:"CERTIFY_KAFKA_TOPIC" envDefault:"certify.registry.events"`
	Partitions        int32         `env:"CERTIFY_KAFKA_PARTITIONS" envDefault:"1"`
	ReplicationFactor int16         `env:"CERTIFY_KAFKA_REPLICATION_FACTOR" envDefault:"1"`
	DeliveryTimeout   time.Duration `env:"CERTIFY_KAFKA_DELIVERY_TIMEOUT" envDefault:"10s"`
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = platformstrings.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Projection.Window <= 0 {
		return fmt.Errorf("CERTIFY_PROJECTION_WINDOW must be positive")
	}
	if c.Projection.DirectoryConcurrency <= 0 {
		return fmt.Errorf("CERTIFY_DIRECTORY_CONCURRENCY must be positive")
	}
	if c.Registry.FaucetAccount != "" && c.Registry.FaucetAccount == c.Registry.BootstrapAdmin {
		return fmt.Errorf("CERTIFY_FAUCET_ACCOUNT must differ from CERTIFY_BOOTSTRAP_ADMIN")
	}
	return nil
}
