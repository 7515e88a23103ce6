package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"shop"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"shop"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"shopdb"`
	MigrationsDir    string `envconfig:"MIGRATIONS_DIR" default:"./migrations"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	CartCacheTTL  time.Duration `envconfig:"CART_CACHE_TTL" default:"15m"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`

	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Recognized pricing options; parsed as decimals at startup.
	TaxRate               string `envconfig:"TAX_RATE" default:"0.10"`
	FreeShippingThreshold string `envconfig:"FREE_SHIPPING_THRESHOLD" default:"100.00"`
	FlatShippingCost      string `envconfig:"FLAT_SHIPPING_COST" default:"10.00"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
