package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `env:", prefix=SERVER_"`
	MySQL   MySQLConfig   `env:", prefix=MYSQL_"`
	Redis   RedisConfig   `env:", prefix=REDIS_"`
	NATS    NATSConfig    `env:", prefix=NATS_"`
	Shopify ShopifyConfig `env:", prefix=SHOPIFY_"`
	Sync    SyncConfig    `env:", prefix=SYNC_"`
	Logging LoggingConfig `env:", prefix=LOG_"`
}

// ServerConfig holds the status API server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// MySQLConfig holds the local record store configuration
type MySQLConfig struct {
	Host            string        `env:"HOST, default=localhost"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE, default=catalog"`
	User            string        `env:"USER, default=catalog"`
	Password        string        `env:"PASSWORD, default=catalog123"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS, default=2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL           string        `env:"URL, default=nats://localhost:4222"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
}

// ShopifyConfig holds remote catalog API configuration. The store key, token
// and API version may instead live in the persisted parameter store; values
// here take precedence when set.
type ShopifyConfig struct {
	StoreKey           string        `env:"STORE_KEY"`
	APIToken           string        `env:"API_TOKEN"`
	APIVersion         string        `env:"API_VERSION, default=2023-10"`
	Endpoint           string        `env:"ENDPOINT"`
	Timeout            time.Duration `env:"TIMEOUT, default=30s"`
	EstimatedQueryCost float64       `env:"ESTIMATED_QUERY_COST, default=100"`
	MaxBucketSize      float64       `env:"MAX_BUCKET_SIZE, default=2000"`
	RestoreRate        float64       `env:"RESTORE_RATE, default=100"`
	PageSize           int           `env:"PAGE_SIZE, default=250"`
	MaxRetries         int           `env:"MAX_RETRIES, default=5"`
	MaxRetryDelay      time.Duration `env:"MAX_RETRY_DELAY, default=60s"`
	MinRetryDelay      time.Duration `env:"MIN_RETRY_DELAY, default=5s"`
}

// EndpointURL returns the GraphQL endpoint for the configured store. An
// explicit Endpoint overrides the derived myshopify.com URL.
func (c *ShopifyConfig) EndpointURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s.myshopify.com/admin/api/%s/graphql.json", c.StoreKey, c.APIVersion)
}

// SyncConfig holds synchronization pass configuration
type SyncConfig struct {
	Interval        time.Duration `env:"INTERVAL, default=15m"`
	CommitEvery     int           `env:"COMMIT_EVERY, default=1000"`
	PublicationIDs  []int64       `env:"PUBLICATION_IDS"`
	LocationName    string        `env:"LOCATION_NAME, default=Stock"`
	BaseURL         string        `env:"BASE_URL, default=http://localhost:8080"`
	SyncChannel     string        `env:"CHANNEL, default=shopify_sync"`
	ErrorChannel    string        `env:"ERROR_CHANNEL, default=errors"`
	LogBufferSize   int           `env:"LOG_BUFFER_SIZE, default=200"`
	NotifyRateLimit int           `env:"NOTIFY_RATE_LIMIT, default=5"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=text"`
	Output string `env:"OUTPUT, default=stdout"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	ctx := context.Background()
	var cfg Config

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.MySQL.Host == "" {
		return fmt.Errorf("MySQL host is required")
	}

	if c.Shopify.MaxBucketSize <= 0 {
		return fmt.Errorf("invalid Shopify max bucket size: %f", c.Shopify.MaxBucketSize)
	}

	if c.Shopify.RestoreRate <= 0 {
		return fmt.Errorf("invalid Shopify restore rate: %f", c.Shopify.RestoreRate)
	}

	if c.Sync.CommitEvery <= 0 {
		return fmt.Errorf("invalid commit batch size: %d", c.Sync.CommitEvery)
	}

	return nil
}

// GetMySQLDSN returns MySQL DSN string
func (c *Config) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.Database,
	)
}

// GetRedisAddr returns Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetServerAddr returns server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
