package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/weiawesome/wes-io-feed/internal/consumer"
	"github.com/weiawesome/wes-io-feed/internal/reconciler"
	pkgconfig "github.com/weiawesome/wes-io-feed/pkg/config"
	"github.com/weiawesome/wes-io-feed/pkg/database"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/pubsub"
	"github.com/weiawesome/wes-io-feed/pkg/storage"
)

type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   database.Config
	Redis      RedisConfig
	Cache      CacheConfig
	PubSub     pubsub.Config `mapstructure:"pubsub"`
	Kafka      KafkaConfig
	Storage    storage.Config
	Auth       AuthConfig
	Security   SecurityConfig
	Graph      GraphConfig
	Feed       FeedConfig
	Reconciler reconciler.Config
	Metrics    MetricsConfig
	Log        pkglog.Config
}

type AppConfig struct {
	Env string `mapstructure:"env"`
	// PublicURL is the base URL links in notifications point to.
	PublicURL string `mapstructure:"public_url"`
}

type ServerConfig struct {
	Host string
	Port int
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisConfig configures the shared client behind the profile cache and
// the follow counters. An empty address disables both.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// KafkaConfig configures the Debezium consumer on the relationships table.
type KafkaConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	consumer.Config `mapstructure:",squash"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
	// RememberCookieTTL is the lifetime of the remember_token cookie.
	RememberCookieTTL time.Duration `mapstructure:"remember_cookie_ttl"`
}

type SecurityConfig struct {
	DigestMinCost bool `mapstructure:"digest_min_cost"`
}

type GraphConfig struct {
	AllowSelfFollow bool   `mapstructure:"allow_self_follow"`
	CountersViaCDC  bool   `mapstructure:"counters_via_cdc"`
	StorePrefix     string `mapstructure:"store_prefix"`
}

type FeedConfig struct {
	PageSize int `mapstructure:"page_size"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// UseMinDigestCost reports whether digests use the cheapest bcrypt cost.
func (c *Config) UseMinDigestCost() bool {
	return c.Security.DigestMinCost || strings.EqualFold(c.App.Env, "test")
}

// Load reads ./config/config.yaml (if present) and the environment.
func Load() (*Config, error) {
	return LoadFrom("./config")
}

// LoadFrom reads config.yaml from configPath (if present) and the environment.
func LoadFrom(configPath string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("app.env", "development")
	v.SetDefault("app.public_url", "http://localhost:8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "feed")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/feed.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.prefix", "account")
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("pubsub.driver", "none")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.redis.read_timeout", "3s")
	v.SetDefault("pubsub.redis.write_timeout", "3s")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.topics", []string{pubsub.TopicAccountNotify})
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "dbserver1.public.relationships")
	v.SetDefault("kafka.group_id", "feed-graph-counters")
	v.SetDefault("kafka.offset_reset", "latest")
	v.SetDefault("kafka.poll_timeout", "100ms")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./data/media")
	v.SetDefault("storage.local.public_url", "/media")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("auth.issuer", "wes-io-feed")
	v.SetDefault("auth.remember_cookie_ttl", "480h")
	v.SetDefault("security.digest_min_cost", false)
	v.SetDefault("graph.allow_self_follow", true)
	v.SetDefault("graph.counters_via_cdc", false)
	v.SetDefault("graph.store_prefix", "graph")
	v.SetDefault("feed.page_size", 30)
	v.SetDefault("reconciler.interval", "60s")
	v.SetDefault("reconciler.top_n", 100)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "wes-io-feed")

	// Bind environment variables
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.public_url", "PUBLIC_URL")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("database.max_idle_conns", "DB_MAX_IDLE_CONNS")
	v.BindEnv("database.max_open_conns", "DB_MAX_OPEN_CONNS")
	v.BindEnv("database.conn_max_lifetime", "DB_CONN_MAX_LIFETIME")
	v.BindEnv("database.log_level", "DB_LOG_LEVEL")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("cache.ttl", "CACHE_TTL")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "PUBSUB_REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "PUBSUB_REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "PUBSUB_KAFKA_BROKERS")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("storage.local.base_path", "STORAGE_LOCAL_BASE_PATH")
	v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.s3.region", "S3_REGION")
	v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.token_ttl", "JWT_TOKEN_TTL")
	v.BindEnv("security.digest_min_cost", "DIGEST_MIN_COST")
	v.BindEnv("graph.allow_self_follow", "GRAPH_ALLOW_SELF_FOLLOW")
	v.BindEnv("graph.counters_via_cdc", "GRAPH_COUNTERS_VIA_CDC")
	v.BindEnv("feed.page_size", "FEED_PAGE_SIZE")
	v.BindEnv("reconciler.interval", "RECONCILER_INTERVAL")
	v.BindEnv("reconciler.top_n", "RECONCILER_TOP_N")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
