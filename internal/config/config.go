package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	Wallet        WalletConfig
	Bot           BotConfig
	Bucketing     BucketingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	AllowOrigins []string
	// HMAC secret for POST /api/v1/messages, empty disables the webhook
	WebhookSecret string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers       []string
	InboundTopic  string
	OutboundTopic string
	EventsTopic   string
	GroupID       string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
	Index    string
	// cron spec for the full profile reindex, empty disables it
	ReindexSchedule string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type WalletConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Attachment path conventions understood by the messaging gateway.
const (
	AttachmentsAuxin     = "auxin"
	AttachmentsSignalCLI = "signal-cli"
)

// Storage backends for the profile and follower tables.
const (
	StoreRedis  = "redis"
	StoreScylla = "scylla"
	StoreMemory = "memory"
)

type BotConfig struct {
	Number               string
	Admins               []string
	AttachmentMode       string
	StoreBackend         string
	QuestionTimeout      time.Duration
	SessionIdleTimeout   time.Duration
	SendRatePerSecond    float64
	FanoutConcurrency    int
	EnableKafkaTransport bool
	// broadcasts allowed per sender per window, 0 disables the limit
	BroadcastLimit  int
	BroadcastWindow time.Duration
}

type BucketingConfig struct {
	SessionStripes int
}

var (
	current *Config
	mu      sync.RWMutex
)

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowOrigins: getEnvList("SERVER_ALLOW_ORIGINS", []string{"*"}),

			WebhookSecret: getEnv("SERVER_WEBHOOK_SECRET", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
			Prefix:   getEnv("REDIS_PREFIX", "whispr"),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "whispr"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			InboundTopic:  getEnv("KAFKA_INBOUND_TOPIC", "whispr.inbound"),
			OutboundTopic: getEnv("KAFKA_OUTBOUND_TOPIC", "whispr.outbound"),
			EventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "whispr.events"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "whispr-service"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:      getEnv("ELASTICSEARCH_URL", ""),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_INDEX", "whispr-profiles"),

			ReindexSchedule: getEnv("ELASTICSEARCH_REINDEX_SCHEDULE", "@every 1h"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "whispr"),
		},
		Wallet: WalletConfig{
			URL:     getEnv("WALLET_URL", "http://localhost:9090"),
			Token:   getEnv("WALLET_TOKEN", ""),
			Timeout: getEnvDuration("WALLET_TIMEOUT", 30*time.Second),
		},
		Bot: BotConfig{
			Number:               getEnv("BOT_NUMBER", ""),
			Admins:               getEnvList("BOT_ADMINS", nil),
			AttachmentMode:       getEnv("BOT_ATTACHMENT_MODE", AttachmentsSignalCLI),
			StoreBackend:         getEnv("BOT_STORE_BACKEND", StoreRedis),
			QuestionTimeout:      getEnvDuration("BOT_QUESTION_TIMEOUT", 24*time.Hour),
			SessionIdleTimeout:   getEnvDuration("BOT_SESSION_IDLE_TIMEOUT", 10*time.Minute),
			SendRatePerSecond:    getEnvFloat("BOT_SEND_RATE", 20),
			FanoutConcurrency:    getEnvInt("BOT_FANOUT_CONCURRENCY", 8),
			EnableKafkaTransport: getEnvBool("BOT_KAFKA_TRANSPORT", true),
			BroadcastLimit:       getEnvInt("BOT_BROADCAST_LIMIT", 30),
			BroadcastWindow:      getEnvDuration("BOT_BROADCAST_WINDOW", time.Hour),
		},
		Bucketing: BucketingConfig{
			SessionStripes: getEnvInt("SESSION_STRIPES", 64),
		},
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg
}

// Get returns the last loaded config, loading it on first use.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// IsAdmin reports whether number is one of the configured bot admins.
func (c *Config) IsAdmin(number string) bool {
	for _, admin := range c.Bot.Admins {
		if admin == number {
			return true
		}
	}
	return false
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
