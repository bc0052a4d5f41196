package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"whispr-service/internal/config"
	"whispr-service/internal/util"
)

type RedisClient struct {
	Client *redis.Client
	prefix string
}

// NewRedisClient connects to the profile/follower store. rediss:// URLs use mutual TLS
// with certificates mounted under /app/certs unless overridden.
func NewRedisClient(cfg *config.Config, logger *zap.Logger) (*RedisClient, error) {
	redisConfig := cfg.Redis

	opts, err := redis.ParseURL(redisConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.Password == "" && redisConfig.Password != "" {
		opts.Password = redisConfig.Password
	}

	opts.DB = redisConfig.DB
	opts.PoolSize = redisConfig.PoolSize
	opts.MinIdleConns = max(redisConfig.PoolSize/4, 2)
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	if strings.HasPrefix(redisConfig.URL, "rediss://") {
		tlsConfig, err := redisTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.TLSConfig = tlsConfig
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis client initialized",
		zap.Int("db", redisConfig.DB),
		zap.Int("pool_size", redisConfig.PoolSize),
		zap.String("prefix", redisConfig.Prefix))

	return &RedisClient{Client: client, prefix: redisConfig.Prefix}, nil
}

// NewRedisClientFromConn wraps an existing connection, used with miniredis in tests.
func NewRedisClientFromConn(conn *redis.Client, prefix string) *RedisClient {
	return &RedisClient{Client: conn, prefix: prefix}
}

func redisTLSConfig() (*tls.Config, error) {
	caFile := util.GetEnv("REDIS_TLS_CA_FILE", "/app/certs/ca.crt")
	certFile := util.GetEnv("REDIS_TLS_CERT_FILE", "/app/certs/redis.crt")
	keyFile := util.GetEnv("REDIS_TLS_KEY_FILE", "/app/certs/redis.key")

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read Redis CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA cert")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load Redis TLS certificate/key: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Key namespaces parts under the configured prefix.
func (r *RedisClient) Key(parts ...string) string {
	if r.prefix == "" {
		return strings.Join(parts, ":")
	}
	return r.prefix + ":" + strings.Join(parts, ":")
}

func (r *RedisClient) Close() error {
	if r.Client == nil {
		return nil
	}
	if err := r.Client.Close(); err != nil {
		util.Error("failed to close Redis client", zap.Error(err))
		return err
	}
	util.Info("Redis client closed")
	return nil
}

func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisClient) PoolStats() *redis.PoolStats {
	return r.Client.PoolStats()
}
