package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"whispr-service/internal/config"
	"whispr-service/internal/util"
)

// Schema for the generic table store. kv_list_members guards list dedup with a
// lightweight transaction; kv_lists keeps insertion order through a timeuuid clustering key.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv (
        table_name text, key text, value text,
        PRIMARY KEY ((table_name), key))`,
	`CREATE TABLE IF NOT EXISTS kv_lists (
        table_name text, key text, seq timeuuid, member text,
        PRIMARY KEY ((table_name, key), seq))`,
	`CREATE TABLE IF NOT EXISTS kv_list_members (
        table_name text, key text, member text, seq timeuuid,
        PRIMARY KEY ((table_name, key), member))`,
	`CREATE TABLE IF NOT EXISTS kv_list_keys (
        table_name text, key text,
        PRIMARY KEY ((table_name), key))`,
}

// Statements used by the store.
const (
	stmtDictGet    = `SELECT value FROM kv WHERE table_name = ? AND key = ?`
	stmtDictSet    = `INSERT INTO kv (table_name, key, value) VALUES (?, ?, ?)`
	stmtDictDelete = `DELETE FROM kv WHERE table_name = ? AND key = ?`
	stmtDictScan   = `SELECT key, value FROM kv WHERE table_name = ?`

	stmtListGet        = `SELECT member FROM kv_lists WHERE table_name = ? AND key = ?`
	stmtListClaim      = `INSERT INTO kv_list_members (table_name, key, member, seq) VALUES (?, ?, ?, ?) IF NOT EXISTS`
	stmtListAppend     = `INSERT INTO kv_lists (table_name, key, seq, member) VALUES (?, ?, ?, ?)`
	stmtListKeyAdd     = `INSERT INTO kv_list_keys (table_name, key) VALUES (?, ?)`
	stmtListSeq        = `SELECT seq FROM kv_list_members WHERE table_name = ? AND key = ? AND member = ?`
	stmtListUnclaim    = `DELETE FROM kv_list_members WHERE table_name = ? AND key = ? AND member = ?`
	stmtListRemove     = `DELETE FROM kv_lists WHERE table_name = ? AND key = ? AND seq = ?`
	stmtListKeyDelete  = `DELETE FROM kv_list_keys WHERE table_name = ? AND key = ?`
	stmtListKeys       = `SELECT key FROM kv_list_keys WHERE table_name = ?`
	stmtListFirst      = `SELECT seq FROM kv_lists WHERE table_name = ? AND key = ? LIMIT 1`
)

type ScyllaClient struct {
	Session *gocql.Session
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        5 * time.Second,
		NumRetries: 3,
	}

	if cfg.IsProduction() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 util.GetEnv("SCYLLA_CA_FILE", "/app/certs/ca.pem"),
			CertPath:               util.GetEnv("SCYLLA_CERT_FILE", "/app/certs/scylla.pem"),
			KeyPath:                util.GetEnv("SCYLLA_KEY_FILE", "/app/certs/scylla.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{Session: session}
	if err := client.migrate(context.Background()); err != nil {
		session.Close()
		return nil, err
	}

	logger.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.Session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(ctx context.Context, stmt string, values ...any) *gocql.Query {
	return s.Session.Query(stmt, values...).WithContext(ctx)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	if err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName); err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}
