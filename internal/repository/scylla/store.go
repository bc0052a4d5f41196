package scylla

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"whispr-service/internal/repository"
)

// Store implements repository.Backend on the kv tables.
type Store struct {
	client *ScyllaClient
}

func NewStore(client *ScyllaClient) *Store {
	return &Store{client: client}
}

func (s *Store) Dict(table string) repository.Dict {
	return &dict{client: s.client, table: table}
}

func (s *Store) ListDict(table string) repository.ListDict {
	return &listDict{client: s.client, table: table}
}

func (s *Store) HealthCheck(ctx context.Context) error { return s.client.HealthCheck(ctx) }

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

type dict struct {
	client *ScyllaClient
	table  string
}

func (d *dict) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.client.Query(ctx, stmtDictGet, d.table, key).Scan(&value)
	if errors.Is(err, gocql.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scylla get %s/%s: %w", d.table, key, err)
	}
	return value, true, nil
}

func (d *dict) Set(ctx context.Context, key, value string) error {
	if err := d.client.Query(ctx, stmtDictSet, d.table, key, value).Exec(); err != nil {
		return fmt.Errorf("scylla set %s/%s: %w", d.table, key, err)
	}
	return nil
}

func (d *dict) Keys(ctx context.Context) ([]string, error) {
	items, err := d.Items(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys, nil
}

func (d *dict) Items(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	iter := d.client.Query(ctx, stmtDictScan, d.table).Iter()
	var key, value string
	for iter.Scan(&key, &value) {
		out[key] = value
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("scylla scan %s: %w", d.table, err)
	}
	return out, nil
}

func (d *dict) Pop(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := d.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	if err := d.client.Query(ctx, stmtDictDelete, d.table, key).Exec(); err != nil {
		return "", false, fmt.Errorf("scylla delete %s/%s: %w", d.table, key, err)
	}
	return value, true, nil
}

type listDict struct {
	client *ScyllaClient
	table  string
}

func (l *listDict) Get(ctx context.Context, key string) ([]string, error) {
	var members []string
	iter := l.client.Query(ctx, stmtListGet, l.table, key).Iter()
	var member string
	for iter.Scan(&member) {
		members = append(members, member)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("scylla list %s/%s: %w", l.table, key, err)
	}
	return members, nil
}

func (l *listDict) Extend(ctx context.Context, key string, members ...string) error {
	for _, member := range members {
		seq := gocql.TimeUUID()
		existing := map[string]any{}
		applied, err := l.client.Query(ctx, stmtListClaim, l.table, key, member, seq).MapScanCAS(existing)
		if err != nil {
			return fmt.Errorf("scylla claim %s/%s: %w", l.table, key, err)
		}
		if !applied {
			continue
		}
		if err := l.client.Query(ctx, stmtListAppend, l.table, key, seq, member).Exec(); err != nil {
			return fmt.Errorf("scylla append %s/%s: %w", l.table, key, err)
		}
		if err := l.client.Query(ctx, stmtListKeyAdd, l.table, key).Exec(); err != nil {
			return fmt.Errorf("scylla index %s/%s: %w", l.table, key, err)
		}
	}
	return nil
}

func (l *listDict) RemoveFrom(ctx context.Context, key, member string) error {
	var seq gocql.UUID
	err := l.client.Query(ctx, stmtListSeq, l.table, key, member).Scan(&seq)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scylla lookup %s/%s: %w", l.table, key, err)
	}
	if err := l.client.Query(ctx, stmtListRemove, l.table, key, seq).Exec(); err != nil {
		return fmt.Errorf("scylla remove %s/%s: %w", l.table, key, err)
	}
	if err := l.client.Query(ctx, stmtListUnclaim, l.table, key, member).Exec(); err != nil {
		return fmt.Errorf("scylla unclaim %s/%s: %w", l.table, key, err)
	}

	var first gocql.UUID
	err = l.client.Query(ctx, stmtListFirst, l.table, key).Scan(&first)
	if errors.Is(err, gocql.ErrNotFound) {
		return l.client.Query(ctx, stmtListKeyDelete, l.table, key).Exec()
	}
	return err
}

func (l *listDict) Items(ctx context.Context) (map[string][]string, error) {
	var keys []string
	iter := l.client.Query(ctx, stmtListKeys, l.table).Iter()
	var key string
	for iter.Scan(&key) {
		keys = append(keys, key)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("scylla list keys %s: %w", l.table, err)
	}

	out := make(map[string][]string, len(keys))
	for _, k := range keys {
		members, err := l.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if len(members) > 0 {
			out[k] = members
		}
	}
	return out, nil
}
