// Package repository defines the durable associative store used for profiles and the
// follow graph. Tables are namespaced by name; every backend must keep list insertion
// order and never store a member twice under one key.
package repository

import (
	"context"
	"errors"
)

var ErrUnknownBackend = errors.New("unknown store backend")

// Dict is a durable string-to-string map.
type Dict interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Keys(ctx context.Context) ([]string, error)
	Items(ctx context.Context) (map[string]string, error)
	// Pop deletes key and returns the value it held.
	Pop(ctx context.Context, key string) (string, bool, error)
}

// ListDict is a durable map from key to an ordered set of members.
type ListDict interface {
	Get(ctx context.Context, key string) ([]string, error)
	// Extend appends the members not already present under key.
	Extend(ctx context.Context, key string, members ...string) error
	// RemoveFrom deletes member from key; a missing member is a no-op.
	RemoveFrom(ctx context.Context, key, member string) error
	Items(ctx context.Context) (map[string][]string, error)
}

// Backend hands out tables and owns the underlying connection.
type Backend interface {
	Dict(table string) Dict
	ListDict(table string) ListDict
	HealthCheck(ctx context.Context) error
	Close() error
}
