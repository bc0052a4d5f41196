// Package memory is an in-process repository backend for tests and local runs.
package memory

import (
	"context"
	"slices"
	"sync"

	"whispr-service/internal/repository"
)

type Store struct {
	mu    sync.RWMutex
	dicts map[string]map[string]string
	lists map[string]map[string][]string
}

func NewStore() *Store {
	return &Store{
		dicts: make(map[string]map[string]string),
		lists: make(map[string]map[string][]string),
	}
}

func (s *Store) Dict(table string) repository.Dict {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dicts[table]; !ok {
		s.dicts[table] = make(map[string]string)
	}
	return &dict{store: s, table: table}
}

func (s *Store) ListDict(table string) repository.ListDict {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[table]; !ok {
		s.lists[table] = make(map[string][]string)
	}
	return &listDict{store: s, table: table}
}

func (s *Store) HealthCheck(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

type dict struct {
	store *Store
	table string
}

func (d *dict) Get(ctx context.Context, key string) (string, bool, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	v, ok := d.store.dicts[d.table][key]
	return v, ok, nil
}

func (d *dict) Set(ctx context.Context, key, value string) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	d.store.dicts[d.table][key] = value
	return nil
}

func (d *dict) Keys(ctx context.Context) ([]string, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	keys := make([]string, 0, len(d.store.dicts[d.table]))
	for k := range d.store.dicts[d.table] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (d *dict) Items(ctx context.Context) (map[string]string, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	out := make(map[string]string, len(d.store.dicts[d.table]))
	for k, v := range d.store.dicts[d.table] {
		out[k] = v
	}
	return out, nil
}

func (d *dict) Pop(ctx context.Context, key string) (string, bool, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	v, ok := d.store.dicts[d.table][key]
	delete(d.store.dicts[d.table], key)
	return v, ok, nil
}

type listDict struct {
	store *Store
	table string
}

func (l *listDict) Get(ctx context.Context, key string) ([]string, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return slices.Clone(l.store.lists[l.table][key]), nil
}

func (l *listDict) Extend(ctx context.Context, key string, members ...string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	current := l.store.lists[l.table][key]
	for _, m := range members {
		if !slices.Contains(current, m) {
			current = append(current, m)
		}
	}
	if len(current) > 0 {
		l.store.lists[l.table][key] = current
	}
	return nil
}

func (l *listDict) RemoveFrom(ctx context.Context, key, member string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	current := slices.DeleteFunc(l.store.lists[l.table][key], func(m string) bool { return m == member })
	if len(current) == 0 {
		delete(l.store.lists[l.table], key)
		return nil
	}
	l.store.lists[l.table][key] = current
	return nil
}

func (l *listDict) Items(ctx context.Context) (map[string][]string, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	out := make(map[string][]string, len(l.store.lists[l.table]))
	for k, v := range l.store.lists[l.table] {
		out[k] = slices.Clone(v)
	}
	return out, nil
}
